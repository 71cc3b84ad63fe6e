// Package billing drives one billing attempt through a fixed state
// machine: reserve inventory, charge payment, commit the order, advance
// the subscription. Each step's outcome is an explicit tagged result;
// failed attempts compensate and leave the subscription in a terminal
// non-active state that requires an explicit administrative resume.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nkapoor/subscription-billing-system/internal/audit"
	"github.com/nkapoor/subscription-billing-system/internal/domain"
	"github.com/nkapoor/subscription-billing-system/internal/inventory"
	"github.com/nkapoor/subscription-billing-system/internal/notify"
	"github.com/nkapoor/subscription-billing-system/internal/payment"
	"github.com/nkapoor/subscription-billing-system/internal/scheduler"
	"github.com/shopspring/decimal"
)

// Saga states for a single billing attempt.
type State string

const (
	StateStarted           State = "started"
	StateInventoryReserved State = "inventory_reserved"
	StatePaymentCharged    State = "payment_charged"
	StateOrderCommitted    State = "order_committed"
	StateInventoryShortage State = "inventory_shortage"
	StatePaymentFailed     State = "payment_failed"
)

// Repository is the storage surface the saga needs. CommitOrder must
// write the order row and the subscription's advance atomically.
type Repository interface {
	GetSubscription(ctx context.Context, id int64) (*domain.Subscription, error)
	GetPlan(ctx context.Context, id int64) (*domain.Plan, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	SetSubscriptionStatus(ctx context.Context, id int64, status string) error
	CommitOrder(ctx context.Context, subscriptionID, productID, centerID int64, amount decimal.Decimal, nextBillingDate time.Time) (*domain.Order, error)
}

// Inventory is the reservation engine surface.
type Inventory interface {
	Reserve(ctx context.Context, productID int64, qty int) (*inventory.Reservation, error)
	Restock(ctx context.Context, productID, centerID int64, qty int) (int, error)
}

// AuditLog records billing events, best-effort.
type AuditLog interface {
	Append(ctx context.Context, ev audit.Event)
}

type Processor struct {
	repo           Repository
	inventory      Inventory
	gateway        payment.Gateway
	notifier       notify.Notifier
	audit          AuditLog
	paymentTimeout time.Duration
	logger         *slog.Logger
}

func NewProcessor(repo Repository, inv Inventory, gw payment.Gateway, notifier notify.Notifier, auditLog AuditLog, paymentTimeout time.Duration, logger *slog.Logger) *Processor {
	return &Processor{
		repo:           repo,
		inventory:      inv,
		gateway:        gw,
		notifier:       notifier,
		audit:          auditLog,
		paymentTimeout: paymentTimeout,
		logger:         logger,
	}
}

// ProcessBillingCycle runs one billing attempt for the subscription.
// Terminal business outcomes (NotFound, InvalidState, OutOfStock,
// PaymentDeclined) have already applied their compensating state change
// when returned; transient errors leave no committed writes behind and
// are safe to retry.
func (p *Processor) ProcessBillingCycle(ctx context.Context, subscriptionID int64) (*domain.Order, error) {
	state := StateStarted

	sub, err := p.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("subscription %d: %w", subscriptionID, domain.ErrNotFound)
		}
		return nil, err
	}
	if sub.Status != domain.StatusActive {
		return nil, fmt.Errorf("%w: subscription %d is %s, not active", domain.ErrInvalidState, subscriptionID, sub.Status)
	}

	plan, err := p.repo.GetPlan(ctx, sub.PlanID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: subscription %d references missing plan %d", domain.ErrInvalidState, subscriptionID, sub.PlanID)
		}
		return nil, err
	}
	product, err := p.repo.GetProduct(ctx, plan.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: plan %d references missing product %d", domain.ErrInvalidState, plan.ID, plan.ProductID)
		}
		return nil, err
	}

	res, err := p.inventory.Reserve(ctx, product.ID, 1)
	if err != nil {
		if errors.Is(err, domain.ErrOutOfStock) {
			return nil, p.failShortage(ctx, sub, product, err)
		}
		return nil, err
	}
	state = StateInventoryReserved
	p.logStep(subscriptionID, state)

	chargeCtx, cancel := context.WithTimeout(ctx, p.paymentTimeout)
	result, err := p.gateway.Charge(chargeCtx, subscriptionID, plan.Price)
	cancel()
	if err != nil {
		// Gateway unreachable or over its time bound. Release the
		// reservation so the queue's retry starts from a clean slate.
		p.compensateReservation(ctx, product.ID, res.CenterID)
		return nil, fmt.Errorf("%w: payment gateway: %v", domain.ErrTransient, err)
	}
	if !result.Success {
		state = StatePaymentFailed
		p.logStep(subscriptionID, state)
		return nil, p.failPayment(ctx, sub, product, res, result.Message)
	}
	state = StatePaymentCharged
	p.logStep(subscriptionID, state)

	next, err := scheduler.NextBillingDate(plan.BillingCycle, sub.NextBillingDate)
	if err != nil {
		// Unknown cycle on a charged attempt: release stock and surface
		// the bad reference data rather than committing a broken order.
		p.compensateReservation(ctx, product.ID, res.CenterID)
		return nil, err
	}

	order, err := p.repo.CommitOrder(ctx, sub.ID, product.ID, res.CenterID, plan.Price, next)
	if err != nil {
		p.compensateReservation(ctx, product.ID, res.CenterID)
		return nil, fmt.Errorf("%w: committing order: %v", domain.ErrTransient, err)
	}
	state = StateOrderCommitted
	p.logStep(subscriptionID, state)

	p.audit.Append(ctx, audit.Event{
		Action:   audit.ActionOrderCreated,
		Entity:   "order",
		EntityID: order.ID,
		UserID:   sub.UserID,
		Details: map[string]any{
			"subscription_id":   sub.ID,
			"product_id":        product.ID,
			"center_id":         res.CenterID,
			"amount":            plan.Price.String(),
			"next_billing_date": next,
		},
	})
	if err := p.notifier.Send(ctx, sub.UserID, notify.TypeOrderConfirmation,
		fmt.Sprintf("Your order #%d has been confirmed and will ship soon.", order.ID),
		map[string]any{"order_id": order.ID}); err != nil {
		p.logger.Error("failed to queue order confirmation", "error", err, "order_id", order.ID)
	}

	p.logger.Info("billing cycle processed",
		"subscription_id", sub.ID,
		"order_id", order.ID,
		"center_id", res.CenterID,
		"amount", plan.Price.String(),
		"next_billing_date", next,
	)
	return order, nil
}

// failShortage settles an attempt that found no stock anywhere: the
// subscription pauses and stays paused until an operator resumes it.
func (p *Processor) failShortage(ctx context.Context, sub *domain.Subscription, product *domain.Product, cause error) error {
	if err := p.repo.SetSubscriptionStatus(ctx, sub.ID, domain.StatusPaused); err != nil {
		return fmt.Errorf("%w: pausing subscription %d: %v", domain.ErrTransient, sub.ID, err)
	}

	p.audit.Append(ctx, audit.Event{
		Action:   audit.ActionInventoryShortage,
		Entity:   "subscription",
		EntityID: sub.ID,
		UserID:   sub.UserID,
		Details:  map[string]any{"product_id": product.ID},
	})

	p.logger.Warn("billing paused on inventory shortage",
		"subscription_id", sub.ID,
		"product_id", product.ID,
	)
	return fmt.Errorf("subscription %d paused: %w", sub.ID, cause)
}

// failPayment compensates a declined charge: the reserved unit goes back
// to its center, and the subscription is parked in payment_failed.
func (p *Processor) failPayment(ctx context.Context, sub *domain.Subscription, product *domain.Product, res *inventory.Reservation, message string) error {
	p.compensateReservation(ctx, product.ID, res.CenterID)

	if err := p.repo.SetSubscriptionStatus(ctx, sub.ID, domain.StatusPaymentFailed); err != nil {
		return fmt.Errorf("%w: marking subscription %d payment_failed: %v", domain.ErrTransient, sub.ID, err)
	}

	p.audit.Append(ctx, audit.Event{
		Action:   audit.ActionPaymentFailed,
		Entity:   "subscription",
		EntityID: sub.ID,
		UserID:   sub.UserID,
		Details:  map[string]any{"gateway_message": message},
	})
	if err := p.notifier.Send(ctx, sub.UserID, notify.TypePaymentFailed,
		"Payment failed for your subscription. Please update your payment method.",
		map[string]any{"subscription_id": sub.ID}); err != nil {
		p.logger.Error("failed to queue payment failure notice", "error", err, "subscription_id", sub.ID)
	}

	p.logger.Warn("billing failed on payment decline",
		"subscription_id", sub.ID,
		"gateway_message", message,
	)
	return fmt.Errorf("subscription %d: %w: %s", sub.ID, domain.ErrPaymentDeclined, message)
}

// compensateReservation restores a reserved unit. A failed restock is
// logged for operator attention; it must not mask the attempt's outcome.
func (p *Processor) compensateReservation(ctx context.Context, productID, centerID int64) {
	if _, err := p.inventory.Restock(ctx, productID, centerID, 1); err != nil {
		p.logger.Error("compensation restock failed",
			"error", err,
			"product_id", productID,
			"center_id", centerID,
		)
	}
}

func (p *Processor) logStep(subscriptionID int64, state State) {
	p.logger.Debug("billing state", "subscription_id", subscriptionID, "state", string(state))
}
