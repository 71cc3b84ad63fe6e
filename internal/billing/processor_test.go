package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkapoor/subscription-billing-system/internal/audit"
	"github.com/nkapoor/subscription-billing-system/internal/domain"
	"github.com/nkapoor/subscription-billing-system/internal/inventory"
	"github.com/nkapoor/subscription-billing-system/internal/payment"
)

type fakeRepo struct {
	subs     map[int64]*domain.Subscription
	plans    map[int64]*domain.Plan
	products map[int64]*domain.Product

	statusChanges []string
	committed     []committedOrder
	commitErr     error
}

type committedOrder struct {
	subscriptionID int64
	productID      int64
	centerID       int64
	amount         decimal.Decimal
	next           time.Time
}

func (r *fakeRepo) GetSubscription(ctx context.Context, id int64) (*domain.Subscription, error) {
	sub, ok := r.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

func (r *fakeRepo) GetPlan(ctx context.Context, id int64) (*domain.Plan, error) {
	plan, ok := r.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return plan, nil
}

func (r *fakeRepo) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	product, ok := r.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return product, nil
}

func (r *fakeRepo) SetSubscriptionStatus(ctx context.Context, id int64, status string) error {
	sub, ok := r.subs[id]
	if !ok {
		return domain.ErrNotFound
	}
	sub.Status = status
	r.statusChanges = append(r.statusChanges, status)
	return nil
}

func (r *fakeRepo) CommitOrder(ctx context.Context, subscriptionID, productID, centerID int64, amount decimal.Decimal, nextBillingDate time.Time) (*domain.Order, error) {
	if r.commitErr != nil {
		return nil, r.commitErr
	}
	r.committed = append(r.committed, committedOrder{subscriptionID, productID, centerID, amount, nextBillingDate})
	sub := r.subs[subscriptionID]
	sub.NextBillingDate = nextBillingDate
	sub.Status = domain.StatusActive
	return &domain.Order{
		ID:             int64(len(r.committed)),
		SubscriptionID: subscriptionID,
		ProductID:      productID,
		CenterID:       centerID,
		Amount:         amount,
		Status:         domain.OrderProcessed,
	}, nil
}

type fakeInventory struct {
	reserveRes *inventory.Reservation
	reserveErr error
	restocks   []int64
}

func (f *fakeInventory) Reserve(ctx context.Context, productID int64, qty int) (*inventory.Reservation, error) {
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	return f.reserveRes, nil
}

func (f *fakeInventory) Restock(ctx context.Context, productID, centerID int64, qty int) (int, error) {
	f.restocks = append(f.restocks, centerID)
	return qty, nil
}

type fakeGateway struct {
	result payment.Result
	err    error
}

func (g *fakeGateway) Charge(ctx context.Context, subscriptionID int64, amount decimal.Decimal) (payment.Result, error) {
	return g.result, g.err
}

type fakeNotifier struct {
	sent []string
}

func (n *fakeNotifier) Send(ctx context.Context, userID int64, msgType, body string, metadata map[string]any) error {
	n.sent = append(n.sent, msgType)
	return nil
}

type fakeAudit struct {
	actions []string
}

func (a *fakeAudit) Append(ctx context.Context, ev audit.Event) {
	a.actions = append(a.actions, ev.Action)
}

type fixture struct {
	repo      *fakeRepo
	inv       *fakeInventory
	gateway   *fakeGateway
	notifier  *fakeNotifier
	audit     *fakeAudit
	processor *Processor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	billingDate := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepo{
		subs: map[int64]*domain.Subscription{
			1: {ID: 1, UserID: 9, PlanID: 2, Status: domain.StatusActive, NextBillingDate: billingDate},
		},
		plans: map[int64]*domain.Plan{
			2: {ID: 2, BillingCycle: domain.CycleMonthly, Price: decimal.NewFromFloat(34.99), ProductID: 3},
		},
		products: map[int64]*domain.Product{
			3: {ID: 3, Name: "Coffee Box", SKU: "COFFEE-BOX"},
		},
	}
	inv := &fakeInventory{reserveRes: &inventory.Reservation{CenterID: 20, Remaining: 4}}
	gateway := &fakeGateway{result: payment.Result{Success: true}}
	notifier := &fakeNotifier{}
	auditLog := &fakeAudit{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		repo:      repo,
		inv:       inv,
		gateway:   gateway,
		notifier:  notifier,
		audit:     auditLog,
		processor: NewProcessor(repo, inv, gateway, notifier, auditLog, time.Second, logger),
	}
}

func TestProcessBillingCycleSuccess(t *testing.T) {
	f := newFixture(t)

	order, err := f.processor.ProcessBillingCycle(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order == nil {
		t.Fatal("expected an order")
	}

	if len(f.repo.committed) != 1 {
		t.Fatalf("expected 1 committed order, got %d", len(f.repo.committed))
	}
	c := f.repo.committed[0]
	if c.centerID != 20 {
		t.Errorf("order should record the reserving center, got %d", c.centerID)
	}
	wantNext := time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)
	if !c.next.Equal(wantNext) {
		t.Errorf("next billing date: got %s, want %s", c.next, wantNext)
	}
	if !c.amount.Equal(decimal.NewFromFloat(34.99)) {
		t.Errorf("amount: got %s", c.amount)
	}

	if len(f.inv.restocks) != 0 {
		t.Error("successful cycle must not restock")
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0] != "order_confirmation" {
		t.Errorf("expected order confirmation notification, got %v", f.notifier.sent)
	}
	if len(f.audit.actions) != 1 || f.audit.actions[0] != audit.ActionOrderCreated {
		t.Errorf("expected order_created audit entry, got %v", f.audit.actions)
	}
}

func TestProcessBillingCycleInventoryShortage(t *testing.T) {
	f := newFixture(t)
	f.inv.reserveErr = domain.ErrOutOfStock

	_, err := f.processor.ProcessBillingCycle(context.Background(), 1)
	if !errors.Is(err, domain.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	if !domain.IsBusinessError(err) {
		t.Error("shortage must classify as a business outcome")
	}

	if f.repo.subs[1].Status != domain.StatusPaused {
		t.Errorf("subscription should be paused, got %s", f.repo.subs[1].Status)
	}
	if len(f.repo.committed) != 0 {
		t.Error("shortage must not commit an order")
	}
	if len(f.inv.restocks) != 0 {
		t.Error("nothing was reserved, nothing to restock")
	}
}

func TestProcessBillingCyclePaymentDeclined(t *testing.T) {
	f := newFixture(t)
	f.gateway.result = payment.Result{Success: false, Message: "insufficient funds"}

	_, err := f.processor.ProcessBillingCycle(context.Background(), 1)
	if !errors.Is(err, domain.ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}
	if !domain.IsBusinessError(err) {
		t.Error("decline must classify as a business outcome")
	}

	// The reserved unit goes back to the center it came from
	if len(f.inv.restocks) != 1 || f.inv.restocks[0] != 20 {
		t.Errorf("expected compensation restock at center 20, got %v", f.inv.restocks)
	}
	if f.repo.subs[1].Status != domain.StatusPaymentFailed {
		t.Errorf("subscription should be payment_failed, got %s", f.repo.subs[1].Status)
	}
	if len(f.repo.committed) != 0 {
		t.Error("declined payment must not commit an order")
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0] != "payment_failed" {
		t.Errorf("expected payment failure notification, got %v", f.notifier.sent)
	}
}

func TestProcessBillingCycleGatewayError(t *testing.T) {
	f := newFixture(t)
	f.gateway.err = errors.New("connection reset")

	_, err := f.processor.ProcessBillingCycle(context.Background(), 1)
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if domain.IsBusinessError(err) {
		t.Error("gateway outage is retryable, not a business outcome")
	}

	// Reservation released so the retry starts clean
	if len(f.inv.restocks) != 1 {
		t.Errorf("expected compensation restock, got %v", f.inv.restocks)
	}
	if f.repo.subs[1].Status != domain.StatusActive {
		t.Errorf("transient failure must not change status, got %s", f.repo.subs[1].Status)
	}
}

func TestProcessBillingCycleCommitFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.commitErr = errors.New("connection reset")

	_, err := f.processor.ProcessBillingCycle(context.Background(), 1)
	if !errors.Is(err, domain.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if len(f.inv.restocks) != 1 {
		t.Errorf("failed commit must release the reservation, got %v", f.inv.restocks)
	}
}

func TestProcessBillingCycleMissingSubscription(t *testing.T) {
	f := newFixture(t)

	_, err := f.processor.ProcessBillingCycle(context.Background(), 99)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(f.repo.committed) != 0 || len(f.repo.statusChanges) != 0 {
		t.Error("missing subscription must cause no writes")
	}
}

func TestProcessBillingCycleInactiveSubscription(t *testing.T) {
	for _, status := range []string{domain.StatusPaused, domain.StatusCancelled, domain.StatusPaymentFailed} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(t)
			f.repo.subs[1].Status = status

			_, err := f.processor.ProcessBillingCycle(context.Background(), 1)
			if !errors.Is(err, domain.ErrInvalidState) {
				t.Fatalf("expected ErrInvalidState, got %v", err)
			}
			if len(f.repo.committed) != 0 {
				t.Error("inactive subscription must cause no writes")
			}
			if f.repo.subs[1].Status != status {
				t.Errorf("status must be untouched, got %s", f.repo.subs[1].Status)
			}
		})
	}
}

func TestProcessBillingCycleMissingPlan(t *testing.T) {
	f := newFixture(t)
	delete(f.repo.plans, 2)

	_, err := f.processor.ProcessBillingCycle(context.Background(), 1)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for missing plan, got %v", err)
	}
}
