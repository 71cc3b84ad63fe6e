package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nkapoor/subscription-billing-system/internal/audit"
	"github.com/nkapoor/subscription-billing-system/internal/domain"
	"github.com/nkapoor/subscription-billing-system/internal/scheduler"
)

// SubscriptionStore is the storage surface the subscription commands use.
type SubscriptionStore interface {
	GetSubscription(ctx context.Context, id int64) (*domain.Subscription, error)
	GetPlan(ctx context.Context, id int64) (*domain.Plan, error)
	CreateSubscription(ctx context.Context, userID, planID int64, nextBillingDate time.Time) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context, status string, limit int) ([]domain.Subscription, error)
	SetSubscriptionStatus(ctx context.Context, id int64, status string) error
	ResumeSubscription(ctx context.Context, id int64, nextBillingDate time.Time) error
}

// BillingScheduler arms and disarms a subscription's pending billing job.
type BillingScheduler interface {
	ScheduleNextBilling(ctx context.Context, subscriptionID int64, nextBillingDate time.Time) error
	Unschedule(ctx context.Context, subscriptionID int64) error
}

// Auditor records administrative actions.
type Auditor interface {
	Append(ctx context.Context, ev audit.Event)
}

// SubscriptionHandler exposes the administrative subscription commands.
// Pause, resume and cancel are the explicit external actions the billing
// processor's terminal states wait on: a paused or payment_failed
// subscription never auto-resumes.
type SubscriptionHandler struct {
	store    SubscriptionStore
	sched    BillingScheduler
	auditLog Auditor
}

func NewSubscriptionHandler(s SubscriptionStore, sched BillingScheduler, auditLog Auditor) *SubscriptionHandler {
	return &SubscriptionHandler{store: s, sched: sched, auditLog: auditLog}
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.PlanID <= 0 {
		respondError(w, http.StatusBadRequest, "plan_id is required")
		return
	}

	plan, err := h.store.GetPlan(r.Context(), req.PlanID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "plan not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load plan")
		return
	}

	next, err := scheduler.NextBillingDate(plan.BillingCycle, time.Now())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "plan has an unknown billing cycle")
		return
	}

	sub, err := h.store.CreateSubscription(r.Context(), req.UserID, req.PlanID, next)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	if err := h.sched.ScheduleNextBilling(r.Context(), sub.ID, sub.NextBillingDate); err != nil {
		// The subscription exists; recovery will re-arm the job.
		respondJSON(w, http.StatusCreated, sub)
		return
	}

	respondJSON(w, http.StatusCreated, sub)
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := queryInt(r, "limit", 50)

	subs, err := h.store.ListSubscriptions(r.Context(), status, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	respondJSON(w, http.StatusOK, subs)
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "subscription not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}

	respondJSON(w, http.StatusOK, sub)
}

// Pause suspends billing: the status flips and the pending job is
// removed. An executing attempt is not interrupted.
func (h *SubscriptionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.StatusPaused)
}

// Cancel is terminal.
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.StatusCancelled)
}

func (h *SubscriptionHandler) transition(w http.ResponseWriter, r *http.Request, status string) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "subscription not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub.Status == domain.StatusCancelled {
		respondError(w, http.StatusConflict, "subscription is cancelled")
		return
	}

	if err := h.store.SetSubscriptionStatus(r.Context(), id, status); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update subscription")
		return
	}
	if err := h.sched.Unschedule(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to unschedule billing")
		return
	}

	h.auditLog.Append(r.Context(), audit.Event{
		Action:   audit.ActionStatusChanged,
		Entity:   "subscription",
		EntityID: id,
		UserID:   sub.UserID,
		Details:  map[string]any{"from": sub.Status, "to": status},
	})

	respondJSON(w, http.StatusOK, map[string]string{"status": status})
}

// Resume is the explicit administrative action that reactivates a paused
// or payment_failed subscription and re-arms its billing job.
func (h *SubscriptionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "subscription not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub.Status != domain.StatusPaused && sub.Status != domain.StatusPaymentFailed {
		respondError(w, http.StatusConflict, "only paused or payment_failed subscriptions can be resumed")
		return
	}

	// A billing date that slipped into the past while suspended moves to
	// one cycle from now; an untouched future date is kept.
	next := sub.NextBillingDate
	if !next.After(time.Now()) {
		plan, err := h.store.GetPlan(r.Context(), sub.PlanID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load plan")
			return
		}
		next, err = scheduler.NextBillingDate(plan.BillingCycle, time.Now())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "plan has an unknown billing cycle")
			return
		}
	}

	if err := h.store.ResumeSubscription(r.Context(), id, next); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to resume subscription")
		return
	}
	if err := h.sched.ScheduleNextBilling(r.Context(), id, next); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to schedule billing")
		return
	}

	h.auditLog.Append(r.Context(), audit.Event{
		Action:   audit.ActionStatusChanged,
		Entity:   "subscription",
		EntityID: id,
		UserID:   sub.UserID,
		Details:  map[string]any{"from": sub.Status, "to": domain.StatusActive},
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"status":            domain.StatusActive,
		"next_billing_date": next,
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	if val := r.URL.Query().Get(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
