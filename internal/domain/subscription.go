package domain

import "time"

// Subscription statuses. Status changes go through the billing processor
// or an explicit administrative command, never implicitly.
const (
	StatusActive        = "active"
	StatusPaused        = "paused"
	StatusPaymentFailed = "payment_failed"
	StatusCancelled     = "cancelled"
)

type Subscription struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	PlanID          int64     `json:"plan_id"`
	Status          string    `json:"status"`
	StartDate       time.Time `json:"start_date"`
	NextBillingDate time.Time `json:"next_billing_date"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CreateSubscriptionRequest struct {
	UserID int64 `json:"user_id"`
	PlanID int64 `json:"plan_id"`
}
