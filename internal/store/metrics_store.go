package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// BillingMetrics holds aggregated billing statistics.
type BillingMetrics struct {
	ActiveSubscriptions        int             `json:"active_subscriptions"`
	PausedSubscriptions        int             `json:"paused_subscriptions"`
	PaymentFailedSubscriptions int             `json:"payment_failed_subscriptions"`
	CancelledSubscriptions     int             `json:"cancelled_subscriptions"`
	TotalOrders                int             `json:"total_orders"`
	TotalRevenue               decimal.Decimal `json:"total_revenue"`
	UnresolvedFailedJobs       int             `json:"unresolved_failed_jobs"`
	PendingJobs                int64           `json:"pending_jobs"`
}

// GetBillingMetrics returns aggregated billing statistics from the
// database. PendingJobs is filled in by the caller from the queue.
func (s *PostgresStore) GetBillingMetrics(ctx context.Context) (*BillingMetrics, error) {
	var m BillingMetrics

	// Subscription counts by status
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'active') AS active,
			COUNT(*) FILTER (WHERE status = 'paused') AS paused,
			COUNT(*) FILTER (WHERE status = 'payment_failed') AS payment_failed,
			COUNT(*) FILTER (WHERE status = 'cancelled') AS cancelled
		FROM subscriptions
	`).Scan(&m.ActiveSubscriptions, &m.PausedSubscriptions, &m.PaymentFailedSubscriptions, &m.CancelledSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("querying subscription metrics: %w", err)
	}

	// Order count and revenue
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM orders
	`).Scan(&m.TotalOrders, &m.TotalRevenue)
	if err != nil {
		return nil, fmt.Errorf("querying order metrics: %w", err)
	}

	// Unresolved dead letters
	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM failed_jobs WHERE resolved_at IS NULL
	`).Scan(&m.UnresolvedFailedJobs)
	if err != nil {
		return nil, fmt.Errorf("querying failed job count: %w", err)
	}

	return &m, nil
}
