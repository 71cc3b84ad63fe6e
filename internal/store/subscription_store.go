package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nkapoor/subscription-billing-system/internal/domain"
)

const subscriptionColumns = `id, user_id, plan_id, status, start_date, next_billing_date, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status,
		&sub.StartDate, &sub.NextBillingDate, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning subscription: %w", err)
	}
	return &sub, nil
}

// GetSubscription returns a subscription by id, or domain.ErrNotFound.
func (s *PostgresStore) GetSubscription(ctx context.Context, id int64) (*domain.Subscription, error) {
	return scanSubscription(s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE id = $1
	`, id))
}

// CreateSubscription inserts an active subscription starting now.
func (s *PostgresStore) CreateSubscription(ctx context.Context, userID, planID int64, nextBillingDate time.Time) (*domain.Subscription, error) {
	return scanSubscription(s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (user_id, plan_id, status, start_date, next_billing_date)
		VALUES ($1, $2, 'active', NOW(), $3)
		RETURNING `+subscriptionColumns, userID, planID, nextBillingDate))
}

// ListSubscriptions returns subscriptions, optionally filtered by status.
func (s *PostgresStore) ListSubscriptions(ctx context.Context, status string, limit int) ([]domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	args := []any{}
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argIdx)
		args = append(args, status)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status,
			&sub.StartDate, &sub.NextBillingDate, &sub.CreatedAt, &sub.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	if subs == nil {
		subs = []domain.Subscription{}
	}

	return subs, nil
}

// ListActiveSubscriptions returns every active subscription. Used by the
// scheduler's startup recovery to reconstruct pending jobs.
func (s *PostgresStore) ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	return s.ListSubscriptions(ctx, domain.StatusActive, 0)
}

// ResumeSubscription reactivates a subscription and moves its billing date.
func (s *PostgresStore) ResumeSubscription(ctx context.Context, id int64, nextBillingDate time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET status = 'active', next_billing_date = $2, updated_at = NOW()
		WHERE id = $1
	`, id, nextBillingDate)
	if err != nil {
		return fmt.Errorf("resuming subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetSubscriptionStatus updates only the status field.
func (s *PostgresStore) SetSubscriptionStatus(ctx context.Context, id int64, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET status = $2, updated_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("updating subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
