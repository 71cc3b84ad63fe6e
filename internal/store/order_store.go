package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nkapoor/subscription-billing-system/internal/domain"
	"github.com/shopspring/decimal"
)

// CommitOrder inserts the order and advances the subscription's next
// billing date in a single transaction. An order row therefore exists
// only if the subscription update committed with it.
func (s *PostgresStore) CommitOrder(ctx context.Context, subscriptionID, productID, centerID int64, amount decimal.Decimal, nextBillingDate time.Time) (*domain.Order, error) {
	var order domain.Order
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO orders (subscription_id, product_id, center_id, amount, status)
			VALUES ($1, $2, $3, $4, 'processed')
			RETURNING id, subscription_id, product_id, center_id, amount, status, created_at
		`, subscriptionID, productID, centerID, amount).Scan(
			&order.ID, &order.SubscriptionID, &order.ProductID, &order.CenterID,
			&order.Amount, &order.Status, &order.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE subscriptions
			SET next_billing_date = $2, status = 'active', updated_at = NOW()
			WHERE id = $1
		`, subscriptionID, nextBillingDate)
		if err != nil {
			return fmt.Errorf("advancing subscription: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkOrderShipped advances an order from processed to shipped.
func (s *PostgresStore) MarkOrderShipped(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET status = $2
		WHERE id = $1 AND status = $3
	`, id, domain.OrderShipped, domain.OrderProcessed)
	if err != nil {
		return fmt.Errorf("marking order shipped: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking order %d: %w", id, err)
		}
		if !exists {
			return fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
		}
		return fmt.Errorf("%w: order %d is not processed", domain.ErrInvalidState, id)
	}
	return nil
}

// ListOrders returns orders, optionally filtered by subscription.
func (s *PostgresStore) ListOrders(ctx context.Context, subscriptionID int64, limit int) ([]domain.Order, error) {
	query := `SELECT id, subscription_id, product_id, center_id, amount, status, created_at FROM orders`
	args := []any{}
	argIdx := 1

	if subscriptionID > 0 {
		query += fmt.Sprintf(" WHERE subscription_id = $%d", argIdx)
		args = append(args, subscriptionID)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		err := rows.Scan(&o.ID, &o.SubscriptionID, &o.ProductID, &o.CenterID, &o.Amount, &o.Status, &o.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, o)
	}

	if orders == nil {
		orders = []domain.Order{}
	}

	return orders, nil
}
