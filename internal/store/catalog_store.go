package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nkapoor/subscription-billing-system/internal/domain"
)

// GetPlan returns a plan by id, or domain.ErrNotFound.
func (s *PostgresStore) GetPlan(ctx context.Context, id int64) (*domain.Plan, error) {
	var p domain.Plan
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, billing_cycle, price, product_id, created_at
		FROM plans WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.BillingCycle, &p.Price, &p.ProductID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("querying plan: %w", err)
	}
	return &p, nil
}

// GetProduct returns a product by id, or domain.ErrNotFound.
func (s *PostgresStore) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, sku, price, created_at
		FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("querying product: %w", err)
	}
	return &p, nil
}
