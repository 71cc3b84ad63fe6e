package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nkapoor/subscription-billing-system/internal/domain"
)

// InventoryStore provides the atomic stock operations the reservation
// engine is built on. It is bound to a DB so the same code runs against
// the pool or inside a transaction.
type InventoryStore struct {
	db DB
}

func NewInventoryStore(db DB) *InventoryStore {
	return &InventoryStore{db: db}
}

// Inventory returns an InventoryStore bound to the connection pool.
func (s *PostgresStore) Inventory() *InventoryStore {
	return &InventoryStore{db: s.pool}
}

// Candidates returns centers holding stock for the product, most stocked
// first with center id as the tie-break. The ordering is the reservation
// priority; keep it in sync with the engine's documented policy.
func (s *InventoryStore) Candidates(ctx context.Context, productID int64) ([]domain.InventoryLevel, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, product_id, center_id, quantity, updated_at
		FROM inventory
		WHERE product_id = $1 AND quantity > 0
		ORDER BY quantity DESC, center_id ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("querying inventory candidates: %w", err)
	}
	defer rows.Close()

	var levels []domain.InventoryLevel
	for rows.Next() {
		var lvl domain.InventoryLevel
		if err := rows.Scan(&lvl.ID, &lvl.ProductID, &lvl.CenterID, &lvl.Quantity, &lvl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning inventory level: %w", err)
		}
		levels = append(levels, lvl)
	}

	return levels, nil
}

// DecrementIfAvailable subtracts qty from the (product, center) record in
// a single conditional write. It succeeds only when the current quantity
// is at least qty and returns the remaining quantity; otherwise it
// returns domain.ErrOutOfStock and leaves the row untouched. Safe under
// any number of concurrent callers.
func (s *InventoryStore) DecrementIfAvailable(ctx context.Context, productID, centerID int64, qty int) (int, error) {
	var remaining int
	err := s.db.QueryRow(ctx, `
		UPDATE inventory
		SET quantity = quantity - $3, updated_at = NOW()
		WHERE product_id = $1 AND center_id = $2 AND quantity >= $3
		RETURNING quantity
	`, productID, centerID, qty).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrOutOfStock
		}
		return 0, fmt.Errorf("decrementing inventory: %w", err)
	}
	return remaining, nil
}

// Increment adds qty to the (product, center) record, creating it if
// absent. Used for replenishment and for saga compensation.
func (s *InventoryStore) Increment(ctx context.Context, productID, centerID int64, qty int) (int, error) {
	var quantity int
	err := s.db.QueryRow(ctx, `
		INSERT INTO inventory (product_id, center_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id, center_id)
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity, updated_at = NOW()
		RETURNING quantity
	`, productID, centerID, qty).Scan(&quantity)
	if err != nil {
		return 0, fmt.Errorf("incrementing inventory: %w", err)
	}
	return quantity, nil
}

// Levels returns all inventory rows for a product, including empty ones.
func (s *InventoryStore) Levels(ctx context.Context, productID int64) ([]domain.InventoryLevel, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, product_id, center_id, quantity, updated_at
		FROM inventory
		WHERE product_id = $1
		ORDER BY center_id ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("querying inventory levels: %w", err)
	}
	defer rows.Close()

	var levels []domain.InventoryLevel
	for rows.Next() {
		var lvl domain.InventoryLevel
		if err := rows.Scan(&lvl.ID, &lvl.ProductID, &lvl.CenterID, &lvl.Quantity, &lvl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning inventory level: %w", err)
		}
		levels = append(levels, lvl)
	}

	if levels == nil {
		levels = []domain.InventoryLevel{}
	}

	return levels, nil
}
