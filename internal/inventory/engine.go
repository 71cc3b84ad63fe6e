// Package inventory implements race-safe stock reservation across
// fulfillment centers. All quantity changes go through a storage-level
// conditional write; the engine never reads a quantity and writes back a
// derived value.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nkapoor/subscription-billing-system/internal/domain"
)

// Store is the atomic stock primitive the engine drives. Implementations
// must make DecrementIfAvailable a single conditional write that only
// applies while quantity >= qty, and must order Candidates by the
// reservation priority: most stocked first, center id ascending on ties.
type Store interface {
	Candidates(ctx context.Context, productID int64) ([]domain.InventoryLevel, error)
	DecrementIfAvailable(ctx context.Context, productID, centerID int64, qty int) (int, error)
	Increment(ctx context.Context, productID, centerID int64, qty int) (int, error)
}

// Reservation is a successful stock claim at one center.
type Reservation struct {
	CenterID  int64 `json:"center_id"`
	Remaining int   `json:"remaining_quantity"`
}

type Engine struct {
	store  Store
	logger *slog.Logger
}

func NewEngine(store Store, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Reserve claims qty units of a product from the best-stocked center,
// falling back through candidates in priority order when a concurrent
// caller drains one first. Returns domain.ErrOutOfStock when every
// candidate is exhausted or none exist.
func (e *Engine) Reserve(ctx context.Context, productID int64, qty int) (*Reservation, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: reserve quantity must be positive", domain.ErrInvalidState)
	}

	candidates, err := e.store.Candidates(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("finding candidates for product %d: %w", productID, err)
	}

	for _, c := range candidates {
		remaining, err := e.store.DecrementIfAvailable(ctx, productID, c.CenterID, qty)
		if err != nil {
			if errors.Is(err, domain.ErrOutOfStock) {
				// Raced with another reservation; try the next center.
				continue
			}
			return nil, err
		}

		e.logger.Info("inventory reserved",
			"product_id", productID,
			"center_id", c.CenterID,
			"quantity", qty,
			"remaining", remaining,
		)
		return &Reservation{CenterID: c.CenterID, Remaining: remaining}, nil
	}

	return nil, fmt.Errorf("product %d: %w at all fulfillment centers", productID, domain.ErrOutOfStock)
}

// Restock adds qty units at a center, creating the record if absent.
// Used for administrative replenishment and for saga compensation.
func (e *Engine) Restock(ctx context.Context, productID, centerID int64, qty int) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("%w: restock quantity must be positive", domain.ErrInvalidState)
	}

	quantity, err := e.store.Increment(ctx, productID, centerID, qty)
	if err != nil {
		return 0, fmt.Errorf("restocking product %d at center %d: %w", productID, centerID, err)
	}

	e.logger.Info("inventory restocked",
		"product_id", productID,
		"center_id", centerID,
		"quantity", qty,
		"new_total", quantity,
	)
	return quantity, nil
}

// FindCandidates exposes the prioritized candidate list.
func (e *Engine) FindCandidates(ctx context.Context, productID int64) ([]domain.InventoryLevel, error) {
	return e.store.Candidates(ctx, productID)
}
