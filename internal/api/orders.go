package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/nkapoor/subscription-billing-system/internal/domain"
)

// OrderStore is the storage surface the order endpoints use.
type OrderStore interface {
	ListOrders(ctx context.Context, subscriptionID int64, limit int) ([]domain.Order, error)
	MarkOrderShipped(ctx context.Context, id int64) error
}

type OrderHandler struct {
	store OrderStore
}

func NewOrderHandler(s OrderStore) *OrderHandler {
	return &OrderHandler{store: s}
}

// List returns recent orders, optionally filtered by subscription.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	var subscriptionID int64
	if val := r.URL.Query().Get("subscription_id"); val != "" {
		id, err := strconv.ParseInt(val, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusBadRequest, "invalid subscription_id")
			return
		}
		subscriptionID = id
	}
	limit := queryInt(r, "limit", 50)

	orders, err := h.store.ListOrders(r.Context(), subscriptionID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	respondJSON(w, http.StatusOK, orders)
}

// Ship advances a processed order to shipped.
func (h *OrderHandler) Ship(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.store.MarkOrderShipped(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			respondError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, domain.ErrInvalidState):
			respondError(w, http.StatusConflict, "order is not in processed state")
		default:
			respondError(w, http.StatusInternalServerError, "failed to update order")
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": domain.OrderShipped})
}
