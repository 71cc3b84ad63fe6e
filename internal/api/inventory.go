package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nkapoor/subscription-billing-system/internal/audit"
	"github.com/nkapoor/subscription-billing-system/internal/domain"
)

// InventoryReader reads per-center stock levels.
type InventoryReader interface {
	Levels(ctx context.Context, productID int64) ([]domain.InventoryLevel, error)
}

// Restocker adds stock at a fulfillment center.
type Restocker interface {
	Restock(ctx context.Context, productID, centerID int64, qty int) (int, error)
}

type InventoryHandler struct {
	levels   InventoryReader
	engine   Restocker
	auditLog Auditor
}

func NewInventoryHandler(levels InventoryReader, engine Restocker, auditLog Auditor) *InventoryHandler {
	return &InventoryHandler{levels: levels, engine: engine, auditLog: auditLog}
}

// Levels returns the per-center stock for a product.
func (h *InventoryHandler) Levels(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	levels, err := h.levels.Levels(r.Context(), productID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load inventory")
		return
	}

	respondJSON(w, http.StatusOK, levels)
}

type restockRequest struct {
	ProductID int64 `json:"product_id"`
	CenterID  int64 `json:"center_id"`
	Quantity  int   `json:"quantity"`
}

// Restock adds stock at a fulfillment center.
func (h *InventoryHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID <= 0 || req.CenterID <= 0 {
		respondError(w, http.StatusBadRequest, "product_id and center_id are required")
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}

	remaining, err := h.engine.Restock(r.Context(), req.ProductID, req.CenterID, req.Quantity)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to restock")
		return
	}

	h.auditLog.Append(r.Context(), audit.Event{
		Action:   audit.ActionRestocked,
		Entity:   "inventory",
		EntityID: req.ProductID,
		Details: map[string]any{
			"center_id": req.CenterID,
			"quantity":  req.Quantity,
			"remaining": remaining,
		},
	})

	respondJSON(w, http.StatusOK, map[string]any{
		"product_id": req.ProductID,
		"center_id":  req.CenterID,
		"quantity":   remaining,
	})
}
