package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/nkapoor/subscription-billing-system/internal/audit"
	"github.com/nkapoor/subscription-billing-system/internal/domain"
)

type fakeInventoryBackend struct {
	levels   []domain.InventoryLevel
	restocks []restockRequest
}

func (f *fakeInventoryBackend) Levels(ctx context.Context, productID int64) ([]domain.InventoryLevel, error) {
	return f.levels, nil
}

func (f *fakeInventoryBackend) Restock(ctx context.Context, productID, centerID int64, qty int) (int, error) {
	f.restocks = append(f.restocks, restockRequest{ProductID: productID, CenterID: centerID, Quantity: qty})
	return qty, nil
}

func inventoryRouter(h *InventoryHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/inventory/{productID}", h.Levels)
	r.Post("/inventory/restock", h.Restock)
	return r
}

func newInvFixture() (*fakeInventoryBackend, *fakeAuditor, http.Handler) {
	backend := &fakeInventoryBackend{
		levels: []domain.InventoryLevel{
			{ProductID: 3, CenterID: 10, Quantity: 4},
			{ProductID: 3, CenterID: 20, Quantity: 0},
		},
	}
	auditLog := &fakeAuditor{}
	return backend, auditLog, inventoryRouter(NewInventoryHandler(backend, backend, auditLog))
}

func TestInventoryLevels(t *testing.T) {
	_, _, router := newInvFixture()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/inventory/3", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var levels []domain.InventoryLevel
	if err := json.NewDecoder(rec.Body).Decode(&levels); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(levels))
	}
}

func TestInventoryLevelsInvalidProductID(t *testing.T) {
	_, _, router := newInvFixture()

	for _, path := range []string{"/inventory/abc", "/inventory/-1"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, rec.Code)
		}
	}
}

func TestRestock(t *testing.T) {
	backend, auditLog, router := newInvFixture()

	body, _ := json.Marshal(restockRequest{ProductID: 3, CenterID: 10, Quantity: 25})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inventory/restock", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(backend.restocks) != 1 || backend.restocks[0].Quantity != 25 {
		t.Errorf("expected one restock of 25 units, got %+v", backend.restocks)
	}
	if len(auditLog.actions) != 1 || auditLog.actions[0] != audit.ActionRestocked {
		t.Errorf("expected restock audit entry, got %v", auditLog.actions)
	}
}

func TestRestockValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "not json"},
		{"missing product", `{"center_id": 10, "quantity": 5}`},
		{"missing center", `{"product_id": 3, "quantity": 5}`},
		{"zero quantity", `{"product_id": 3, "center_id": 10, "quantity": 0}`},
		{"negative quantity", `{"product_id": 3, "center_id": 10, "quantity": -2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, _, router := newInvFixture()

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inventory/restock", strings.NewReader(tt.body)))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if len(backend.restocks) != 0 {
				t.Error("rejected request must not touch inventory")
			}
		})
	}
}
