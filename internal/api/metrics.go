package api

import (
	"net/http"

	"github.com/nkapoor/subscription-billing-system/internal/queue"
	"github.com/nkapoor/subscription-billing-system/internal/store"
)

type MetricsHandler struct {
	store *store.PostgresStore
	queue *queue.Queue
}

func NewMetricsHandler(s *store.PostgresStore, q *queue.Queue) *MetricsHandler {
	return &MetricsHandler{store: s, queue: q}
}

// Summary returns aggregated billing statistics plus the live queue depth.
func (h *MetricsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetBillingMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}

	depth, err := h.queue.Depth(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read queue depth")
		return
	}
	metrics.PendingJobs = depth

	respondJSON(w, http.StatusOK, metrics)
}
