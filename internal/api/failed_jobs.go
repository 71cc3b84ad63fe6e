package api

import (
	"errors"
	"net/http"

	"github.com/nkapoor/subscription-billing-system/internal/domain"
	"github.com/nkapoor/subscription-billing-system/internal/store"
)

// FailedJobHandler exposes the dead-letter table for operators.
type FailedJobHandler struct {
	store *store.PostgresStore
}

func NewFailedJobHandler(s *store.PostgresStore) *FailedJobHandler {
	return &FailedJobHandler{store: s}
}

func (h *FailedJobHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	jobs, err := h.store.ListFailedJobs(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list failed jobs")
		return
	}

	respondJSON(w, http.StatusOK, jobs)
}

func (h *FailedJobHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.store.ResolveFailedJob(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "failed job not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to resolve job")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}
