package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nkapoor/subscription-billing-system/internal/audit"
	"github.com/nkapoor/subscription-billing-system/internal/inventory"
	"github.com/nkapoor/subscription-billing-system/internal/queue"
	"github.com/nkapoor/subscription-billing-system/internal/scheduler"
	"github.com/nkapoor/subscription-billing-system/internal/store"
)

// NewRouter creates and configures the HTTP router. Authentication and
// request authorization sit in front of this service and are not
// handled here.
func NewRouter(pgStore *store.PostgresStore, inv *inventory.Engine, sched *scheduler.Scheduler, q *queue.Queue, auditLog *audit.Log) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// Handlers
	subHandler := NewSubscriptionHandler(pgStore, sched, auditLog)
	invHandler := NewInventoryHandler(pgStore.Inventory(), inv, auditLog)
	orderHandler := NewOrderHandler(pgStore)
	failedHandler := NewFailedJobHandler(pgStore)
	metricsHandler := NewMetricsHandler(pgStore, q)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subHandler.Create)
			r.Get("/", subHandler.List)
			r.Get("/{id}", subHandler.Get)
			r.Post("/{id}/pause", subHandler.Pause)
			r.Post("/{id}/resume", subHandler.Resume)
			r.Post("/{id}/cancel", subHandler.Cancel)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/{productID}", invHandler.Levels)
			r.Post("/restock", invHandler.Restock)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orderHandler.List)
			r.Post("/{id}/ship", orderHandler.Ship)
		})

		r.Route("/failed-jobs", func(r chi.Router) {
			r.Get("/", failedHandler.List)
			r.Post("/{id}/resolve", failedHandler.Resolve)
		})

		r.Get("/metrics", metricsHandler.Summary)
	})

	return r
}
