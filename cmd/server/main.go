package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nkapoor/subscription-billing-system/internal/api"
	"github.com/nkapoor/subscription-billing-system/internal/audit"
	"github.com/nkapoor/subscription-billing-system/internal/config"
	"github.com/nkapoor/subscription-billing-system/internal/inventory"
	"github.com/nkapoor/subscription-billing-system/internal/queue"
	"github.com/nkapoor/subscription-billing-system/internal/scheduler"
	"github.com/nkapoor/subscription-billing-system/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis
	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	q := queue.New(redisStore.Client(), logger)
	sched := scheduler.New(q, pgStore, cfg.MaxAttempts, cfg.BackoffBase, logger)
	invEngine := inventory.NewEngine(pgStore.Inventory(), logger)
	auditLog := audit.NewLog(pgStore.Pool(), logger)

	// Re-arm billing jobs for active subscriptions that lost theirs
	if err := sched.Recover(ctx); err != nil {
		logger.Error("failed to recover billing jobs", "error", err)
		os.Exit(1)
	}

	// Setup router
	router := api.NewRouter(pgStore, invEngine, sched, q, auditLog)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
