package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nkapoor/subscription-billing-system/internal/audit"
	"github.com/nkapoor/subscription-billing-system/internal/billing"
	"github.com/nkapoor/subscription-billing-system/internal/config"
	"github.com/nkapoor/subscription-billing-system/internal/domain"
	"github.com/nkapoor/subscription-billing-system/internal/inventory"
	"github.com/nkapoor/subscription-billing-system/internal/notify"
	"github.com/nkapoor/subscription-billing-system/internal/payment"
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
	notifier := notify.NewRedisNotifier(redisStore.Client(), logger)
	gateway := payment.NewSimulatedGateway(cfg.PaymentFailureRate, time.Now().UnixNano(), logger)

	processor := billing.NewProcessor(pgStore, invEngine, gateway, notifier, auditLog, cfg.PaymentTimeout, logger)

	consumer := queue.NewConsumer(
		q,
		billing.Handler(processor, sched),
		domain.IsBusinessError,
		pgStore,
		queue.ConsumerConfig{
			NumWorkers:      cfg.NumWorkers,
			PollInterval:    cfg.PollInterval,
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
		logger,
	)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	consumer.Start(workerCtx)
	logger.Info("billing workers started", "num_workers", cfg.NumWorkers)

	// Deliver queued notifications in the background
	go notifier.Drain(workerCtx)

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down workers...")
	// Drain in-flight jobs before cancelling their context; cancel then
	// stops the notification drain.
	consumer.Stop()
	cancel()
	logger.Info("workers stopped")
}
