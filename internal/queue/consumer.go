package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handler processes one claimed job. Returning nil acknowledges the job.
// A terminal error (per the consumer's Terminal classifier) is also
// acknowledged, because the state change it caused is the final outcome.
// Any other error is treated as transient and redelivered with backoff.
type Handler func(ctx context.Context, job Job) error

// FailureReporter receives jobs whose transient retries are exhausted.
// Exhausted jobs are reported, never silently dropped.
type FailureReporter interface {
	InsertFailedJob(ctx context.Context, jobID string, payload []byte, attempts int, lastError string) error
}

// ConsumerConfig tunes the worker pool.
type ConsumerConfig struct {
	NumWorkers      int
	PollInterval    time.Duration
	BatchSize       int64
	ShutdownTimeout time.Duration
}

// Consumer drains the queue with bounded concurrency. The claim step
// guarantees no job id is ever executed by two workers at once; handlers
// still see at-least-once delivery across process crashes and must be
// idempotent.
type Consumer struct {
	queue    *Queue
	handler  Handler
	terminal func(error) bool
	reporter FailureReporter
	cfg      ConsumerConfig
	logger   *slog.Logger

	jobs   chan Job
	stopCh chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup
}

// NewConsumer creates a consumer. terminal classifies handler errors:
// true means a business outcome that must not be retried.
func NewConsumer(q *Queue, handler Handler, terminal func(error) bool, reporter FailureReporter, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	return &Consumer{
		queue:    q,
		handler:  handler,
		terminal: terminal,
		reporter: reporter,
		cfg:      cfg,
		logger:   logger,
		jobs:     make(chan Job, cfg.NumWorkers*2),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the poll loop and worker goroutines. It returns
// immediately; call Stop for a graceful drain.
func (c *Consumer) Start(ctx context.Context) {
	for i := 0; i < c.cfg.NumWorkers; i++ {
		c.wg.Add(1)
		go c.worker(ctx)
	}

	go c.pollLoop(ctx)

	c.logger.Info("queue consumer started",
		"num_workers", c.cfg.NumWorkers,
		"poll_interval", c.cfg.PollInterval,
	)
}

// Stop stops claiming new jobs, lets in-flight handlers finish within the
// shutdown timeout, and returns.
func (c *Consumer) Stop() {
	close(c.stopCh)
	<-c.doneCh
	close(c.jobs)

	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		c.logger.Info("queue consumer stopped")
	case <-time.After(c.cfg.ShutdownTimeout):
		c.logger.Warn("queue consumer shutdown timed out with jobs in flight")
	}
}

func (c *Consumer) pollLoop(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			jobs, err := c.queue.claim(ctx, c.cfg.BatchSize)
			if err != nil {
				c.logger.Error("failed to poll queue", "error", err)
				continue
			}
			for _, job := range jobs {
				c.jobs <- job
			}
		}
	}
}

func (c *Consumer) worker(ctx context.Context) {
	defer c.wg.Done()

	for job := range c.jobs {
		c.process(ctx, job)
	}
}

// process runs the handler and settles the job. A panicking or failing
// job never takes the worker down with it. Settlement runs on a context
// that survives cancellation of the worker's own context: a claimed job
// is no longer in the pending set and must end up completed, requeued or
// dead-lettered even when the handler was cut short by shutdown.
func (c *Consumer) process(ctx context.Context, job Job) {
	settleCtx := context.WithoutCancel(ctx)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("job handler panicked", "job_id", job.ID, "panic", r)
			c.settleTransient(settleCtx, job, "handler panic")
		}
	}()

	err := c.handler(ctx, job)
	if err == nil {
		c.queue.finish(settleCtx, job)
		c.logger.Info("job completed", "job_id", job.ID, "attempt", job.Attempt)
		return
	}

	if c.terminal != nil && c.terminal(err) {
		// Business outcome: the compensating state change is final.
		c.queue.finish(settleCtx, job)
		c.logger.Info("job closed with business outcome",
			"job_id", job.ID,
			"attempt", job.Attempt,
			"outcome", err.Error(),
		)
		return
	}

	c.logger.Warn("job failed",
		"job_id", job.ID,
		"attempt", job.Attempt,
		"max_attempts", job.MaxAttempts,
		"error", err,
	)
	c.settleTransient(settleCtx, job, err.Error())
}

// settleTransient redelivers with exponential backoff, or dead-letters
// the job once attempts are exhausted. A failed requeue falls through to
// the dead-letter path: the job was claimed out of the pending set, so
// dropping it here would lose it entirely.
func (c *Consumer) settleTransient(ctx context.Context, job Job, lastError string) {
	if job.Attempt < job.MaxAttempts {
		delay := job.BackoffBase << (job.Attempt - 1)
		err := c.queue.requeue(ctx, job, delay)
		if err == nil {
			return
		}
		c.logger.Error("failed to requeue job, dead-lettering instead",
			"error", err, "job_id", job.ID)
	}

	c.queue.finish(ctx, job)

	if c.reporter == nil {
		c.logger.Error("job permanently failed, no failure reporter configured",
			"job_id", job.ID, "attempts", job.Attempt)
		return
	}
	if err := c.reporter.InsertFailedJob(ctx, job.ID, job.Payload, job.Attempt, lastError); err != nil {
		c.logger.Error("failed to record permanently failed job",
			"error", err, "job_id", job.ID)
		return
	}
	c.logger.Error("job permanently failed",
		"job_id", job.ID,
		"attempts", job.Attempt,
		"last_error", lastError,
	)
}
