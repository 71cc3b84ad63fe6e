// Package scheduler keeps exactly one pending billing job per
// subscription. Job ids are deterministic in subscription and target
// date, so re-scheduling the same cycle is a no-op at the queue and a
// restart can reconstruct job state from subscription rows.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nkapoor/subscription-billing-system/internal/domain"
	"github.com/nkapoor/subscription-billing-system/internal/queue"
)

// JobPayload is what a billing job carries. DueAt identifies the cycle
// being billed, which lets the processor ignore redeliveries of a cycle
// that already committed.
type JobPayload struct {
	SubscriptionID int64     `json:"subscription_id"`
	DueAt          time.Time `json:"due_at"`
}

// JobID derives the idempotent job identity for one billing cycle.
func JobID(subscriptionID int64, dueAt time.Time) string {
	return fmt.Sprintf("billing:%d:%d", subscriptionID, dueAt.Unix())
}

func jobPrefix(subscriptionID int64) string {
	return fmt.Sprintf("billing:%d:", subscriptionID)
}

// SubscriptionSource supplies the subscriptions startup recovery scans.
type SubscriptionSource interface {
	ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error)
}

type Scheduler struct {
	queue       *queue.Queue
	subs        SubscriptionSource
	maxAttempts int
	backoffBase time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func New(q *queue.Queue, subs SubscriptionSource, maxAttempts int, backoffBase time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		queue:       q,
		subs:        subs,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		logger:      logger,
		now:         time.Now,
	}
}

// ScheduleNextBilling arms the next billing attempt. The date must be
// strictly in the future. Any pending job for the subscription is
// cancelled first, keeping at most one pending job per subscription.
func (s *Scheduler) ScheduleNextBilling(ctx context.Context, subscriptionID int64, nextBillingDate time.Time) error {
	now := s.now()
	if !nextBillingDate.After(now) {
		return fmt.Errorf("%w: next billing date %s is not in the future",
			domain.ErrInvalidState, nextBillingDate.Format(time.RFC3339))
	}

	if _, err := s.queue.RemoveByPrefix(ctx, jobPrefix(subscriptionID)); err != nil {
		return fmt.Errorf("cancelling pending jobs for subscription %d: %w", subscriptionID, err)
	}

	payload, err := json.Marshal(JobPayload{SubscriptionID: subscriptionID, DueAt: nextBillingDate})
	if err != nil {
		return fmt.Errorf("marshaling job payload: %w", err)
	}

	added, err := s.queue.Enqueue(ctx, JobID(subscriptionID, nextBillingDate), payload, queue.Options{
		Delay:       nextBillingDate.Sub(now),
		MaxAttempts: s.maxAttempts,
		BackoffBase: s.backoffBase,
	})
	if err != nil {
		return err
	}

	if added {
		s.logger.Info("billing scheduled",
			"subscription_id", subscriptionID,
			"next_billing_date", nextBillingDate,
		)
	}
	return nil
}

// Unschedule removes every pending billing job for the subscription. A
// job already executing is unaffected.
func (s *Scheduler) Unschedule(ctx context.Context, subscriptionID int64) error {
	removed, err := s.queue.RemoveByPrefix(ctx, jobPrefix(subscriptionID))
	if err != nil {
		return fmt.Errorf("unscheduling subscription %d: %w", subscriptionID, err)
	}

	s.logger.Info("billing unscheduled",
		"subscription_id", subscriptionID,
		"jobs_removed", removed,
	)
	return nil
}

// Recover re-arms billing for active subscriptions that lost their
// pending job, e.g. after a Redis restart. Job state is ephemeral
// relative to subscription state and must be reconstructable from it.
func (s *Scheduler) Recover(ctx context.Context) error {
	subs, err := s.subs.ListActiveSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("listing active subscriptions: %w", err)
	}

	pending, err := s.queue.ListPending(ctx)
	if err != nil {
		return err
	}
	pendingSet := make(map[string]struct{}, len(pending))
	for _, id := range pending {
		pendingSet[id] = struct{}{}
	}

	recovered := 0
	for _, sub := range subs {
		if !sub.NextBillingDate.After(s.now()) {
			continue
		}
		if _, ok := pendingSet[JobID(sub.ID, sub.NextBillingDate)]; ok {
			continue
		}
		if err := s.ScheduleNextBilling(ctx, sub.ID, sub.NextBillingDate); err != nil {
			s.logger.Error("failed to recover billing schedule",
				"error", err,
				"subscription_id", sub.ID,
			)
			continue
		}
		recovered++
	}

	s.logger.Info("scheduler recovery complete",
		"active_subscriptions", len(subs),
		"jobs_recovered", recovered,
	)
	return nil
}
