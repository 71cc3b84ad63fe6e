package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nkapoor/subscription-billing-system/internal/domain"
	"github.com/nkapoor/subscription-billing-system/internal/queue"
	"github.com/nkapoor/subscription-billing-system/internal/scheduler"
)

// Rescheduler re-arms the billing scheduler after a successful cycle.
type Rescheduler interface {
	ScheduleNextBilling(ctx context.Context, subscriptionID int64, nextBillingDate time.Time) error
}

// Handler adapts the processor to the job queue: it decodes the payload,
// skips cycles that already committed (at-least-once delivery), runs the
// saga, and re-arms the scheduler on success.
func Handler(p *Processor, sched Rescheduler) queue.Handler {
	return func(ctx context.Context, job queue.Job) error {
		var payload scheduler.JobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("%w: undecodable billing payload for job %s: %v", domain.ErrInvalidState, job.ID, err)
		}

		// Redelivery after a crash between commit and ack: the cycle's
		// date has already advanced past this job's target, so the work
		// is done and the job just needs its ack.
		sub, err := p.repo.GetSubscription(ctx, payload.SubscriptionID)
		if err == nil && sub.Status == domain.StatusActive && sub.NextBillingDate.After(payload.DueAt) {
			p.logger.Info("billing cycle already committed, skipping redelivery",
				"job_id", job.ID,
				"subscription_id", payload.SubscriptionID,
			)
			// The crash may also have eaten the reschedule; re-arming is
			// idempotent, so do it here.
			if err := sched.ScheduleNextBilling(ctx, sub.ID, sub.NextBillingDate); err != nil {
				return fmt.Errorf("%w: rescheduling subscription %d: %v", domain.ErrTransient, sub.ID, err)
			}
			return nil
		}

		if _, err := p.ProcessBillingCycle(ctx, payload.SubscriptionID); err != nil {
			return err
		}

		// Re-arm the next cycle from the freshly advanced date.
		sub, err = p.repo.GetSubscription(ctx, payload.SubscriptionID)
		if err != nil {
			return fmt.Errorf("%w: reloading subscription %d after billing: %v", domain.ErrTransient, payload.SubscriptionID, err)
		}
		if err := sched.ScheduleNextBilling(ctx, sub.ID, sub.NextBillingDate); err != nil {
			return fmt.Errorf("%w: rescheduling subscription %d: %v", domain.ErrTransient, sub.ID, err)
		}
		return nil
	}
}
