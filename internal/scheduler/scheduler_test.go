package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nkapoor/subscription-billing-system/internal/domain"
	"github.com/nkapoor/subscription-billing-system/internal/queue"
)

type fakeSubs struct {
	subs []domain.Subscription
}

func (f *fakeSubs) ListActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	return f.subs, nil
}

func setupTestScheduler(t *testing.T, subs *fakeSubs) (*Scheduler, *queue.Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := queue.New(client, logger)
	if subs == nil {
		subs = &fakeSubs{}
	}
	return New(q, subs, 3, time.Second, logger), q
}

func TestScheduleNextBilling(t *testing.T) {
	s, q := setupTestScheduler(t, nil)
	ctx := context.Background()

	due := time.Now().Add(24 * time.Hour)
	if err := s.ScheduleNextBilling(ctx, 7, due); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending job, got %d", len(pending))
	}
	if pending[0] != JobID(7, due) {
		t.Errorf("unexpected job id %q", pending[0])
	}
}

func TestScheduleNextBillingRejectsPastDate(t *testing.T) {
	s, q := setupTestScheduler(t, nil)
	ctx := context.Background()

	err := s.ScheduleNextBilling(ctx, 7, time.Now().Add(-time.Hour))
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	depth, _ := q.Depth(ctx)
	if depth != 0 {
		t.Fatalf("rejected schedule must not enqueue, depth %d", depth)
	}
}

func TestScheduleNextBillingKeepsOneJobPerSubscription(t *testing.T) {
	s, q := setupTestScheduler(t, nil)
	ctx := context.Background()

	first := time.Now().Add(24 * time.Hour)
	second := time.Now().Add(48 * time.Hour)

	if err := s.ScheduleNextBilling(ctx, 7, first); err != nil {
		t.Fatalf("first schedule: %v", err)
	}
	if err := s.ScheduleNextBilling(ctx, 7, second); err != nil {
		t.Fatalf("second schedule: %v", err)
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending job after reschedule, got %d", len(pending))
	}
	if pending[0] != JobID(7, second) {
		t.Errorf("expected the job for the later date, got %q", pending[0])
	}
}

func TestScheduleNextBillingSameCycleIsIdempotent(t *testing.T) {
	s, q := setupTestScheduler(t, nil)
	ctx := context.Background()

	due := time.Now().Add(24 * time.Hour)
	for i := 0; i < 3; i++ {
		if err := s.ScheduleNextBilling(ctx, 7, due); err != nil {
			t.Fatalf("schedule %d: %v", i, err)
		}
	}

	depth, _ := q.Depth(ctx)
	if depth != 1 {
		t.Fatalf("expected 1 pending job, got %d", depth)
	}
}

func TestUnschedule(t *testing.T) {
	s, q := setupTestScheduler(t, nil)
	ctx := context.Background()

	if err := s.ScheduleNextBilling(ctx, 7, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("schedule sub 7: %v", err)
	}
	if err := s.ScheduleNextBilling(ctx, 8, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("schedule sub 8: %v", err)
	}

	if err := s.Unschedule(ctx, 7); err != nil {
		t.Fatalf("unschedule: %v", err)
	}

	pending, _ := q.ListPending(ctx)
	if len(pending) != 1 {
		t.Fatalf("expected only sub 8's job, got %v", pending)
	}
	if !strings.HasPrefix(pending[0], "billing:8:") {
		t.Fatalf("surviving job should belong to subscription 8, got %q", pending[0])
	}
}

func TestRecover(t *testing.T) {
	future := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	past := time.Now().Add(-24 * time.Hour)

	subs := &fakeSubs{subs: []domain.Subscription{
		{ID: 1, Status: domain.StatusActive, NextBillingDate: future},
		{ID: 2, Status: domain.StatusActive, NextBillingDate: future},
		{ID: 3, Status: domain.StatusActive, NextBillingDate: past},
	}}

	s, q := setupTestScheduler(t, subs)
	ctx := context.Background()

	// Subscription 1 already has its job; recovery must not duplicate it
	if err := s.ScheduleNextBilling(ctx, 1, future); err != nil {
		t.Fatalf("pre-schedule: %v", err)
	}

	if err := s.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected jobs for subs 1 and 2 only, got %v", pending)
	}

	want := map[string]bool{JobID(1, future): true, JobID(2, future): true}
	for _, id := range pending {
		if !want[id] {
			t.Errorf("unexpected recovered job %q", id)
		}
	}
}
