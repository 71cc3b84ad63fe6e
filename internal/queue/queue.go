// Package queue implements a durable delayed-job primitive on Redis: a
// sorted set of job ids scored by due time, with a hash per job holding
// the payload and retry bookkeeping. Job identity is idempotent: a jobId
// that is already pending is never enqueued twice.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobsKey      = "jobs:pending"
	jobKeyPrefix = "jobs:data:"
)

// Options control scheduling and retry behavior for an enqueued job.
type Options struct {
	// Delay before the job becomes due. Zero means due immediately.
	Delay time.Duration
	// MaxAttempts bounds redelivery of transient failures.
	MaxAttempts int
	// BackoffBase is the first redelivery delay; attempt n waits
	// BackoffBase * 2^(n-1).
	BackoffBase time.Duration
}

// Job is a claimed unit of work handed to a handler.
type Job struct {
	ID          string
	Payload     []byte
	Attempt     int
	MaxAttempts int
	BackoffBase time.Duration
}

// Queue is the enqueue/inspect side of the delayed-job store.
type Queue struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// Lua script for atomic dedupe-enqueue:
// 1. If the jobId is already pending, do nothing (return 0)
// 2. Otherwise add it to the due-time index and write the job hash
var enqueueScript = redis.NewScript(`
local jobsKey = KEYS[1]
local jobKey = KEYS[2]
local jobID = ARGV[1]

if redis.call('ZSCORE', jobsKey, jobID) then
    return 0
end

redis.call('ZADD', jobsKey, ARGV[2], jobID)
redis.call('HSET', jobKey,
    'payload', ARGV[3],
    'attempts', 0,
    'max_attempts', ARGV[4],
    'backoff_base_ms', ARGV[5])
return 1
`)

func New(client *redis.Client, logger *slog.Logger) *Queue {
	return &Queue{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

// Enqueue schedules a job. If a job with the same id is already pending
// the call is a no-op and Enqueue reports false.
func (q *Queue) Enqueue(ctx context.Context, jobID string, payload []byte, opts Options) (bool, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	dueAt := q.now().Add(opts.Delay)

	added, err := enqueueScript.Run(ctx, q.client,
		[]string{jobsKey, jobKey(jobID)},
		jobID,
		dueAt.UnixMilli(),
		string(payload),
		opts.MaxAttempts,
		opts.BackoffBase.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("enqueuing job %s: %w", jobID, err)
	}

	if added == 0 {
		q.logger.Debug("job already pending, enqueue skipped", "job_id", jobID)
		return false, nil
	}

	q.logger.Info("job enqueued", "job_id", jobID, "due_at", dueAt)
	return true, nil
}

// ListPending returns the ids of all pending jobs, soonest first.
func (q *Queue) ListPending(ctx context.Context) ([]string, error) {
	ids, err := q.client.ZRange(ctx, jobsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing pending jobs: %w", err)
	}
	return ids, nil
}

// Remove deletes a pending job. A job already claimed by a worker is
// unaffected. Reports whether anything was removed.
func (q *Queue) Remove(ctx context.Context, jobID string) (bool, error) {
	removed, err := q.client.ZRem(ctx, jobsKey, jobID).Result()
	if err != nil {
		return false, fmt.Errorf("removing job %s: %w", jobID, err)
	}
	if removed == 0 {
		return false, nil
	}
	if err := q.client.Del(ctx, jobKey(jobID)).Err(); err != nil {
		return true, fmt.Errorf("deleting job data %s: %w", jobID, err)
	}
	return true, nil
}

// RemoveByPrefix deletes every pending job whose id starts with prefix.
// Returns the number of jobs removed.
func (q *Queue) RemoveByPrefix(ctx context.Context, prefix string) (int, error) {
	ids, err := q.ListPending(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		if len(id) < len(prefix) || id[:len(prefix)] != prefix {
			continue
		}
		ok, err := q.Remove(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}

	return removed, nil
}

// Depth returns the number of pending jobs.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, jobsKey).Result()
}

// claim atomically takes ownership of up to limit due jobs. A job is
// owned by whichever caller's ZRem removed it; everyone else skips it.
func (q *Queue) claim(ctx context.Context, limit int64) ([]Job, error) {
	now := q.now().UnixMilli()

	ids, err := q.client.ZRangeByScore(ctx, jobsKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("polling due jobs: %w", err)
	}

	var jobs []Job
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, jobsKey, id).Result()
		if err != nil {
			q.logger.Error("failed to claim job", "error", err, "job_id", id)
			continue
		}
		if removed == 0 {
			// Another consumer instance already claimed this job
			continue
		}

		data, err := q.client.HGetAll(ctx, jobKey(id)).Result()
		if err != nil || len(data) == 0 {
			q.logger.Error("claimed job has no data", "job_id", id, "error", err)
			continue
		}

		attempt, err := q.client.HIncrBy(ctx, jobKey(id), "attempts", 1).Result()
		if err != nil {
			q.logger.Error("failed to bump attempt counter", "error", err, "job_id", id)
			continue
		}

		maxAttempts, _ := strconv.Atoi(data["max_attempts"])
		backoffMs, _ := strconv.ParseInt(data["backoff_base_ms"], 10, 64)

		jobs = append(jobs, Job{
			ID:          id,
			Payload:     []byte(data["payload"]),
			Attempt:     int(attempt),
			MaxAttempts: maxAttempts,
			BackoffBase: time.Duration(backoffMs) * time.Millisecond,
		})
	}

	return jobs, nil
}

// requeue puts a claimed job back with a redelivery delay.
func (q *Queue) requeue(ctx context.Context, job Job, delay time.Duration) error {
	dueAt := q.now().Add(delay)
	err := q.client.ZAdd(ctx, jobsKey, redis.Z{
		Score:  float64(dueAt.UnixMilli()),
		Member: job.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("requeueing job %s: %w", job.ID, err)
	}
	return nil
}

// finish discards a claimed job's data after its final outcome.
func (q *Queue) finish(ctx context.Context, job Job) {
	if err := q.client.Del(ctx, jobKey(job.ID)).Err(); err != nil {
		q.logger.Error("failed to delete job data", "error", err, "job_id", job.ID)
	}
}
