package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nkapoor/subscription-billing-system/internal/domain"
)

// FailedJob is a job whose retries were exhausted. Rows here are the
// operator surface for jobs the queue would otherwise drop silently.
type FailedJob struct {
	ID            int64      `json:"id"`
	JobID         string     `json:"job_id"`
	Payload       []byte     `json:"payload"`
	TotalAttempts int        `json:"total_attempts"`
	LastError     string     `json:"last_error"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// InsertFailedJob records a permanently failed job.
func (s *PostgresStore) InsertFailedJob(ctx context.Context, jobID string, payload []byte, attempts int, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO failed_jobs (job_id, payload, total_attempts, last_error)
		VALUES ($1, $2, $3, $4)
	`, jobID, payload, attempts, lastError)
	if err != nil {
		return fmt.Errorf("inserting failed job: %w", err)
	}
	return nil
}

// ListFailedJobs returns unresolved failed jobs, newest first.
func (s *PostgresStore) ListFailedJobs(ctx context.Context, limit int) ([]FailedJob, error) {
	query := `
		SELECT id, job_id, payload, total_attempts, last_error, created_at, resolved_at
		FROM failed_jobs
		WHERE resolved_at IS NULL
		ORDER BY created_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying failed jobs: %w", err)
	}
	defer rows.Close()

	var jobs []FailedJob
	for rows.Next() {
		var j FailedJob
		err := rows.Scan(&j.ID, &j.JobID, &j.Payload, &j.TotalAttempts, &j.LastError, &j.CreatedAt, &j.ResolvedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning failed job: %w", err)
		}
		jobs = append(jobs, j)
	}

	if jobs == nil {
		jobs = []FailedJob{}
	}

	return jobs, nil
}

// ResolveFailedJob marks a failed job as handled by an operator.
func (s *PostgresStore) ResolveFailedJob(ctx context.Context, id int64) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE failed_jobs SET resolved_at = NOW()
		WHERE id = $1 AND resolved_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("resolving failed job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("failed job %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
