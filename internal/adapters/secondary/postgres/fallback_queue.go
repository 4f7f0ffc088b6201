package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
	"github.com/lorrc/event-updates-backend/internal/core/utils"
)

// FallbackQueue stores offline delivery jobs in the fallback_jobs table.
// Claimed jobs are leased through locked_until; a worker that dies mid-job
// leaves a lease that simply expires.
type FallbackQueue struct {
	pool *pgxpool.Pool
}

var _ ports.FallbackQueue = (*FallbackQueue)(nil)

func NewFallbackQueue(pool *pgxpool.Pool) *FallbackQueue {
	return &FallbackQueue{pool: pool}
}

// Enqueue inserts a job that is due immediately unless NextRunAt is set.
func (q *FallbackQueue) Enqueue(ctx context.Context, job *domain.FallbackJob) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("marshal fallback payload: %w", err)
	}

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}

	const query = `
INSERT INTO fallback_jobs (id, event_id, payload, next_run_at)
VALUES ($1, $2, $3, COALESCE($4, now()))
RETURNING attempts, next_run_at, created_at
`
	var nextRunAt *time.Time
	if !job.NextRunAt.IsZero() {
		nextRunAt = &job.NextRunAt
	}

	err = GetDBTX(ctx, q.pool).QueryRow(ctx, query,
		job.ID,
		job.EventID,
		payload,
		utils.ToNullTime(nextRunAt),
	).Scan(&job.Attempts, &job.NextRunAt, &job.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue fallback job: %w", err)
	}
	return nil
}

// Claim leases up to limit due jobs, skipping rows other workers hold.
func (q *FallbackQueue) Claim(ctx context.Context, limit int, lease time.Duration) ([]*domain.FallbackJob, error) {
	const query = `
WITH due AS (
    SELECT id FROM fallback_jobs
    WHERE next_run_at <= now()
      AND (locked_until IS NULL OR locked_until < now())
    ORDER BY next_run_at
    LIMIT $1
    FOR UPDATE SKIP LOCKED
)
UPDATE fallback_jobs j
SET locked_until = now() + ($2::bigint * interval '1 millisecond'),
    updated_at = now()
FROM due
WHERE j.id = due.id
RETURNING j.id, j.event_id, j.payload, j.attempts, j.last_error, j.next_run_at, j.created_at
`
	rows, err := GetDBTX(ctx, q.pool).Query(ctx, query, limit, lease.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("claim fallback jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.FallbackJob, 0, limit)
	for rows.Next() {
		var (
			job       domain.FallbackJob
			payload   []byte
			lastError pgtype.Text
		)
		if err := rows.Scan(&job.ID, &job.EventID, &payload, &job.Attempts, &lastError, &job.NextRunAt, &job.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &job.Payload); err != nil {
			return nil, fmt.Errorf("decode fallback payload %s: %w", job.ID, err)
		}
		job.LastError = utils.FromText(lastError)
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// Complete removes a delivered job.
func (q *FallbackQueue) Complete(ctx context.Context, jobID uuid.UUID) error {
	if _, err := GetDBTX(ctx, q.pool).Exec(ctx, `DELETE FROM fallback_jobs WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("complete fallback job: %w", err)
	}
	return nil
}

// Reschedule records a failed attempt and releases the lease until delay
// after the database clock.
func (q *FallbackQueue) Reschedule(ctx context.Context, jobID uuid.UUID, delay time.Duration, lastErr string) error {
	const query = `
UPDATE fallback_jobs
SET attempts = attempts + 1,
    last_error = $2,
    next_run_at = now() + $3::bigint * interval '1 millisecond',
    locked_until = NULL,
    updated_at = now()
WHERE id = $1
`
	if _, err := GetDBTX(ctx, q.pool).Exec(ctx, query, jobID, utils.ToText(lastErr), delay.Milliseconds()); err != nil {
		return fmt.Errorf("reschedule fallback job: %w", err)
	}
	return nil
}

// Discard drops a job that exhausted its attempts. The worker logs lastErr.
func (q *FallbackQueue) Discard(ctx context.Context, jobID uuid.UUID, lastErr string) error {
	if _, err := GetDBTX(ctx, q.pool).Exec(ctx, `DELETE FROM fallback_jobs WHERE id = $1`, jobID); err != nil {
		return fmt.Errorf("discard fallback job (%s): %w", lastErr, err)
	}
	return nil
}

// Pending returns the number of queued jobs.
func (q *FallbackQueue) Pending(ctx context.Context) (int, error) {
	var n int64
	if err := GetDBTX(ctx, q.pool).QueryRow(ctx, `SELECT COUNT(*) FROM fallback_jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count fallback jobs: %w", err)
	}
	return int(n), nil
}
