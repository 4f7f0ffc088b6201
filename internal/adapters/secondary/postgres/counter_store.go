package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

// CounterStore keeps rate limit windows in rate_limit_counters so every
// process shares one budget.
type CounterStore struct {
	pool *pgxpool.Pool
}

var _ ports.CounterStore = (*CounterStore)(nil)

func NewCounterStore(pool *pgxpool.Pool) *CounterStore {
	return &CounterStore{pool: pool}
}

// Increment atomically adds delta and returns the new count, never below zero.
func (s *CounterStore) Increment(ctx context.Context, key string, windowStart time.Time, delta int, ttl time.Duration) (int, error) {
	const query = `
INSERT INTO rate_limit_counters (bucket, window_start, count, expires_at)
VALUES ($1, $2, GREATEST($3, 0), $4)
ON CONFLICT (bucket, window_start)
DO UPDATE SET count = GREATEST(rate_limit_counters.count + $3, 0)
RETURNING count
`
	var count int32
	err := GetDBTX(ctx, s.pool).QueryRow(ctx, query, key, windowStart, delta, windowStart.Add(ttl)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment counter: %w", err)
	}
	return int(count), nil
}

// Get returns the count for a window, or 0 when none exists.
func (s *CounterStore) Get(ctx context.Context, key string, windowStart time.Time) (int, error) {
	const query = `
SELECT count FROM rate_limit_counters
WHERE bucket = $1 AND window_start = $2 AND expires_at > now()
`
	var count int32
	err := GetDBTX(ctx, s.pool).QueryRow(ctx, query, key, windowStart).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return int(count), nil
}

// Counts returns the unexpired windows of key starting at or after from.
func (s *CounterStore) Counts(ctx context.Context, key string, from time.Time) ([]ports.WindowCount, error) {
	const query = `
SELECT window_start, count FROM rate_limit_counters
WHERE bucket = $1 AND window_start >= $2 AND expires_at > now()
ORDER BY window_start
`
	rows, err := GetDBTX(ctx, s.pool).Query(ctx, query, key, from)
	if err != nil {
		return nil, fmt.Errorf("read counters: %w", err)
	}
	defer rows.Close()

	var counts []ports.WindowCount
	for rows.Next() {
		var (
			start time.Time
			count int32
		)
		if err := rows.Scan(&start, &count); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		counts = append(counts, ports.WindowCount{Start: start, Count: int(count)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read counters: %w", err)
	}
	return counts, nil
}

// Sweep deletes expired windows and returns how many were removed.
func (s *CounterStore) Sweep(ctx context.Context) (int, error) {
	tag, err := GetDBTX(ctx, s.pool).Exec(ctx, `DELETE FROM rate_limit_counters WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("sweep counters: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
