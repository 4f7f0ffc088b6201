package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

// Rate limited operations.
const (
	OpCreateUpdate = "update:create"
	OpReaction     = "reaction"
	OpAPI          = "api"
)

// RatePolicy is a budget of Limit calls per rolling Window.
type RatePolicy struct {
	Limit  int
	Window time.Duration
}

// DefaultRatePolicies returns the built-in budgets.
func DefaultRatePolicies() map[string]RatePolicy {
	return map[string]RatePolicy{
		OpCreateUpdate: {Limit: 10, Window: time.Hour},
		OpReaction:     {Limit: 30, Window: time.Minute},
		OpAPI:          {Limit: 120, Window: time.Minute},
	}
}

// subWindows is how many counters a policy window is split into.
const subWindows = 60

// SlidingWindowLimiter counts calls in sub-window buckets and sums every
// bucket that overlaps the rolling window. Counters live in a shared store so
// every process sees the same budget.
type SlidingWindowLimiter struct {
	store    ports.CounterStore
	policies map[string]RatePolicy
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.RateLimiter = (*SlidingWindowLimiter)(nil)

// NewSlidingWindowLimiter creates a limiter. A nil clock defaults to time.Now.
func NewSlidingWindowLimiter(
	store ports.CounterStore,
	policies map[string]RatePolicy,
	metrics *Metrics,
	logger *slog.Logger,
	now func() time.Time,
) *SlidingWindowLimiter {
	if now == nil {
		now = time.Now
	}
	if policies == nil {
		policies = DefaultRatePolicies()
	}
	return &SlidingWindowLimiter{
		store:    store,
		policies: policies,
		metrics:  metrics,
		logger:   logger.With("component", "rate_limiter"),
		now:      now,
	}
}

// Allow counts one call against the budget for (operation, key).
// Operations without a policy are always allowed.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, operation, key string) (ports.RateDecision, error) {
	policy, ok := l.policies[operation]
	if !ok || policy.Limit <= 0 {
		return ports.RateDecision{Allowed: true, Remaining: math.MaxInt32}, nil
	}

	now := l.now().UTC()
	size := policy.bucketSize()
	current := now.Truncate(size)
	from := current.Add(-policy.Window)
	bucket := operation + ":" + key
	ttl := policy.Window + 2*size

	// Increment first so concurrent callers in other processes observe our
	// reservation. A denied call gives its slot back below.
	if _, err := l.store.Increment(ctx, bucket, current, 1, ttl); err != nil {
		return ports.RateDecision{}, fmt.Errorf("increment rate counter: %w", err)
	}

	counts, err := l.store.Counts(ctx, bucket, from)
	if err != nil {
		return ports.RateDecision{}, fmt.Errorf("read rate counters: %w", err)
	}

	total := 0
	for _, c := range counts {
		total += c.Count
	}

	if total <= policy.Limit {
		return ports.RateDecision{Allowed: true, Remaining: policy.Limit - total}, nil
	}

	if _, err := l.store.Increment(ctx, bucket, current, -1, ttl); err != nil {
		l.logger.WarnContext(ctx, "failed to release rate counter slot",
			"operation", operation,
			"error", err,
		)
	}

	l.metrics.rateLimited(ctx, operation)

	return ports.RateDecision{
		Allowed:    false,
		RetryAfter: retryAfter(policy, now, counts, total-policy.Limit),
	}, nil
}

// bucketSize is the width of one sub-window, never below a millisecond.
func (p RatePolicy) bucketSize() time.Duration {
	size := p.Window / subWindows
	if size < time.Millisecond {
		size = time.Millisecond
	}
	return size
}

// retryAfter returns how long until enough of the oldest buckets have left
// the rolling window to make room for one more call. excess counts the
// denied call itself.
func retryAfter(policy RatePolicy, now time.Time, counts []ports.WindowCount, excess int) time.Duration {
	size := policy.bucketSize()
	freed := 0
	for _, c := range counts {
		freed += c.Count
		if freed >= excess {
			if wait := c.Start.Add(policy.Window + size).Sub(now); wait > 0 {
				return wait
			}
			return size
		}
	}
	return policy.Window
}

// RunSweeper drops expired counter windows every interval until ctx is cancelled.
func (l *SlidingWindowLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := l.store.Sweep(ctx)
			if err != nil {
				l.logger.WarnContext(ctx, "failed to sweep rate counters", "error", err)
				continue
			}
			if removed > 0 {
				l.logger.DebugContext(ctx, "swept rate counters", "removed", removed)
			}
		}
	}
}
