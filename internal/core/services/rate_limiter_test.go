package services_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lorrc/event-updates-backend/internal/adapters/secondary/memory"
	"github.com/lorrc/event-updates-backend/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(store *memory.CounterStore, now *time.Time) *services.SlidingWindowLimiter {
	return services.NewSlidingWindowLimiter(
		store,
		services.DefaultRatePolicies(),
		services.NewNoopMetrics(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		func() time.Time { return *now },
	)
}

func TestSlidingWindowLimiter_EleventhCreateRejected(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)
	store := memory.NewCounterStore(func() time.Time { return now })
	limiter := newTestLimiter(store, &now)

	// Ten calls spread over 45 minutes.
	for i := 1; i <= 10; i++ {
		decision, err := limiter.Allow(ctx, services.OpCreateUpdate, "organizer:event")
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "call %d should be allowed", i)
		assert.Equal(t, 10-i, decision.Remaining)
		now = now.Add(5 * time.Minute)
	}

	decision, err := limiter.Allow(ctx, services.OpCreateUpdate, "organizer:event")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	// The 12:10 bucket leaves the rolling hour at 13:11.
	assert.Equal(t, 11*time.Minute, decision.RetryAfter)

	// The denied call released its slot.
	count, err := store.Get(ctx, services.OpCreateUpdate+":organizer:event", now.Truncate(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	now = now.Add(decision.RetryAfter)
	decision, err = limiter.Allow(ctx, services.OpCreateUpdate, "organizer:event")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestSlidingWindowLimiter_RollingHour(t *testing.T) {
	ctx := context.Background()

	t.Run("calls late in one clock hour still count in the next", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 12, 50, 0, 0, time.UTC)
		store := memory.NewCounterStore(func() time.Time { return now })
		limiter := newTestLimiter(store, &now)

		for i := 0; i < 10; i++ {
			decision, err := limiter.Allow(ctx, services.OpCreateUpdate, "k")
			require.NoError(t, err)
			require.True(t, decision.Allowed)
		}

		now = time.Date(2026, 3, 1, 13, 30, 0, 0, time.UTC)
		decision, err := limiter.Allow(ctx, services.OpCreateUpdate, "k")
		require.NoError(t, err)
		assert.False(t, decision.Allowed)
		assert.Equal(t, 21*time.Minute, decision.RetryAfter)
	})

	t.Run("an empty rolling hour allows the next call", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
		store := memory.NewCounterStore(func() time.Time { return now })
		limiter := newTestLimiter(store, &now)

		for i := 0; i < 10; i++ {
			decision, err := limiter.Allow(ctx, services.OpCreateUpdate, "k")
			require.NoError(t, err)
			require.True(t, decision.Allowed)
		}

		now = time.Date(2026, 3, 1, 13, 2, 0, 0, time.UTC)
		decision, err := limiter.Allow(ctx, services.OpCreateUpdate, "k")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 9, decision.Remaining)
	})
}

func TestSlidingWindowLimiter_IndependentBudgets(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewCounterStore(func() time.Time { return now })
	limiter := newTestLimiter(store, &now)

	for i := 0; i < 30; i++ {
		decision, err := limiter.Allow(ctx, services.OpReaction, "user")
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	decision, err := limiter.Allow(ctx, services.OpReaction, "user")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	decision, err = limiter.Allow(ctx, services.OpCreateUpdate, "user:event")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = limiter.Allow(ctx, "unknown", "user")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
