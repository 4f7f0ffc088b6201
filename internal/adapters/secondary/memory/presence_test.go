package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/adapters/secondary/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestPresenceTracker_OnlineExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := memory.NewPresenceTracker(clock.Now)
	eventID, userID := uuid.New(), uuid.New()

	require.NoError(t, tracker.MarkOnline(ctx, eventID, userID, 2*time.Minute))

	online, err := tracker.OnlineUsers(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{userID}, online)

	clock.Advance(3 * time.Minute)

	online, err = tracker.OnlineUsers(ctx, eventID)
	require.NoError(t, err)
	assert.Empty(t, online)

	// Last-seen survives TTL expiry.
	lastSeen, err := tracker.LastSeen(ctx, eventID, userID)
	require.NoError(t, err)
	require.NotNil(t, lastSeen)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), *lastSeen)
}

func TestPresenceTracker_MarkOfflineRecordsLastSeen(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := memory.NewPresenceTracker(clock.Now)
	eventID, userID := uuid.New(), uuid.New()

	require.NoError(t, tracker.MarkOnline(ctx, eventID, userID, 2*time.Minute))
	clock.Advance(30 * time.Second)
	require.NoError(t, tracker.MarkOffline(ctx, eventID, userID))

	online, err := tracker.OnlineUsers(ctx, eventID)
	require.NoError(t, err)
	assert.Empty(t, online)

	lastSeen, err := tracker.LastSeen(ctx, eventID, userID)
	require.NoError(t, err)
	require.NotNil(t, lastSeen)
	assert.Equal(t, clock.now, *lastSeen)
}

func TestPresenceTracker_LastSeenUnknownUser(t *testing.T) {
	tracker := memory.NewPresenceTracker(nil)

	lastSeen, err := tracker.LastSeen(context.Background(), uuid.New(), uuid.New())

	require.NoError(t, err)
	assert.Nil(t, lastSeen)
}

func TestCounterStore_IncrementAndExpire(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewCounterStore(clock.Now)
	window := clock.now.Truncate(time.Minute)

	n, err := store.Increment(ctx, "reaction:u1", window, 1, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.Increment(ctx, "reaction:u1", window, 1, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.Increment(ctx, "reaction:u1", window, -1, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	clock.Advance(3 * time.Minute)

	n, err = store.Get(ctx, "reaction:u1", window)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestCounterStore_CountsOldestFirst(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)}
	store := memory.NewCounterStore(clock.Now)
	base := clock.now.Truncate(time.Minute)

	for _, offset := range []time.Duration{0, -2 * time.Minute, -10 * time.Minute, -5 * time.Minute} {
		_, err := store.Increment(ctx, "update:create:k", base.Add(offset), 1, time.Hour)
		require.NoError(t, err)
	}
	_, err := store.Increment(ctx, "update:create:other", base, 4, time.Hour)
	require.NoError(t, err)

	counts, err := store.Counts(ctx, "update:create:k", base.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, counts, 3)
	assert.Equal(t, base.Add(-5*time.Minute), counts[0].Start)
	assert.Equal(t, base.Add(-2*time.Minute), counts[1].Start)
	assert.Equal(t, base, counts[2].Start)
	assert.Equal(t, 1, counts[2].Count)
}
