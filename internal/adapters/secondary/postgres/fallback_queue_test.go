package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackQueue_Lifecycle(t *testing.T) {
	ctx := context.Background()
	queue := NewFallbackQueue(testPool)
	_, err := testPool.Exec(ctx, `DELETE FROM fallback_jobs`)
	require.NoError(t, err)

	target := uuid.New()
	job := &domain.FallbackJob{
		EventID: uuid.New(),
		Payload: domain.FallbackPayload{
			Update:        domain.UpdateSnapshot{ID: uuid.NewString(), Content: "Rain delay"},
			TargetUserIDs: []uuid.UUID{target},
		},
	}
	require.NoError(t, queue.Enqueue(ctx, job))
	assert.NotEqual(t, uuid.Nil, job.ID)

	claimed, err := queue.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, job.ID, claimed[0].ID)
	assert.Equal(t, "Rain delay", claimed[0].Payload.Update.Content)
	assert.Equal(t, []uuid.UUID{target}, claimed[0].Payload.TargetUserIDs)

	// Leased jobs are invisible to other claimers.
	again, err := queue.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, queue.Reschedule(ctx, job.ID, -time.Second, "timeout"))

	retried, err := queue.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, retried, 1)
	assert.Equal(t, 1, retried[0].Attempts)
	assert.Equal(t, "timeout", retried[0].LastError)

	require.NoError(t, queue.Complete(ctx, job.ID))
	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestFallbackQueue_ExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	queue := NewFallbackQueue(testPool)
	_, err := testPool.Exec(ctx, `DELETE FROM fallback_jobs`)
	require.NoError(t, err)

	job := &domain.FallbackJob{EventID: uuid.New()}
	require.NoError(t, queue.Enqueue(ctx, job))

	claimed, err := queue.Claim(ctx, 1, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	time.Sleep(20 * time.Millisecond)

	reclaimed, err := queue.Claim(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, job.ID, reclaimed[0].ID)

	require.NoError(t, queue.Discard(ctx, job.ID, "gave up"))
	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestFallbackQueue_FutureJobsAreNotDue(t *testing.T) {
	ctx := context.Background()
	queue := NewFallbackQueue(testPool)
	_, err := testPool.Exec(ctx, `DELETE FROM fallback_jobs`)
	require.NoError(t, err)

	require.NoError(t, queue.Enqueue(ctx, &domain.FallbackJob{EventID: uuid.New(), NextRunAt: time.Now().Add(time.Hour)}))

	claimed, err := queue.Claim(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestCounterStore(t *testing.T) {
	ctx := context.Background()
	store := NewCounterStore(testPool)
	key := "reaction:" + uuid.NewString()
	window := time.Now().UTC().Truncate(time.Minute)

	n, err := store.Increment(ctx, key, window, 1, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.Increment(ctx, key, window, 1, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.Increment(ctx, key, window, -5, 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = store.Get(ctx, key, window.Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = store.Increment(ctx, key, window.Add(-3*time.Minute), 2, 2*time.Hour)
	require.NoError(t, err)
	counts, err := store.Counts(ctx, key, window.Add(-10*time.Minute))
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.True(t, counts[0].Start.Equal(window.Add(-3*time.Minute)))
	assert.Equal(t, 2, counts[0].Count)
	assert.True(t, counts[1].Start.Equal(window))

	old := time.Now().UTC().Add(-time.Hour).Truncate(time.Minute)
	_, err = store.Increment(ctx, key, old, 1, time.Minute)
	require.NoError(t, err)

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, 1)
}
