package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	"github.com/lorrc/event-updates-backend/internal/core/mocks"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
	"github.com/lorrc/event-updates-backend/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type workerFixture struct {
	worker   *services.FallbackWorker
	queue    *mocks.MockFallbackQueue
	presence *mocks.MockPresenceTracker
	notifier *mocks.MockPushNotifier
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	f := &workerFixture{
		queue:    mocks.NewMockFallbackQueue(),
		presence: mocks.NewMockPresenceTracker(),
		notifier: mocks.NewMockPushNotifier(),
	}
	f.worker = services.NewFallbackWorker(
		f.queue,
		f.presence,
		f.notifier,
		services.NewNoopMetrics(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		services.FallbackWorkerConfig{
			MaxAttempts: 3,
			BaseBackoff: 2 * time.Second,
			MaxBackoff:  10 * time.Second,
			Concurrency: 2,
			BatchSize:   10,
		},
	)
	return f
}

func newJob(targets ...uuid.UUID) *domain.FallbackJob {
	return &domain.FallbackJob{
		ID:      uuid.New(),
		EventID: uuid.New(),
		Payload: domain.FallbackPayload{
			Update: domain.UpdateSnapshot{
				ID:       uuid.NewString(),
				Content:  "Parking lot B is closed",
				Priority: string(domain.PriorityNormal),
			},
			TargetUserIDs: targets,
		},
	}
}

func TestFallbackWorker_ProcessJob(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	t.Run("everyone online completes without sending", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := newJob(alice, bob)

		f.presence.On("OnlineUsers", ctx, job.EventID).Return([]uuid.UUID{alice, bob}, nil)
		f.queue.On("Complete", ctx, job.ID).Return(nil)

		require.NoError(t, f.worker.ProcessJob(ctx, job))
		f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
		f.queue.AssertExpectations(t)
	})

	t.Run("sends only to offline targets", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := newJob(alice, bob)

		f.presence.On("OnlineUsers", ctx, job.EventID).Return([]uuid.UUID{alice}, nil)
		f.notifier.On("Send", ctx, []uuid.UUID{bob}, mock.MatchedBy(func(n ports.PushNotification) bool {
			return n.Title == "New event update" && n.Body == "Parking lot B is closed"
		})).Return(nil)
		f.queue.On("Complete", ctx, job.ID).Return(nil)

		require.NoError(t, f.worker.ProcessJob(ctx, job))
		f.notifier.AssertExpectations(t)
		f.queue.AssertExpectations(t)
	})

	t.Run("presence failure treats everyone as offline", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := newJob(alice, bob)

		f.presence.On("OnlineUsers", ctx, job.EventID).Return(nil, errors.New("kv unavailable"))
		f.notifier.On("Send", ctx, []uuid.UUID{alice, bob}, mock.Anything).Return(nil)
		f.queue.On("Complete", ctx, job.ID).Return(nil)

		require.NoError(t, f.worker.ProcessJob(ctx, job))
		f.notifier.AssertExpectations(t)
	})

	t.Run("failed send is rescheduled with backoff", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := newJob(alice)
		job.Attempts = 1

		f.presence.On("OnlineUsers", ctx, job.EventID).Return([]uuid.UUID{}, nil)
		f.notifier.On("Send", ctx, []uuid.UUID{alice}, mock.Anything).Return(errors.New("gateway timeout"))
		// Second attempt waits base * 2.
		f.queue.On("Reschedule", ctx, job.ID, 4*time.Second, "gateway timeout").Return(nil)

		require.NoError(t, f.worker.ProcessJob(ctx, job))
		f.queue.AssertExpectations(t)
	})

	t.Run("job is discarded after max attempts", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := newJob(alice)
		job.Attempts = 2

		f.presence.On("OnlineUsers", ctx, job.EventID).Return([]uuid.UUID{}, nil)
		f.notifier.On("Send", ctx, []uuid.UUID{alice}, mock.Anything).Return(errors.New("gateway timeout"))
		f.queue.On("Discard", ctx, job.ID, "gateway timeout").Return(nil)

		require.NoError(t, f.worker.ProcessJob(ctx, job))
		f.queue.AssertExpectations(t)
		f.queue.AssertNotCalled(t, "Reschedule", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("high priority uses important title and truncates body", func(t *testing.T) {
		f := newWorkerFixture(t)
		job := newJob(alice)
		job.Payload.Update.Priority = string(domain.PriorityHigh)
		job.Payload.Update.Content = strings.Repeat("a", 300)

		f.presence.On("OnlineUsers", ctx, job.EventID).Return([]uuid.UUID{}, nil)
		f.notifier.On("Send", ctx, []uuid.UUID{alice}, mock.MatchedBy(func(n ports.PushNotification) bool {
			return n.Title == "Important event update" && len([]rune(n.Body)) == 140
		})).Return(nil)
		f.queue.On("Complete", ctx, job.ID).Return(nil)

		require.NoError(t, f.worker.ProcessJob(ctx, job))
		f.notifier.AssertExpectations(t)
	})
}

func TestFallbackWorker_ProcessBatch(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t)

	jobs := []*domain.FallbackJob{newJob(uuid.New()), newJob(uuid.New()), newJob(uuid.New())}
	f.queue.On("Claim", ctx, 10, time.Minute).Return(jobs, nil)
	for _, job := range jobs {
		f.presence.On("OnlineUsers", ctx, job.EventID).Return(job.Payload.TargetUserIDs, nil)
		f.queue.On("Complete", ctx, job.ID).Return(nil)
	}

	n, err := f.worker.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	f.queue.AssertExpectations(t)
}

func TestFallbackWorker_ProcessBatchClaimError(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t)

	f.queue.On("Claim", ctx, 10, time.Minute).Return(nil, errors.New("connection reset"))

	n, err := f.worker.ProcessBatch(ctx)
	require.Error(t, err)
	assert.Zero(t, n)
}
