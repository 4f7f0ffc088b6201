package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockUpdateRepository is a mock implementation of ports.UpdateRepository
type MockUpdateRepository struct {
	mock.Mock
}

func NewMockUpdateRepository() *MockUpdateRepository {
	return &MockUpdateRepository{}
}

func (m *MockUpdateRepository) Create(ctx context.Context, update *domain.Update) (*domain.Update, error) {
	args := m.Called(ctx, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if fn, ok := args.Get(0).(func(context.Context, *domain.Update) *domain.Update); ok {
		return fn(ctx, update), args.Error(1)
	}
	return args.Get(0).(*domain.Update), args.Error(1)
}

func (m *MockUpdateRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Update, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Update), args.Error(1)
}

func (m *MockUpdateRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Update, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Update), args.Error(1)
}

func (m *MockUpdateRepository) Save(ctx context.Context, update *domain.Update) (*domain.Update, error) {
	args := m.Called(ctx, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	if fn, ok := args.Get(0).(func(context.Context, *domain.Update) *domain.Update); ok {
		return fn(ctx, update), args.Error(1)
	}
	return args.Get(0).(*domain.Update), args.Error(1)
}

func (m *MockUpdateRepository) ListByEvent(ctx context.Context, eventID uuid.UUID, params domain.ListUpdatesParams) ([]*domain.Update, error) {
	args := m.Called(ctx, eventID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Update), args.Error(1)
}

func (m *MockUpdateRepository) ListSince(ctx context.Context, eventID uuid.UUID, since time.Time, onlyApproved bool, limit int) ([]*domain.Update, error) {
	args := m.Called(ctx, eventID, since, onlyApproved, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Update), args.Error(1)
}

// MockEngagementRepository is a mock implementation of ports.EngagementRepository
type MockEngagementRepository struct {
	mock.Mock
}

func NewMockEngagementRepository() *MockEngagementRepository {
	return &MockEngagementRepository{}
}

func (m *MockEngagementRepository) UpsertReaction(ctx context.Context, reaction *domain.Reaction) error {
	args := m.Called(ctx, reaction)
	return args.Error(0)
}

func (m *MockEngagementRepository) MarkRead(ctx context.Context, receipt *domain.ReadReceipt) (bool, error) {
	args := m.Called(ctx, receipt)
	return args.Bool(0), args.Error(1)
}

func (m *MockEngagementRepository) ReactionCounts(ctx context.Context, updateID uuid.UUID) (map[domain.ReactionType]int, error) {
	args := m.Called(ctx, updateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.ReactionType]int), args.Error(1)
}

// MockEventDirectory is a mock implementation of ports.EventDirectory
type MockEventDirectory struct {
	mock.Mock
}

func NewMockEventDirectory() *MockEventDirectory {
	return &MockEventDirectory{}
}

func (m *MockEventDirectory) Resolve(ctx context.Context, ref domain.EventRef) (*domain.Event, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockEventDirectory) HasTicket(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, eventID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventDirectory) ListTicketHolders(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockFallbackQueue is a mock implementation of ports.FallbackQueue
type MockFallbackQueue struct {
	mock.Mock
}

func NewMockFallbackQueue() *MockFallbackQueue {
	return &MockFallbackQueue{}
}

func (m *MockFallbackQueue) Enqueue(ctx context.Context, job *domain.FallbackJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockFallbackQueue) Claim(ctx context.Context, limit int, lease time.Duration) ([]*domain.FallbackJob, error) {
	args := m.Called(ctx, limit, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FallbackJob), args.Error(1)
}

func (m *MockFallbackQueue) Complete(ctx context.Context, jobID uuid.UUID) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockFallbackQueue) Reschedule(ctx context.Context, jobID uuid.UUID, delay time.Duration, lastErr string) error {
	args := m.Called(ctx, jobID, delay, lastErr)
	return args.Error(0)
}

func (m *MockFallbackQueue) Discard(ctx context.Context, jobID uuid.UUID, lastErr string) error {
	args := m.Called(ctx, jobID, lastErr)
	return args.Error(0)
}

// MockRateLimiter is a mock implementation of ports.RateLimiter
type MockRateLimiter struct {
	mock.Mock
}

func NewMockRateLimiter() *MockRateLimiter {
	return &MockRateLimiter{}
}

func (m *MockRateLimiter) Allow(ctx context.Context, operation, key string) (ports.RateDecision, error) {
	args := m.Called(ctx, operation, key)
	return args.Get(0).(ports.RateDecision), args.Error(1)
}

// MockPresenceTracker is a mock implementation of ports.PresenceTracker
type MockPresenceTracker struct {
	mock.Mock
}

func NewMockPresenceTracker() *MockPresenceTracker {
	return &MockPresenceTracker{}
}

func (m *MockPresenceTracker) MarkOnline(ctx context.Context, eventID, userID uuid.UUID, ttl time.Duration) error {
	args := m.Called(ctx, eventID, userID, ttl)
	return args.Error(0)
}

func (m *MockPresenceTracker) MarkOffline(ctx context.Context, eventID, userID uuid.UUID) error {
	args := m.Called(ctx, eventID, userID)
	return args.Error(0)
}

func (m *MockPresenceTracker) OnlineUsers(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockPresenceTracker) LastSeen(ctx context.Context, eventID, userID uuid.UUID) (*time.Time, error) {
	args := m.Called(ctx, eventID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(ctx context.Context, event domain.RealtimeEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockPushNotifier is a mock implementation of ports.PushNotifier
type MockPushNotifier struct {
	mock.Mock
}

func NewMockPushNotifier() *MockPushNotifier {
	return &MockPushNotifier{}
}

func (m *MockPushNotifier) Send(ctx context.Context, userIDs []uuid.UUID, notification ports.PushNotification) error {
	args := m.Called(ctx, userIDs, notification)
	return args.Error(0)
}

// MockUpdateService is a mock implementation of ports.UpdateService
type MockUpdateService struct {
	mock.Mock
}

func NewMockUpdateService() *MockUpdateService {
	return &MockUpdateService{}
}

func (m *MockUpdateService) ValidateOrganizer(ctx context.Context, ref domain.EventRef, actor domain.Actor) (*domain.Event, error) {
	args := m.Called(ctx, ref, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockUpdateService) ValidateReader(ctx context.Context, ref domain.EventRef, actor domain.Actor) (*domain.Event, error) {
	args := m.Called(ctx, ref, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Event), args.Error(1)
}

func (m *MockUpdateService) CreateUpdate(ctx context.Context, params ports.CreateUpdateParams) (*ports.CreateUpdateResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.CreateUpdateResult), args.Error(1)
}

func (m *MockUpdateService) GetUpdate(ctx context.Context, updateID uuid.UUID, actor domain.Actor) (*domain.Update, error) {
	args := m.Called(ctx, updateID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Update), args.Error(1)
}

func (m *MockUpdateService) ListUpdates(ctx context.Context, ref domain.EventRef, actor domain.Actor, params domain.ListUpdatesParams) ([]*domain.Update, error) {
	args := m.Called(ctx, ref, actor, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Update), args.Error(1)
}

func (m *MockUpdateService) ListUpdatesSince(ctx context.Context, ref domain.EventRef, since time.Time, onlyApproved bool) ([]*domain.Update, error) {
	args := m.Called(ctx, ref, since, onlyApproved)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Update), args.Error(1)
}

func (m *MockUpdateService) MarkRead(ctx context.Context, updateID uuid.UUID, actor domain.Actor) error {
	args := m.Called(ctx, updateID, actor)
	return args.Error(0)
}

func (m *MockUpdateService) React(ctx context.Context, updateID uuid.UUID, actor domain.Actor, reaction domain.ReactionType, excludeConnID string) error {
	args := m.Called(ctx, updateID, actor, reaction, excludeConnID)
	return args.Error(0)
}

func (m *MockUpdateService) ReactionSummary(ctx context.Context, updateID uuid.UUID, actor domain.Actor) (*domain.ReactionSummary, error) {
	args := m.Called(ctx, updateID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReactionSummary), args.Error(1)
}

func (m *MockUpdateService) EditUpdate(ctx context.Context, params ports.EditUpdateParams) (*domain.Update, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Update), args.Error(1)
}

func (m *MockUpdateService) RemoveUpdate(ctx context.Context, updateID uuid.UUID, actor domain.Actor, excludeConnID string) error {
	args := m.Called(ctx, updateID, actor, excludeConnID)
	return args.Error(0)
}

// MockIdentityVerifier is a mock implementation of ports.IdentityVerifier
type MockIdentityVerifier struct {
	mock.Mock
}

func NewMockIdentityVerifier() *MockIdentityVerifier {
	return &MockIdentityVerifier{}
}

func (m *MockIdentityVerifier) Verify(token string) (domain.Actor, error) {
	args := m.Called(token)
	return args.Get(0).(domain.Actor), args.Error(1)
}

// PassthroughTxManager runs the function without a transaction.
type PassthroughTxManager struct{}

func (PassthroughTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
