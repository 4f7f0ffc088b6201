package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
)

// CreateUpdateParams defines the input for creating an update.
type CreateUpdateParams struct {
	EventRef   domain.EventRef
	Actor      domain.Actor
	Content    string
	MediaURLs  []string
	Priority   domain.UpdatePriority
	Moderation *domain.ModerationInput
	// ExcludeConnID suppresses the live echo to the sending connection.
	ExcludeConnID string
}

// EditUpdateParams defines the input for editing an update.
type EditUpdateParams struct {
	Edit          domain.EditParams
	Actor         domain.Actor
	ExcludeConnID string
}

// DeliveryOutcome reports the result of one delivery path.
type DeliveryOutcome string

const (
	DeliveryOK      DeliveryOutcome = "ok"
	DeliveryFailed  DeliveryOutcome = "failed"
	DeliverySkipped DeliveryOutcome = "skipped"
)

// DeliveryReport keeps delivery outcomes separate from the persistence result.
type DeliveryReport struct {
	Live     DeliveryOutcome
	Fallback DeliveryOutcome
	Targets  int
}

// CreateUpdateResult is returned by a successful create.
type CreateUpdateResult struct {
	Update   *domain.Update
	Delivery DeliveryReport
}

// UpdateService defines the core business operations for event updates.
type UpdateService interface {
	ValidateOrganizer(ctx context.Context, ref domain.EventRef, actor domain.Actor) (*domain.Event, error)
	ValidateReader(ctx context.Context, ref domain.EventRef, actor domain.Actor) (*domain.Event, error)
	CreateUpdate(ctx context.Context, params CreateUpdateParams) (*CreateUpdateResult, error)
	GetUpdate(ctx context.Context, updateID uuid.UUID, actor domain.Actor) (*domain.Update, error)
	ListUpdates(ctx context.Context, ref domain.EventRef, actor domain.Actor, params domain.ListUpdatesParams) ([]*domain.Update, error)
	ListUpdatesSince(ctx context.Context, ref domain.EventRef, since time.Time, onlyApproved bool) ([]*domain.Update, error)
	MarkRead(ctx context.Context, updateID uuid.UUID, actor domain.Actor) error
	React(ctx context.Context, updateID uuid.UUID, actor domain.Actor, reaction domain.ReactionType, excludeConnID string) error
	ReactionSummary(ctx context.Context, updateID uuid.UUID, actor domain.Actor) (*domain.ReactionSummary, error)
	EditUpdate(ctx context.Context, params EditUpdateParams) (*domain.Update, error)
	RemoveUpdate(ctx context.Context, updateID uuid.UUID, actor domain.Actor, excludeConnID string) error
}

// RateDecision is the result of a rate limit check.
type RateDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter enforces per-actor, per-operation budgets.
type RateLimiter interface {
	Allow(ctx context.Context, operation string, key string) (RateDecision, error)
}

// PresenceTracker tracks which users are online in which event rooms.
type PresenceTracker interface {
	MarkOnline(ctx context.Context, eventID, userID uuid.UUID, ttl time.Duration) error
	MarkOffline(ctx context.Context, eventID, userID uuid.UUID) error
	OnlineUsers(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error)
	// LastSeen returns nil when the user has never been seen in the event.
	LastSeen(ctx context.Context, eventID, userID uuid.UUID) (*time.Time, error)
}

// Broker fans room events out to every process holding connections.
type Broker interface {
	Publish(ctx context.Context, event domain.RealtimeEvent) error
	// Subscribe delivers every published event to handler until the returned
	// cancel function is called.
	Subscribe(ctx context.Context, handler func(domain.RealtimeEvent)) (func(), error)
}

// EventBroadcaster sends realtime events to an event room.
type EventBroadcaster interface {
	Broadcast(ctx context.Context, event domain.RealtimeEvent) error
}

// PushNotification is what the notifier sends to offline users.
type PushNotification struct {
	EventID  uuid.UUID
	UpdateID string
	Title    string
	Body     string
	Priority string
}

// PushNotifier delivers notifications to users who are not connected.
type PushNotifier interface {
	Send(ctx context.Context, userIDs []uuid.UUID, notification PushNotification) error
}

// IdentityVerifier turns a presented credential into a verified actor.
type IdentityVerifier interface {
	Verify(token string) (domain.Actor, error)
}

// TransactionManager defines the port for running atomic operations.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
