package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
)

// UpdateRepository persists updates.
type UpdateRepository interface {
	Create(ctx context.Context, update *domain.Update) (*domain.Update, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Update, error)
	// GetByIDForUpdate locks the row for the enclosing transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Update, error)
	Save(ctx context.Context, update *domain.Update) (*domain.Update, error)
	// ListByEvent returns non-deleted updates newest first.
	ListByEvent(ctx context.Context, eventID uuid.UUID, params domain.ListUpdatesParams) ([]*domain.Update, error)
	// ListSince returns non-deleted updates created strictly after since, oldest first.
	ListSince(ctx context.Context, eventID uuid.UUID, since time.Time, onlyApproved bool, limit int) ([]*domain.Update, error)
}

// EngagementRepository persists reactions and read receipts.
type EngagementRepository interface {
	UpsertReaction(ctx context.Context, reaction *domain.Reaction) error
	// MarkRead is idempotent. It reports whether a new receipt was written.
	MarkRead(ctx context.Context, receipt *domain.ReadReceipt) (bool, error)
	ReactionCounts(ctx context.Context, updateID uuid.UUID) (map[domain.ReactionType]int, error)
}

// EventDirectory answers questions about events and ticket ownership owned
// by the surrounding platform.
type EventDirectory interface {
	Resolve(ctx context.Context, ref domain.EventRef) (*domain.Event, error)
	HasTicket(ctx context.Context, eventID, userID uuid.UUID) (bool, error)
	ListTicketHolders(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error)
}

// FallbackQueue is a durable queue of offline delivery jobs.
type FallbackQueue interface {
	Enqueue(ctx context.Context, job *domain.FallbackJob) error
	// Claim leases up to limit due jobs. Leased jobs are invisible to other
	// claimers until the lease expires.
	Claim(ctx context.Context, limit int, lease time.Duration) ([]*domain.FallbackJob, error)
	Complete(ctx context.Context, jobID uuid.UUID) error
	// Reschedule makes the job due again delay after the store's current time.
	Reschedule(ctx context.Context, jobID uuid.UUID, delay time.Duration, lastErr string) error
	Discard(ctx context.Context, jobID uuid.UUID, lastErr string) error
}

// WindowCount is the counter for one sub-window of a rate limit bucket.
type WindowCount struct {
	Start time.Time
	Count int
}

// CounterStore holds fixed-window counters shared by every process.
type CounterStore interface {
	// Increment adds delta to the counter for key in the window starting at
	// windowStart and returns the new value.
	Increment(ctx context.Context, key string, windowStart time.Time, delta int, ttl time.Duration) (int, error)
	Get(ctx context.Context, key string, windowStart time.Time) (int, error)
	// Counts returns the unexpired windows of key starting at or after from,
	// oldest first.
	Counts(ctx context.Context, key string, from time.Time) ([]WindowCount, error)
	// Sweep drops expired windows and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}
