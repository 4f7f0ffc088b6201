package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

type presenceKey struct {
	eventID uuid.UUID
	userID  uuid.UUID
}

// PresenceTracker keeps presence in process memory. Online entries expire
// after their TTL; last-seen entries never expire.
type PresenceTracker struct {
	mu       sync.RWMutex
	online   map[uuid.UUID]map[uuid.UUID]time.Time
	lastSeen map[presenceKey]time.Time
	now      func() time.Time
}

var _ ports.PresenceTracker = (*PresenceTracker)(nil)

// NewPresenceTracker creates an empty tracker. A nil clock defaults to time.Now.
func NewPresenceTracker(now func() time.Time) *PresenceTracker {
	if now == nil {
		now = time.Now
	}
	return &PresenceTracker{
		online:   make(map[uuid.UUID]map[uuid.UUID]time.Time),
		lastSeen: make(map[presenceKey]time.Time),
		now:      now,
	}
}

func (p *PresenceTracker) MarkOnline(_ context.Context, eventID, userID uuid.UUID, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now().UTC()
	users, ok := p.online[eventID]
	if !ok {
		users = make(map[uuid.UUID]time.Time)
		p.online[eventID] = users
	}
	users[userID] = now.Add(ttl)
	p.lastSeen[presenceKey{eventID, userID}] = now
	return nil
}

func (p *PresenceTracker) MarkOffline(_ context.Context, eventID, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if users, ok := p.online[eventID]; ok {
		delete(users, userID)
		if len(users) == 0 {
			delete(p.online, eventID)
		}
	}
	p.lastSeen[presenceKey{eventID, userID}] = p.now().UTC()
	return nil
}

func (p *PresenceTracker) OnlineUsers(_ context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := p.now()
	users := p.online[eventID]
	out := make([]uuid.UUID, 0, len(users))
	for id, expiresAt := range users {
		if now.Before(expiresAt) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (p *PresenceTracker) LastSeen(_ context.Context, eventID, userID uuid.UUID) (*time.Time, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ts, ok := p.lastSeen[presenceKey{eventID, userID}]
	if !ok {
		return nil, nil
	}
	return &ts, nil
}
