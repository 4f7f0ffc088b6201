package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
	"github.com/nats-io/nats.go"
)

// Bucket names.
const (
	PresenceBucket = "PRESENCE"
	LastSeenBucket = "LAST_SEEN"
)

// Presence keeps online entries in a KV bucket whose MaxAge is the presence
// TTL, so an entry disappears unless refreshed. Last-seen timestamps live in
// a second bucket without expiry. Keys are "<event>.<user>".
type Presence struct {
	online   nats.KeyValue
	lastSeen nats.KeyValue
	now      func() time.Time
	logger   *slog.Logger
}

var _ ports.PresenceTracker = (*Presence)(nil)

// NewPresence binds to, or creates, the presence buckets. ttl is the bucket
// MaxAge; the per-call ttl of MarkOnline cannot override it.
func NewPresence(js nats.JetStreamContext, ttl time.Duration, logger *slog.Logger) (*Presence, error) {
	online, err := ensureBucket(js, &nats.KeyValueConfig{
		Bucket:      PresenceBucket,
		Description: "online users per event room",
		History:     1,
		TTL:         ttl,
		Storage:     nats.MemoryStorage,
	})
	if err != nil {
		return nil, err
	}

	lastSeen, err := ensureBucket(js, &nats.KeyValueConfig{
		Bucket:      LastSeenBucket,
		Description: "last time a user was seen in an event room",
		History:     1,
		Storage:     nats.FileStorage,
	})
	if err != nil {
		return nil, err
	}

	return &Presence{
		online:   online,
		lastSeen: lastSeen,
		now:      time.Now,
		logger:   logger.With("component", "nats_presence"),
	}, nil
}

func ensureBucket(js nats.JetStreamContext, cfg *nats.KeyValueConfig) (nats.KeyValue, error) {
	kv, err := js.KeyValue(cfg.Bucket)
	if err == nil {
		return kv, nil
	}
	if !errors.Is(err, nats.ErrBucketNotFound) {
		return nil, fmt.Errorf("bind kv bucket %s: %w", cfg.Bucket, err)
	}

	kv, err = js.CreateKeyValue(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kv bucket %s: %w", cfg.Bucket, err)
	}
	return kv, nil
}

func presenceKey(eventID, userID uuid.UUID) string {
	return eventID.String() + "." + userID.String()
}

func (p *Presence) MarkOnline(_ context.Context, eventID, userID uuid.UUID, _ time.Duration) error {
	now := p.now().UTC()
	stamp := []byte(now.Format(time.RFC3339Nano))
	key := presenceKey(eventID, userID)

	if _, err := p.online.Put(key, stamp); err != nil {
		return fmt.Errorf("mark online: %w", err)
	}
	if _, err := p.lastSeen.Put(key, stamp); err != nil {
		return fmt.Errorf("record last seen: %w", err)
	}
	return nil
}

func (p *Presence) MarkOffline(_ context.Context, eventID, userID uuid.UUID) error {
	key := presenceKey(eventID, userID)
	stamp := []byte(p.now().UTC().Format(time.RFC3339Nano))

	if _, err := p.lastSeen.Put(key, stamp); err != nil {
		return fmt.Errorf("record last seen: %w", err)
	}
	if err := p.online.Delete(key); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("mark offline: %w", err)
	}
	return nil
}

// OnlineUsers replays the current entries for the event and stops at the
// end of the initial snapshot.
func (p *Presence) OnlineUsers(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	watcher, err := p.online.Watch(eventID.String()+".*", nats.IgnoreDeletes(), nats.MetaOnly(), nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("watch presence: %w", err)
	}
	defer func() {
		if err := watcher.Stop(); err != nil {
			p.logger.Debug("failed to stop presence watcher", "error", err)
		}
	}()

	users := make([]uuid.UUID, 0)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case entry, ok := <-watcher.Updates():
			if !ok || entry == nil {
				return users, nil
			}
			_, user, found := strings.Cut(entry.Key(), ".")
			if !found {
				continue
			}
			id, err := uuid.Parse(user)
			if err != nil {
				p.logger.Warn("skipping malformed presence key", "key", entry.Key())
				continue
			}
			users = append(users, id)
		}
	}
}

func (p *Presence) LastSeen(_ context.Context, eventID, userID uuid.UUID) (*time.Time, error) {
	entry, err := p.lastSeen.Get(presenceKey(eventID, userID))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read last seen: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, string(entry.Value()))
	if err != nil {
		return nil, fmt.Errorf("parse last seen: %w", err)
	}
	return &ts, nil
}
