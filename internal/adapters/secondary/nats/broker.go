package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
	"github.com/nats-io/nats.go"
)

const subjectPrefix = "updates.events."

// Subject returns the subject room events for eventID are published on.
func Subject(eventID uuid.UUID) string {
	return subjectPrefix + eventID.String()
}

// Broker fans room events out to every process over NATS core pub/sub.
// Every process subscribes to all rooms and drops events for rooms it has
// no local members in.
type Broker struct {
	nc     *nats.Conn
	logger *slog.Logger
}

var _ ports.Broker = (*Broker)(nil)

func NewBroker(nc *nats.Conn, logger *slog.Logger) *Broker {
	return &Broker{
		nc:     nc,
		logger: logger.With("component", "nats_broker"),
	}
}

func (b *Broker) Publish(_ context.Context, event domain.RealtimeEvent) error {
	data, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(Subject(event.EventID), data); err != nil {
		return fmt.Errorf("publish room event: %w", err)
	}
	return nil
}

func (b *Broker) Subscribe(_ context.Context, handler func(domain.RealtimeEvent)) (func(), error) {
	sub, err := b.nc.Subscribe(subjectPrefix+"*", func(msg *nats.Msg) {
		event, err := decodeEvent(msg.Data)
		if err != nil {
			b.logger.Warn("dropping malformed room event", "subject", msg.Subject, "error", err)
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to room events: %w", err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			b.logger.Warn("failed to unsubscribe from room events", "error", err)
		}
	}, nil
}
