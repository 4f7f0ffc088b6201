package memory

import (
	"context"
	"sync"

	"github.com/lorrc/event-updates-backend/internal/core/domain"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

// Broker is a loopback ports.Broker for single-process deployments and tests.
type Broker struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(domain.RealtimeEvent)
}

var _ ports.Broker = (*Broker)(nil)

// NewBroker creates a loopback broker.
func NewBroker() *Broker {
	return &Broker{handlers: make(map[int]func(domain.RealtimeEvent))}
}

// Publish delivers the event synchronously to every subscriber.
func (b *Broker) Publish(_ context.Context, event domain.RealtimeEvent) error {
	b.mu.RLock()
	handlers := make([]func(domain.RealtimeEvent), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (b *Broker) Subscribe(_ context.Context, handler func(domain.RealtimeEvent)) (func(), error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}, nil
}
