package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lorrc/event-updates-backend/internal/core/domain"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

const deliverBufferSize = 1024

// Hub tracks local connections and their rooms. Room events are published
// through the broker and delivered by every process to its own members.
type Hub struct {
	broker ports.Broker

	// clients maps connection IDs to their client
	clients map[string]*Client

	// rooms maps event IDs to the clients that joined them
	rooms map[uuid.UUID]map[*Client]struct{}

	// deliver carries events received from the broker to the run loop
	deliver chan domain.RealtimeEvent

	// mu protects the clients and rooms maps
	mu sync.RWMutex

	logger *slog.Logger
}

var (
	_ ports.EventBroadcaster = (*Hub)(nil)
	_ Rooms                  = (*Hub)(nil)
)

// NewHub creates a hub publishing through broker.
func NewHub(broker ports.Broker, logger *slog.Logger) *Hub {
	return &Hub{
		broker:  broker,
		clients: make(map[string]*Client),
		rooms:   make(map[uuid.UUID]map[*Client]struct{}),
		deliver: make(chan domain.RealtimeEvent, deliverBufferSize),
		logger:  logger.With("component", "websocket_hub"),
	}
}

// Broadcast publishes an event to the room on every process.
func (h *Hub) Broadcast(ctx context.Context, event domain.RealtimeEvent) error {
	if err := h.broker.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Run subscribes to the broker and delivers room events to local members
// until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	unsubscribe, err := h.broker.Subscribe(ctx, h.receive)
	if err != nil {
		return fmt.Errorf("subscribe to broker: %w", err)
	}
	defer unsubscribe()

	h.logger.Info("websocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("websocket hub stopped")
			return nil
		case event := <-h.deliver:
			h.deliverLocal(event)
		}
	}
}

// receive is the broker callback. It never blocks the broker.
func (h *Hub) receive(event domain.RealtimeEvent) {
	select {
	case h.deliver <- event:
	default:
		h.logger.Warn("delivery buffer full, dropping event",
			"event_type", event.Type,
			"event_id", event.EventID,
		)
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.Session.ConnID] = client

	h.logger.Info("client registered",
		"conn_id", client.Session.ConnID,
		"user_id", client.Session.Actor.UserID,
		"total_connections", len(h.clients),
	)
}

// Unregister removes a client from the hub and all rooms and closes its send
// channel. It is safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.Session.ConnID]; !ok {
		return
	}
	delete(h.clients, client.Session.ConnID)

	for eventID := range client.rooms {
		h.removeFromRoom(client, eventID)
	}
	client.CloseSend()

	h.logger.Info("client unregistered",
		"conn_id", client.Session.ConnID,
		"user_id", client.Session.Actor.UserID,
	)
}

// Join adds the session's connection to an event room.
func (h *Hub) Join(s *Session, eventID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[s.ConnID]
	if !ok {
		return
	}
	if h.rooms[eventID] == nil {
		h.rooms[eventID] = make(map[*Client]struct{})
	}
	h.rooms[eventID][client] = struct{}{}
	client.rooms[eventID] = struct{}{}

	h.logger.Debug("client joined room",
		"conn_id", s.ConnID,
		"event_id", eventID,
		"room_size", len(h.rooms[eventID]),
	)
}

// Leave removes the session's connection from an event room and reports
// whether the same user still has another connection in it.
func (h *Hub) Leave(s *Session, eventID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[s.ConnID]; ok {
		h.removeFromRoom(client, eventID)
	}

	for other := range h.rooms[eventID] {
		if other.Session.Actor.UserID == s.Actor.UserID {
			return true
		}
	}
	return false
}

// removeFromRoom must be called with mu held.
func (h *Hub) removeFromRoom(client *Client, eventID uuid.UUID) {
	delete(client.rooms, eventID)
	if room, ok := h.rooms[eventID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, eventID)
		}
	}
}

// deliverLocal sends an event to the local members of its room.
func (h *Hub) deliverLocal(event domain.RealtimeEvent) {
	h.mu.RLock()
	room, ok := h.rooms[event.EventID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// Copy the client list to avoid holding the lock while sending
	clients := make([]*Client, 0, len(room))
	for client := range room {
		if client.Session.ConnID != event.ExcludeConnID {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := encodeOutbound(event.EventID, event.Type, "", event.Payload)
	if err != nil {
		h.logger.Error("failed to encode room event", "event_type", event.Type, "error", err)
		return
	}

	h.logger.Debug("delivering room event",
		"event_type", event.Type,
		"event_id", event.EventID,
		"client_count", len(clients),
	)

	for _, client := range clients {
		if !client.enqueue(data) {
			// Send buffer full; drop the connection rather than stall the room.
			h.logger.Warn("client send buffer full, unregistering",
				"conn_id", client.Session.ConnID,
				"user_id", client.Session.Actor.UserID,
			)
			client.closeSendWith(ClosePolicyViolated, "slow consumer")
			h.Unregister(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.Unregister(client)
	}
}

// ClientCount returns the number of local connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of rooms with local members.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// ClientsInRoom returns the number of local connections in an event room.
func (h *Hub) ClientsInRoom(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}
