package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// EventType defines the type of real-time event.
type EventType string

// Server to client event types.
const (
	EventJoined     EventType = "joined:event"
	EventLeft       EventType = "left:event"
	EventPong       EventType = "pong"
	EventUpdate     EventType = "event:update"
	EventReaction   EventType = "event:reaction"
	EventBacklog    EventType = "event:backlog"
	EventUserOnline EventType = "user:online"
	EventUserOff    EventType = "user:offline"
	EventError      EventType = "error"
	EventUpdateList EventType = "updates:list"
	EventReadAck    EventType = "read:ack"
)

// UpdateAction qualifies an event:update broadcast.
type UpdateAction string

const (
	ActionNew     UpdateAction = "new"
	ActionEdited  UpdateAction = "edited"
	ActionDeleted UpdateAction = "deleted"
)

// RealtimeEvent is a room-scoped message fanned out to every connection in
// the event room across all processes.
type RealtimeEvent struct {
	Type    EventType       `json:"type"`
	EventID uuid.UUID       `json:"eventId"`
	Payload json.RawMessage `json:"payload"`
	// ExcludeConnID suppresses delivery to one connection, usually the sender.
	ExcludeConnID string `json:"excludeConnId,omitempty"`
}
