package websocket

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/lorrc/event-updates-backend/internal/adapters/primary/validation"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
)

// Client to server message types.
const (
	MsgJoinEvent      = "join:event"
	MsgLeaveEvent     = "leave:event"
	MsgPing           = "ping"
	MsgReconnectFlush = "reconnect:flush"
	MsgCreateUpdate   = "create:update"
	MsgReactUpdate    = "react:update"
	MsgMarkRead       = "mark:read"
	MsgEditUpdate     = "edit:update"
	MsgDeleteUpdate   = "delete:update"
	MsgRequestUpdates = "request:updates"
)

// InboundMessage is a frame sent by a client.
type InboundMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// OutboundMessage is a frame sent to a client.
type OutboundMessage struct {
	Type      domain.EventType `json:"type"`
	EventID   string           `json:"eventId,omitempty"`
	RequestID string           `json:"requestId,omitempty"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}

func encodeOutbound(eventID uuid.UUID, eventType domain.EventType, requestID string, payload json.RawMessage) ([]byte, error) {
	msg := OutboundMessage{
		Type:      eventType,
		RequestID: requestID,
		Payload:   payload,
	}
	if eventID != uuid.Nil {
		msg.EventID = eventID.String()
	}
	return json.Marshal(msg)
}

func errMalformedMessage(err error) error {
	if err == nil {
		err = apperrors.ErrBadRequest
	}
	return apperrors.NewBadRequestError(err, "Malformed message")
}

type eventPayload struct {
	EventID string `json:"eventId"`
}

type updatePayload struct {
	UpdateID string `json:"updateId"`
}

type createUpdatePayload struct {
	EventID string `json:"eventId"`
	validation.CreateUpdateRequest
}

type editUpdatePayload struct {
	UpdateID string `json:"updateId"`
	validation.EditUpdateRequest
}

type reactPayload struct {
	UpdateID string `json:"updateId"`
	validation.ReactRequest
}

type requestUpdatesPayload struct {
	EventID string `json:"eventId"`
	Limit   int    `json:"limit"`
	Before  string `json:"before"`
}
