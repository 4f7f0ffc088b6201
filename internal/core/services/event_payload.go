package services

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
)

// newRealtimeEvent renders payload as JSON and wraps it for a room broadcast.
func newRealtimeEvent(eventType domain.EventType, eventID uuid.UUID, payload any, excludeConnID string) (domain.RealtimeEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.RealtimeEvent{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return domain.RealtimeEvent{
		Type:          eventType,
		EventID:       eventID,
		Payload:       json.RawMessage(data),
		ExcludeConnID: excludeConnID,
	}, nil
}
