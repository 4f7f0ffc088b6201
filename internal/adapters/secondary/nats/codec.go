package nats

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("nats: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("nats: CBOR decoder initialization failed: " + err.Error())
	}
}

// envelope is the wire form of a room event. Payload stays JSON because it is
// forwarded to websocket clients byte for byte.
type envelope struct {
	Type          string    `cbor:"1,keyasint"`
	EventID       uuid.UUID `cbor:"2,keyasint"`
	Payload       []byte    `cbor:"3,keyasint"`
	ExcludeConnID string    `cbor:"4,keyasint,omitempty"`
}

func encodeEvent(event domain.RealtimeEvent) ([]byte, error) {
	data, err := encMode.Marshal(envelope{
		Type:          string(event.Type),
		EventID:       event.EventID,
		Payload:       event.Payload,
		ExcludeConnID: event.ExcludeConnID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode room event: %w", err)
	}
	return data, nil
}

func decodeEvent(data []byte) (domain.RealtimeEvent, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return domain.RealtimeEvent{}, fmt.Errorf("decode room event: %w", err)
	}
	return domain.RealtimeEvent{
		Type:          domain.EventType(env.Type),
		EventID:       env.EventID,
		Payload:       env.Payload,
		ExcludeConnID: env.ExcludeConnID,
	}, nil
}
