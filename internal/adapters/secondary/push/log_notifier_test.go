package push

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier_Send(t *testing.T) {
	var buf bytes.Buffer
	notifier := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := notifier.Send(context.Background(), []uuid.UUID{uuid.New(), uuid.New()}, ports.PushNotification{
		EventID:  uuid.New(),
		UpdateID: uuid.NewString(),
		Title:    "New event update",
		Body:     "Doors open",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(buf.String(), "push notification sent"))
}

func TestLogNotifier_SendCancelled(t *testing.T) {
	var buf bytes.Buffer
	notifier := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := notifier.Send(ctx, []uuid.UUID{uuid.New()}, ports.PushNotification{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, buf.String())
}
