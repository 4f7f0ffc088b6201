package push

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

// LogNotifier is a secondary adapter that logs push notifications instead of
// handing them to a push provider. It implements ports.PushNotifier.
type LogNotifier struct {
	logger *slog.Logger
}

var _ ports.PushNotifier = (*LogNotifier)(nil)

// NewLogNotifier creates a notifier that writes to logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "push_notifier")}
}

// Send logs one line per recipient.
func (n *LogNotifier) Send(ctx context.Context, userIDs []uuid.UUID, notification ports.PushNotification) error {
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		n.logger.InfoContext(ctx, "push notification sent",
			"to_user", userID,
			"event_id", notification.EventID,
			"update_id", notification.UpdateID,
			"title", notification.Title,
			"priority", notification.Priority,
		)
	}
	return nil
}
