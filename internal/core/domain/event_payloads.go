package domain

import (
	"time"
)

// ModerationSnapshot matches the API response shape for moderation state.
type ModerationSnapshot struct {
	Status     string   `json:"status"`
	Flags      []string `json:"flags"`
	ReviewedBy *string  `json:"reviewedBy"`
	ReviewedAt *string  `json:"reviewedAt"`
}

// UpdateSnapshot matches the API response shape for updates.
type UpdateSnapshot struct {
	ID          string             `json:"id"`
	EventID     string             `json:"eventId"`
	OrganizerID string             `json:"organizerId"`
	Content     string             `json:"content"`
	MediaURLs   []string           `json:"mediaUrls"`
	Priority    string             `json:"priority"`
	Moderation  ModerationSnapshot `json:"moderation"`
	CreatedAt   string             `json:"createdAt"`
	EditedAt    *string            `json:"editedAt"`
	DeletedAt   *string            `json:"deletedAt"`
}

// UpdateEventPayload is the payload of event:update broadcasts.
type UpdateEventPayload struct {
	Action UpdateAction   `json:"action"`
	Update UpdateSnapshot `json:"update"`
}

// ReactionEventPayload is the payload of event:reaction broadcasts.
type ReactionEventPayload struct {
	UpdateID     string `json:"updateId"`
	UserID       string `json:"userId"`
	ReactionType string `json:"reactionType"`
}

// BacklogPayload carries updates missed while a client was disconnected.
// HasMore is set when the replay stopped early; the client flushes again.
type BacklogPayload struct {
	EventID string           `json:"eventId"`
	Updates []UpdateSnapshot `json:"updates"`
	HasMore bool             `json:"hasMore,omitempty"`
}

// PresencePayload is the payload of user:online and user:offline broadcasts.
type PresencePayload struct {
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
}

// JoinedPayload is the reply to join:event.
type JoinedPayload struct {
	EventID     string `json:"eventId"`
	OnlineCount int    `json:"onlineCount"`
}

// LeftPayload is the reply to leave:event.
type LeftPayload struct {
	EventID string `json:"eventId"`
}

// UpdateListPayload is the reply to request:updates.
type UpdateListPayload struct {
	EventID string           `json:"eventId"`
	Updates []UpdateSnapshot `json:"updates"`
}

// ReadAckPayload acknowledges mark:read.
type ReadAckPayload struct {
	UpdateID string `json:"updateId"`
}

// ErrorPayload is sent to a single client when one of its requests fails.
type ErrorPayload struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"requestId,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// NewUpdateSnapshot builds an update snapshot from a domain update.
func NewUpdateSnapshot(update *Update) UpdateSnapshot {
	var reviewedBy *string
	if update.Moderation.ReviewedBy != nil {
		value := update.Moderation.ReviewedBy.String()
		reviewedBy = &value
	}

	media := update.MediaURLs
	if media == nil {
		media = []string{}
	}
	flags := update.Moderation.Flags
	if flags == nil {
		flags = []string{}
	}

	return UpdateSnapshot{
		ID:          update.ID.String(),
		EventID:     update.EventID.String(),
		OrganizerID: update.OrganizerID.String(),
		Content:     update.Content,
		MediaURLs:   media,
		Priority:    string(update.Priority),
		Moderation: ModerationSnapshot{
			Status:     string(update.Moderation.Status),
			Flags:      flags,
			ReviewedBy: reviewedBy,
			ReviewedAt: formatOptionalTime(update.Moderation.ReviewedAt),
		},
		CreatedAt: update.CreatedAt.UTC().Format(time.RFC3339Nano),
		EditedAt:  formatOptionalTime(update.EditedAt),
		DeletedAt: formatOptionalTime(update.DeletedAt),
	}
}

// NewUpdateSnapshots maps a slice of updates.
func NewUpdateSnapshots(updates []*Update) []UpdateSnapshot {
	out := make([]UpdateSnapshot, 0, len(updates))
	for _, u := range updates {
		out = append(out, NewUpdateSnapshot(u))
	}
	return out
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	value := t.UTC().Format(time.RFC3339Nano)
	return &value
}
