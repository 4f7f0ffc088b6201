package validation

import (
	"github.com/google/uuid"

	"github.com/lorrc/event-updates-backend/internal/core/domain"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

var (
	priorityValues   = []string{string(domain.PriorityLow), string(domain.PriorityNormal), string(domain.PriorityHigh)}
	moderationValues = []string{string(domain.ModerationPending), string(domain.ModerationApproved), string(domain.ModerationFlagged)}
)

// ModerationRequest is the moderation block accepted on create and edit.
type ModerationRequest struct {
	Status string   `json:"status"`
	Flags  []string `json:"flags"`
}

func (m *ModerationRequest) toInput() *domain.ModerationInput {
	if m == nil {
		return nil
	}
	return &domain.ModerationInput{
		Status: domain.ModerationStatus(m.Status),
		Flags:  m.Flags,
	}
}

// CreateUpdateRequest is the body of a create request.
type CreateUpdateRequest struct {
	Content    string             `json:"content"`
	MediaURLs  []string           `json:"mediaUrls"`
	Priority   string             `json:"priority"`
	Moderation *ModerationRequest `json:"moderation"`
}

// Validate checks the shape of the request. Content rules are enforced by
// the domain.
func (r *CreateUpdateRequest) Validate() error {
	v := NewValidator().
		Required("content", r.Content).
		OneOf("priority", r.Priority, priorityValues)
	if r.Moderation != nil {
		v.Required("moderation.status", r.Moderation.Status).
			OneOf("moderation.status", r.Moderation.Status, moderationValues)
	}
	return v.Err()
}

// ToParams builds service parameters for the given event and actor.
func (r *CreateUpdateRequest) ToParams(ref domain.EventRef, actor domain.Actor, connID string) ports.CreateUpdateParams {
	return ports.CreateUpdateParams{
		EventRef:      ref,
		Actor:         actor,
		Content:       r.Content,
		MediaURLs:     r.MediaURLs,
		Priority:      domain.UpdatePriority(r.Priority),
		Moderation:    r.Moderation.toInput(),
		ExcludeConnID: connID,
	}
}

// EditUpdateRequest is a partial edit. Absent fields are left unchanged.
type EditUpdateRequest struct {
	Content    *string            `json:"content"`
	MediaURLs  *[]string          `json:"mediaUrls"`
	Priority   *string            `json:"priority"`
	Moderation *ModerationRequest `json:"moderation"`
}

// Validate checks the shape of the request.
func (r *EditUpdateRequest) Validate() error {
	v := NewValidator().
		Custom("body", r.Content != nil || r.MediaURLs != nil || r.Priority != nil || r.Moderation != nil,
			"At least one field must be provided")
	if r.Priority != nil {
		v.Required("priority", *r.Priority).OneOf("priority", *r.Priority, priorityValues)
	}
	if r.Moderation != nil {
		v.Required("moderation.status", r.Moderation.Status).
			OneOf("moderation.status", r.Moderation.Status, moderationValues)
	}
	return v.Err()
}

// ToEdit builds domain edit parameters for the given update.
func (r *EditUpdateRequest) ToEdit(updateID uuid.UUID) domain.EditParams {
	edit := domain.EditParams{
		UpdateID:   updateID,
		Content:    r.Content,
		Moderation: r.Moderation.toInput(),
	}
	if r.MediaURLs != nil {
		edit.SetMedia = true
		edit.MediaURLs = *r.MediaURLs
	}
	if r.Priority != nil {
		p := domain.UpdatePriority(*r.Priority)
		edit.Priority = &p
	}
	return edit
}

// ReactRequest is the body of a reaction request.
type ReactRequest struct {
	ReactionType string `json:"reactionType"`
}

// Validate checks the reaction type.
func (r *ReactRequest) Validate() error {
	allowed := make([]string, 0, len(domain.AllReactionTypes))
	for _, rt := range domain.AllReactionTypes {
		allowed = append(allowed, string(rt))
	}
	return NewValidator().
		Required("reactionType", r.ReactionType).
		OneOf("reactionType", r.ReactionType, allowed).
		Err()
}
