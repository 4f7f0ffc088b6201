package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
)

// Update content and listing constants
const (
	MaxContentLength = 1000
	MaxMediaURLs     = 10
	DefaultListLimit = 20
	MaxListLimit     = 100
	EditWindow       = 5 * time.Minute
	// BacklogPageSize bounds one ListUpdatesSince page.
	BacklogPageSize = 200
)

// UpdatePriority represents how prominently an update should be shown.
type UpdatePriority string

const (
	PriorityLow    UpdatePriority = "low"
	PriorityNormal UpdatePriority = "normal"
	PriorityHigh   UpdatePriority = "high"
)

// IsValid checks if the priority is a valid value
func (p UpdatePriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

// ModerationStatus is the review state of an update.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationFlagged  ModerationStatus = "flagged"
)

// IsValid checks if the moderation status is a valid value
func (s ModerationStatus) IsValid() bool {
	switch s {
	case ModerationPending, ModerationApproved, ModerationFlagged:
		return true
	}
	return false
}

// Moderation holds the review state of an update.
type Moderation struct {
	Status     ModerationStatus
	Flags      []string
	ReviewedBy *uuid.UUID
	ReviewedAt *time.Time
}

// ModerationInput is a requested moderation change.
type ModerationInput struct {
	Status ModerationStatus
	Flags  []string
}

// Update is an organizer-authored announcement scoped to one event.
type Update struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	OrganizerID uuid.UUID
	Content     string
	MediaURLs   []string
	Priority    UpdatePriority
	Moderation  Moderation
	CreatedAt   time.Time
	EditedAt    *time.Time
	DeletedAt   *time.Time
}

// IsDeleted reports whether the update was soft deleted.
func (u *Update) IsDeleted() bool {
	return u.DeletedAt != nil
}

// IsApproved reports whether the update is visible to attendees.
func (u *Update) IsApproved() bool {
	return u.Moderation.Status == ModerationApproved
}

// WithinEditWindow reports whether now is at most window after creation.
func (u *Update) WithinEditWindow(now time.Time, window time.Duration) bool {
	return now.Sub(u.CreatedAt) <= window
}

// UpdateParams holds parameters for creating an update
type UpdateParams struct {
	EventID     uuid.UUID
	OrganizerID uuid.UUID
	Content     string
	MediaURLs   []string
	Priority    UpdatePriority
	Moderation  *ModerationInput
}

// Validate validates update creation parameters
func (p *UpdateParams) Validate() error {
	errs := apperrors.NewValidationErrors()

	validateContent(errs, p.Content)
	validateMediaURLs(errs, p.MediaURLs)

	if p.Priority != "" && !p.Priority.IsValid() {
		errs.Add("priority", "Priority must be one of: low, normal, high")
	}
	if p.Moderation != nil && !p.Moderation.Status.IsValid() {
		errs.Add("moderation.status", "Moderation status must be one of: pending, approved, flagged")
	}
	if p.EventID == uuid.Nil {
		errs.Add("eventId", "Event ID is required")
	}
	if p.OrganizerID == uuid.Nil {
		errs.Add("organizerId", "Organizer ID is required")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// NewUpdate is a factory function to create a valid new update.
func NewUpdate(params UpdateParams, now time.Time) (*Update, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	priority := params.Priority
	if priority == "" {
		priority = PriorityNormal
	}

	moderation := Moderation{Status: ModerationApproved, Flags: []string{}}
	if params.Moderation != nil {
		moderation.Status = params.Moderation.Status
		moderation.Flags = normalizeFlags(params.Moderation.Flags)
	}

	media := params.MediaURLs
	if media == nil {
		media = []string{}
	}

	return &Update{
		ID:          uuid.New(),
		EventID:     params.EventID,
		OrganizerID: params.OrganizerID,
		Content:     strings.TrimSpace(params.Content),
		MediaURLs:   media,
		Priority:    priority,
		Moderation:  moderation,
		CreatedAt:   now.UTC(),
	}, nil
}

// EditParams holds a partial update to an existing update. Nil fields are left unchanged.
type EditParams struct {
	UpdateID   uuid.UUID
	Content    *string
	MediaURLs  []string
	SetMedia   bool
	Priority   *UpdatePriority
	Moderation *ModerationInput
}

// Validate validates edit parameters
func (p *EditParams) Validate() error {
	errs := apperrors.NewValidationErrors()

	if p.Content != nil {
		validateContent(errs, *p.Content)
	}
	if p.SetMedia {
		validateMediaURLs(errs, p.MediaURLs)
	}
	if p.Priority != nil && !p.Priority.IsValid() {
		errs.Add("priority", "Priority must be one of: low, normal, high")
	}
	if p.Moderation != nil && !p.Moderation.Status.IsValid() {
		errs.Add("moderation.status", "Moderation status must be one of: pending, approved, flagged")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ApplyEdit mutates the update with the given edit. Moderation changes are
// stamped with the reviewer. EditedAt is always advanced.
func (u *Update) ApplyEdit(p EditParams, reviewer uuid.UUID, now time.Time) error {
	if u.IsDeleted() {
		return apperrors.ErrUpdateDeleted
	}

	if p.Content != nil {
		u.Content = strings.TrimSpace(*p.Content)
	}
	if p.SetMedia {
		if p.MediaURLs == nil {
			u.MediaURLs = []string{}
		} else {
			u.MediaURLs = p.MediaURLs
		}
	}
	if p.Priority != nil {
		u.Priority = *p.Priority
	}

	ts := now.UTC()
	if p.Moderation != nil {
		u.Moderation.Status = p.Moderation.Status
		u.Moderation.Flags = normalizeFlags(p.Moderation.Flags)
		r := reviewer
		u.Moderation.ReviewedBy = &r
		u.Moderation.ReviewedAt = &ts
	}

	u.EditedAt = &ts
	return nil
}

// MarkDeleted soft deletes the update.
func (u *Update) MarkDeleted(now time.Time) error {
	if u.IsDeleted() {
		return apperrors.ErrUpdateDeleted
	}
	ts := now.UTC()
	u.DeletedAt = &ts
	return nil
}

func validateContent(errs *apperrors.ValidationErrors, content string) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		errs.Add("content", "Content is required")
	} else if utf8.RuneCountInString(trimmed) > MaxContentLength {
		errs.Add("content", "Content must be 1000 characters or less")
	}
}

func validateMediaURLs(errs *apperrors.ValidationErrors, urls []string) {
	if len(urls) > MaxMediaURLs {
		errs.Add("mediaUrls", "At most 10 media URLs are allowed")
	}
	for _, u := range urls {
		if strings.TrimSpace(u) == "" {
			errs.Add("mediaUrls", "Media URLs must not be empty")
			return
		}
	}
}

func normalizeFlags(flags []string) []string {
	if flags == nil {
		return []string{}
	}
	return flags
}

// ListUpdatesParams controls paging over an event's updates.
type ListUpdatesParams struct {
	Limit        int
	Before       *time.Time
	OnlyApproved bool
}

// Normalize clamps the limit to the allowed range.
func (p *ListUpdatesParams) Normalize() {
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
}
