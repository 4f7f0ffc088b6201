package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
)

// Event is the organizer-owned event that updates are scoped to.
type Event struct {
	ID          uuid.UUID
	Slug        string
	Title       string
	OrganizerID uuid.UUID
}

// IsOrganizer reports whether the user is the organizer of record.
func (e *Event) IsOrganizer(userID uuid.UUID) bool {
	return e.OrganizerID == userID
}

// EventRefKind distinguishes how an event was referenced by a client.
type EventRefKind int

const (
	EventRefByID EventRefKind = iota + 1
	EventRefBySlug
)

// EventRef references an event either by its canonical id or by its slug.
// It is parsed once at the boundary and resolved before downstream use.
type EventRef struct {
	Kind EventRefKind
	ID   uuid.UUID
	Slug string
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// MaxSlugLength bounds the accepted slug length.
const MaxSlugLength = 128

// ParseEventRef classifies a raw identifier as an id or a slug.
func ParseEventRef(raw string) (EventRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return EventRef{}, apperrors.ErrInvalidEventRef
	}
	if id, err := uuid.Parse(raw); err == nil {
		return EventRefFromID(id), nil
	}
	slug := strings.ToLower(raw)
	if len(slug) > MaxSlugLength || !slugPattern.MatchString(slug) {
		return EventRef{}, apperrors.ErrInvalidEventRef
	}
	return EventRef{Kind: EventRefBySlug, Slug: slug}, nil
}

// EventRefFromID builds a reference from a canonical id.
func EventRefFromID(id uuid.UUID) EventRef {
	return EventRef{Kind: EventRefByID, ID: id}
}

// String returns the raw form of the reference.
func (r EventRef) String() string {
	if r.Kind == EventRefBySlug {
		return r.Slug
	}
	return r.ID.String()
}
