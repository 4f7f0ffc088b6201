package domain

import (
	"github.com/google/uuid"
)

// Role is the platform-wide role carried by a verified identity.
type Role string

const (
	RoleAttendee  Role = "attendee"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// IsValid checks if the role is a valid value
func (r Role) IsValid() bool {
	switch r {
	case RoleAttendee, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// Actor is a verified {user, role} pair supplied by the identity layer.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanAuthor reports whether the actor may author or manage updates for the event.
func (a Actor) CanAuthor(event *Event) bool {
	return a.IsAdmin() || event.IsOrganizer(a.UserID)
}
