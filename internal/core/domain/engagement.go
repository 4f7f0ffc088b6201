package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReactionType is one of the fixed reactions attendees can leave.
type ReactionType string

const (
	ReactionLike ReactionType = "like"
	ReactionLove ReactionType = "love"
	ReactionClap ReactionType = "clap"
	ReactionWow  ReactionType = "wow"
	ReactionSad  ReactionType = "sad"
)

// AllReactionTypes lists reactions in display order.
var AllReactionTypes = []ReactionType{ReactionLike, ReactionLove, ReactionClap, ReactionWow, ReactionSad}

// IsValid checks if the reaction type is a valid value
func (r ReactionType) IsValid() bool {
	for _, t := range AllReactionTypes {
		if r == t {
			return true
		}
	}
	return false
}

// Reaction is a user's single reaction to an update. The latest reaction wins.
type Reaction struct {
	UpdateID     uuid.UUID
	UserID       uuid.UUID
	ReactionType ReactionType
	CreatedAt    time.Time
}

// ReadReceipt records the first time a user read an update.
type ReadReceipt struct {
	UpdateID uuid.UUID
	UserID   uuid.UUID
	ReadAt   time.Time
}

// ReactionSummary counts reactions per type for one update.
type ReactionSummary struct {
	UpdateID uuid.UUID
	Counts   map[ReactionType]int
	Total    int
}
