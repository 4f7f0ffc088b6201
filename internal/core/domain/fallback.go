package domain

import (
	"time"

	"github.com/google/uuid"
)

// FallbackPayload is the durable part of a fallback job: the update as it
// was at creation plus the ticket holders targeted at that time.
type FallbackPayload struct {
	Update        UpdateSnapshot `json:"update"`
	TargetUserIDs []uuid.UUID    `json:"targetUserIds"`
}

// FallbackJob is a queued offline delivery attempt for one update.
type FallbackJob struct {
	ID        uuid.UUID
	EventID   uuid.UUID
	Payload   FallbackPayload
	Attempts  int
	LastError string
	NextRunAt time.Time
	CreatedAt time.Time
}

// OfflineTargets returns the targets that are not in the online set.
func (j *FallbackJob) OfflineTargets(online []uuid.UUID) []uuid.UUID {
	onlineSet := make(map[uuid.UUID]struct{}, len(online))
	for _, id := range online {
		onlineSet[id] = struct{}{}
	}

	offline := make([]uuid.UUID, 0, len(j.Payload.TargetUserIDs))
	for _, id := range j.Payload.TargetUserIDs {
		if _, ok := onlineSet[id]; !ok {
			offline = append(offline, id)
		}
	}
	return offline
}
