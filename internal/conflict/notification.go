package conflict

import (
	"fmt"
	"time"

	"cassino/server/internal/state"
)

// Notification is the rejection message delivered to the losing player only.
// It names the rejected action, the action that won the race, and how far
// apart the two arrived.
type Notification struct {
	Type              string           `json:"type"`
	Subtype           string           `json:"subtype"`
	Message           string           `json:"message"`
	RejectedAction    state.GameAction `json:"rejected_action"`
	ConflictingAction state.GameAction `json:"conflicting_action"`
	TimeDifferenceMS  int64            `json:"time_difference_ms"`
	Timestamp         string           `json:"timestamp"`
}

// NewNotification builds the losing-player message for a resolved conflict.
func NewNotification(rejection Rejection, now time.Time) Notification {
	delta := rejection.Action.ServerTimestamp - rejection.Winner.ServerTimestamp
	if delta < 0 {
		delta = -delta
	}
	return Notification{
		Type:    "action_rejected",
		Subtype: "conflict",
		Message: fmt.Sprintf("your %s lost to a concurrent %s submitted %dms earlier",
			rejection.Action.Type, rejection.Winner.Type, delta),
		RejectedAction:    rejection.Action,
		ConflictingAction: rejection.Winner,
		TimeDifferenceMS:  delta,
		Timestamp:         now.UTC().Format(time.RFC3339),
	}
}
