package conflicts

import (
	"context"

	"cassino/server/logging"
)

const (
	// EventDetected is emitted when two concurrent actions touch the same cards.
	EventDetected logging.EventType = "conflict.detected"
	// EventResolved is emitted after server-wins resolution picks a winner.
	EventResolved logging.EventType = "conflict.resolved"
)

// DetectedPayload names the two overlapping actions.
type DetectedPayload struct {
	RoomID       string `json:"roomId"`
	FirstAction  string `json:"firstAction"`
	SecondAction string `json:"secondAction"`
	DeltaMS      int64  `json:"deltaMs"`
}

// ResolvedPayload records the outcome of a resolution pass.
type ResolvedPayload struct {
	RoomID   string `json:"roomId"`
	Winner   string `json:"winner"`
	Loser    string `json:"loser"`
	Reason   string `json:"reason"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
}

// Detected publishes a conflict detection event.
func Detected(ctx context.Context, pub logging.Publisher, version uint64, roomID string, payload DetectedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDetected,
		Version:  version,
		Actor:    logging.EntityRef{ID: roomID, Kind: logging.EntityKindRoom},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryConflict,
		Payload:  payload,
	})
}

// Resolved publishes the winner and loser of a resolved conflict.
func Resolved(ctx context.Context, pub logging.Publisher, version uint64, roomID string, payload ResolvedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventResolved,
		Version:  version,
		Actor:    logging.EntityRef{ID: roomID, Kind: logging.EntityKindRoom},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryConflict,
		Payload:  payload,
	})
}
