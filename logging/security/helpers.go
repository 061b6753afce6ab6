package security

import (
	"context"

	"cassino/server/logging"
)

const (
	// EventViolation is emitted when a validator flags a state transition.
	EventViolation logging.EventType = "security.violation"
	// EventActionBlocked is emitted when a critical violation rejects an action.
	EventActionBlocked logging.EventType = "security.action_blocked"
	// EventEscalation is emitted when a player crosses the repeat-offense threshold.
	EventEscalation logging.EventType = "security.escalation"
)

// ViolationPayload describes a single validator finding.
type ViolationPayload struct {
	RoomID      string         `json:"roomId"`
	Violation   string         `json:"violation"`
	SeverityTag string         `json:"severity"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
}

// BlockedPayload describes an action rejected by the validation battery.
type BlockedPayload struct {
	RoomID     string   `json:"roomId"`
	ActionType string   `json:"actionType"`
	Violations []string `json:"violations"`
}

// EscalationPayload tracks repeat turn-order offenses by one player.
type EscalationPayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
	Count    int    `json:"count"`
}

// Violation publishes a non-blocking validator finding.
func Violation(ctx context.Context, pub logging.Publisher, version uint64, actor logging.EntityRef, payload ViolationPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventViolation,
		Version:  version,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySecurity,
		Payload:  payload,
	})
}

// ActionBlocked publishes a rejection caused by critical violations.
func ActionBlocked(ctx context.Context, pub logging.Publisher, version uint64, actor logging.EntityRef, actionID string, payload BlockedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventActionBlocked,
		Version:  version,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategorySecurity,
		Payload:  payload,
		ActionID: actionID,
	})
}

// Escalation publishes a repeat-offender event for operator attention.
func Escalation(ctx context.Context, pub logging.Publisher, version uint64, actor logging.EntityRef, payload EscalationPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventEscalation,
		Version:  version,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategorySecurity,
		Payload:  payload,
	})
}
