package server

import (
	"errors"
	"fmt"
	"strings"

	"cassino/server/internal/security"
)

var (
	// ErrRoomNotFound is returned when an operation names a room the
	// synchronizer has never seen.
	ErrRoomNotFound = errors.New("room not found")
	// ErrClientNotFound is returned when a delivery targets a session that
	// is no longer subscribed.
	ErrClientNotFound = errors.New("client not connected")
	// ErrRoomFull is returned when a join request hits a room with both
	// seats taken.
	ErrRoomFull = errors.New("room already has two players")
)

// Reject reasons reported to clients on the wire.
const (
	RejectInvalidAction = "invalid_action"
	RejectUnknownRoom   = "unknown_room"
	RejectNotYourTurn   = "not_your_turn"
	RejectStaleVersion  = "version_conflict"
	RejectSecurityBlock = "security_block"
	RejectRuleViolation = "rule_violation"
)

// SecurityBlockError is returned when the validation battery finds a
// critical violation and refuses to apply an action.
type SecurityBlockError struct {
	Report security.Report
}

func (e *SecurityBlockError) Error() string {
	kinds := make([]string, 0, len(e.Report.Violations))
	for _, v := range e.Report.Violations {
		kinds = append(kinds, string(v.Type))
	}
	return fmt.Sprintf("action blocked by security validation: %s", strings.Join(kinds, ", "))
}

// VersionConflictError is returned when a client submits an action against
// a version the server has already moved past.
type VersionConflictError struct {
	ClientVersion uint64
	ServerVersion uint64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: client at %d, server at %d", e.ClientVersion, e.ServerVersion)
}

// TurnOrderError is returned when a player acts out of turn. Escalated is
// set once the player crosses the repeat-offense threshold.
type TurnOrderError struct {
	PlayerID  string
	Count     int
	Escalated bool
}

func (e *TurnOrderError) Error() string {
	return "Not your turn"
}
