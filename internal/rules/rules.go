// Package rules defines the port to the game-rules library. The
// synchronization engine treats move legality and scoring as a black box: it
// hands the engine the committed state plus one action and receives the
// mutated state or a validation error.
package rules

import (
	"fmt"

	"cassino/server/internal/state"
)

// Engine computes the next state for an accepted action. Implementations
// must treat the input state as read-only and return a fresh copy; the
// caller only commits the result after the security battery passes.
type Engine interface {
	Apply(s *state.GameState, action state.GameAction) (*state.GameState, error)
}

// ValidationError marks an action as illegal under the game rules. The
// caller rejects the action with no state change.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Reject builds a ValidationError.
func Reject(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
