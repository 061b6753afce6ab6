// Package conflict adjudicates near-simultaneous overlapping actions with a
// server-wins policy: the earliest valid action by server timestamp becomes
// ground truth and later overlapping actions are re-validated against it.
package conflict

import (
	"sort"

	"cassino/server/internal/state"
)

// DefaultWindowMillis is the timestamp distance within which two actions can
// be considered concurrent.
const DefaultWindowMillis = 100

// Resolver detects and resolves conflicting actions for a room.
type Resolver struct {
	windowMillis int64
	log          *Log
}

// NewResolver builds a resolver with the given concurrency window in
// milliseconds. A non-positive window falls back to DefaultWindowMillis.
func NewResolver(windowMillis int64) *Resolver {
	if windowMillis <= 0 {
		windowMillis = DefaultWindowMillis
	}
	return &Resolver{
		windowMillis: windowMillis,
		log:          NewLog(DefaultLogCapacity),
	}
}

// Log exposes the bounded conflict log for stats endpoints.
func (r *Resolver) Log() *Log {
	return r.log
}

// Detect reports whether two actions conflict: different players, server
// timestamps within the window, and intersecting affected-card sets.
// Same-player actions never conflict.
func (r *Resolver) Detect(a, b state.GameAction) bool {
	if a.PlayerID == b.PlayerID {
		return false
	}
	delta := a.ServerTimestamp - b.ServerTimestamp
	if delta < 0 {
		delta = -delta
	}
	if delta > r.windowMillis {
		return false
	}
	return a.Overlaps(b)
}

// ValidateFunc applies a single action to a state, returning the mutated
// state or an error when the action is illegal against that state.
type ValidateFunc func(s *state.GameState, action state.GameAction) (*state.GameState, error)

// Rejection records a losing action together with the action that beat it.
type Rejection struct {
	Action state.GameAction
	Winner state.GameAction
	Reason string
}

// Resolution is the outcome of resolving one batch of candidate actions.
type Resolution struct {
	State    *state.GameState
	Accepted []state.GameAction
	Rejected []Rejection
}

// Resolve orders candidates by server timestamp (stable, so ties keep arrival
// order) and folds them sequentially. Each action is validated against the
// state produced by the previously accepted actions in the batch; rejected
// actions are attributed to the earliest accepted action they overlap.
func (r *Resolver) Resolve(roomID string, initial *state.GameState, actions []state.GameAction, validate ValidateFunc) Resolution {
	ordered := make([]state.GameAction, len(actions))
	copy(ordered, actions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ServerTimestamp < ordered[j].ServerTimestamp
	})

	resolution := Resolution{State: initial}
	for _, action := range ordered {
		next, err := validate(resolution.State, action)
		if err != nil {
			rejection := Rejection{Action: action, Reason: err.Error()}
			if winner, ok := r.findWinner(resolution.Accepted, action); ok {
				rejection.Winner = winner
				r.log.Record(roomID, winner, action, err.Error())
			}
			resolution.Rejected = append(resolution.Rejected, rejection)
			continue
		}
		resolution.State = next
		resolution.Accepted = append(resolution.Accepted, action)
	}
	return resolution
}

// findWinner returns the earliest accepted action that conflicts with the
// rejected one.
func (r *Resolver) findWinner(accepted []state.GameAction, rejected state.GameAction) (state.GameAction, bool) {
	for _, winner := range accepted {
		if r.Detect(winner, rejected) {
			return winner, true
		}
	}
	return state.GameAction{}, false
}
