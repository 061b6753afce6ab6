package state

import (
	"time"

	"github.com/google/uuid"
)

// ActionType classifies a client submission.
type ActionType string

const (
	ActionCapture    ActionType = "capture"
	ActionBuild      ActionType = "build"
	ActionTrail      ActionType = "trail"
	ActionReady      ActionType = "ready"
	ActionShuffle    ActionType = "shuffle"
	ActionSelectCard ActionType = "selectCard"
	ActionDealCards  ActionType = "dealCards"
	ActionResetRound ActionType = "resetRound"
)

// Valid reports whether the action type is known to the engine.
func (t ActionType) Valid() bool {
	switch t {
	case ActionCapture, ActionBuild, ActionTrail, ActionReady, ActionShuffle,
		ActionSelectCard, ActionDealCards, ActionResetRound:
		return true
	}
	return false
}

// EndsTurn reports whether the action type advances the current turn once
// accepted. Only the three play actions do; lobby and dealing actions leave
// the turn untouched.
func (t ActionType) EndsTurn() bool {
	switch t {
	case ActionCapture, ActionBuild, ActionTrail:
		return true
	}
	return false
}

// GameAction is an immutable record of one client submission. It is never
// mutated after creation; the conflict resolver and journal only read it.
type GameAction struct {
	ID              string     `json:"id"`
	PlayerID        string     `json:"playerId"`
	Seat            Seat       `json:"seat"`
	Type            ActionType `json:"actionType"`
	CardID          Card       `json:"cardId,omitempty"`
	TargetIDs       []Card     `json:"targetCards,omitempty"`
	BuildValue      int        `json:"buildValue,omitempty"`
	ClientTimestamp int64      `json:"clientTimestamp"`
	ServerTimestamp int64      `json:"serverTimestamp"`
	// ClientVersion is the state version the client built the action
	// against. Zero means the client did not report one.
	ClientVersion uint64 `json:"clientVersion,omitempty"`
	Version       uint64 `json:"version"`
}

// NewGameAction stamps a fresh action with a unique id and the server receive
// time.
func NewGameAction(playerID string, seat Seat, actionType ActionType, now time.Time) GameAction {
	return GameAction{
		ID:              uuid.NewString(),
		PlayerID:        playerID,
		Seat:            seat,
		Type:            actionType,
		ServerTimestamp: now.UnixMilli(),
	}
}

// AffectedCards returns the played card plus targets as a set. Two actions
// conflict only when these sets intersect.
func (a GameAction) AffectedCards() map[Card]struct{} {
	affected := make(map[Card]struct{}, len(a.TargetIDs)+1)
	if a.CardID != "" {
		affected[a.CardID] = struct{}{}
	}
	for _, target := range a.TargetIDs {
		affected[target] = struct{}{}
	}
	return affected
}

// Overlaps reports whether the affected-card sets of two actions intersect.
func (a GameAction) Overlaps(b GameAction) bool {
	mine := a.AffectedCards()
	for card := range b.AffectedCards() {
		if _, ok := mine[card]; ok {
			return true
		}
	}
	return false
}
