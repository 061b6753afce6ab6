package security

import (
	"sync"

	"cassino/server/internal/state"
)

// EscalationThreshold is the per-player violation count at which repeated
// out-of-turn submissions escalate to an error-level security log entry.
const EscalationThreshold = 3

// ViolationTracker counts turn-order violations per room and player. It is
// purely in-memory; counters reset when the room restarts.
type ViolationTracker struct {
	mu     sync.Mutex
	counts map[string]map[string]int
}

// NewViolationTracker returns an empty tracker.
func NewViolationTracker() *ViolationTracker {
	return &ViolationTracker{counts: make(map[string]map[string]int)}
}

// Record increments the counter for a player in a room and returns the new
// count plus whether the count has reached the escalation threshold.
func (t *ViolationTracker) Record(roomID, playerID string) (count int, escalated bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	room, ok := t.counts[roomID]
	if !ok {
		room = make(map[string]int)
		t.counts[roomID] = room
	}
	room[playerID]++
	count = room[playerID]
	return count, count >= EscalationThreshold
}

// Count returns the current counter for a player without incrementing it.
func (t *ViolationTracker) Count(roomID, playerID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[roomID][playerID]
}

// Reset clears every counter for a room. Called on room (re)start.
func (t *ViolationTracker) Reset(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, roomID)
}

// ValidateTurnOrder checks that the submitting seat holds the turn. The
// returned message is client-facing.
func ValidateTurnOrder(seat, currentTurn state.Seat) (bool, string) {
	if seat != currentTurn {
		return false, "Not your turn"
	}
	return true, ""
}
