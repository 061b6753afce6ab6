package conflict

import (
	"sync"
	"time"

	"cassino/server/internal/state"
)

// DefaultLogCapacity bounds the in-memory conflict log.
const DefaultLogCapacity = 1000

// Record is an ephemeral diagnostic for one detected conflict. Records feed
// aggregate stats only; they are not durable state.
type Record struct {
	RoomID    string           `json:"roomId"`
	First     state.GameAction `json:"first"`
	Second    state.GameAction `json:"second"`
	Reason    string           `json:"reason"`
	Timestamp time.Time        `json:"timestamp"`
}

// Log is a fixed-capacity ring of conflict records with drop-oldest
// eviction.
type Log struct {
	mu       sync.Mutex
	records  []Record
	capacity int
}

// NewLog builds a log bounded to the given capacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &Log{
		records:  make([]Record, 0, capacity),
		capacity: capacity,
	}
}

// Record appends a conflict, evicting the oldest entry once full.
func (l *Log) Record(roomID string, winner, loser state.GameAction, reason string) {
	l.Append(Record{
		RoomID: roomID,
		First:  winner,
		Second: loser,
		Reason: reason,
	})
}

// Append adds a fully formed record, evicting the oldest entry once full.
func (l *Log) Append(record Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if len(l.records) >= l.capacity {
		copy(l.records, l.records[1:])
		l.records = l.records[:len(l.records)-1]
	}
	l.records = append(l.records, record)
}

// Len returns the number of retained records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Records returns a copy of the retained records in chronological order.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Stats summarizes the retained records.
type Stats struct {
	Total           int            `json:"total"`
	ByRoom          map[string]int `json:"byRoom"`
	ByActionPair    map[string]int `json:"byActionPair"`
	MeanTimeDeltaMS float64        `json:"meanTimeDeltaMs"`
}

// Stats aggregates conflict counts by room and action-type pair plus the mean
// timestamp distance between the two sides.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Stats{
		Total:        len(l.records),
		ByRoom:       make(map[string]int),
		ByActionPair: make(map[string]int),
	}
	if len(l.records) == 0 {
		return stats
	}

	totalDelta := int64(0)
	for _, record := range l.records {
		stats.ByRoom[record.RoomID]++
		stats.ByActionPair[pairKey(record.First.Type, record.Second.Type)]++
		delta := record.First.ServerTimestamp - record.Second.ServerTimestamp
		if delta < 0 {
			delta = -delta
		}
		totalDelta += delta
	}
	stats.MeanTimeDeltaMS = float64(totalDelta) / float64(len(l.records))
	return stats
}

func pairKey(a, b state.ActionType) string {
	// Order-insensitive so capture/build and build/capture aggregate together.
	if string(a) <= string(b) {
		return string(a) + "|" + string(b)
	}
	return string(b) + "|" + string(a)
}
