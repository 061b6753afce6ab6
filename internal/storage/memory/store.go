// Package memory is the in-process journal store used by tests and
// ephemeral rooms. It honors the same sequencing contract as the durable
// store: appends for one room are serialized under the store mutex.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"cassino/server/internal/journal"
)

// Store keeps events and snapshots in maps keyed by room.
type Store struct {
	mu        sync.Mutex
	events    map[string][]journal.Event
	snapshots map[string]map[uint64]journal.Snapshot
	failNext  error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		events:    make(map[string][]journal.Event),
		snapshots: make(map[string]map[uint64]journal.Snapshot),
	}
}

// FailNext makes the next mutating call return err. Test hook for rollback
// paths.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *Store) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// AppendEvent assigns the next sequence for the room and stores the event.
func (s *Store) AppendEvent(_ context.Context, evt journal.Event) (journal.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return journal.Event{}, err
	}

	existing := s.events[evt.RoomID]
	var maxSeq uint64
	for _, e := range existing {
		if e.Sequence > maxSeq {
			maxSeq = e.Sequence
		}
	}
	evt.Sequence = maxSeq + 1
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	s.events[evt.RoomID] = append(existing, evt)
	return evt, nil
}

// EventsSince returns events with version in (fromVersion, toVersion]
// ordered by sequence. A zero toVersion means unbounded.
func (s *Store) EventsSince(_ context.Context, roomID string, fromVersion, toVersion uint64) ([]journal.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []journal.Event
	for _, evt := range s.events[roomID] {
		if evt.Version <= fromVersion {
			continue
		}
		if toVersion > 0 && evt.Version > toVersion {
			continue
		}
		out = append(out, evt)
	}
	return out, nil
}

// LatestSnapshot returns the highest-version snapshot for the room.
func (s *Store) LatestSnapshot(_ context.Context, roomID string) (journal.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best journal.Snapshot
	found := false
	for _, snap := range s.snapshots[roomID] {
		if !found || snap.Version > best.Version {
			best = snap
			found = true
		}
	}
	return best, found, nil
}

// SnapshotAt returns the snapshot at an exact version, if present.
func (s *Store) SnapshotAt(_ context.Context, roomID string, version uint64) (journal.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[roomID][version]
	return snap, ok, nil
}

// PutSnapshot stores a snapshot keyed by room and version.
func (s *Store) PutSnapshot(_ context.Context, snap journal.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	room, ok := s.snapshots[snap.RoomID]
	if !ok {
		room = make(map[uint64]journal.Snapshot)
		s.snapshots[snap.RoomID] = room
	}
	room[snap.Version] = snap
	return nil
}

// SnapshotVersions lists the stored snapshot versions for a room.
func (s *Store) SnapshotVersions(_ context.Context, roomID string) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := make([]uint64, 0, len(s.snapshots[roomID]))
	for version := range s.snapshots[roomID] {
		versions = append(versions, version)
	}
	return versions, nil
}

// DeleteSnapshot removes the snapshot at the given version.
func (s *Store) DeleteSnapshot(_ context.Context, roomID string, version uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots[roomID], version)
	return nil
}
