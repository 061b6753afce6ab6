// Package journal is the append-only event log with snapshotting. Each room
// has a strictly increasing sequence, one event per accepted action, and a
// rolling window of snapshots bounding replay cost. The journal is the
// source of truth for resync: broadcast delivery is deliberately decoupled
// from it.
package journal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"cassino/server/internal/checksum"
	"cassino/server/internal/state"
)

const (
	// DefaultSnapshotInterval is the version cadence for snapshot creation.
	DefaultSnapshotInterval = 10
	// DefaultSnapshotRetention caps the snapshots kept per room; the most
	// recent by version survive eviction.
	DefaultSnapshotRetention = 5
)

// Event is an immutable server-appended record of one accepted action.
// Sequence order is a total order consistent with version order per room.
type Event struct {
	ID         string           `json:"id"`
	RoomID     string           `json:"roomId"`
	Sequence   uint64           `json:"sequenceNumber"`
	Version    uint64           `json:"version"`
	PlayerID   string           `json:"playerId"`
	ActionType state.ActionType `json:"actionType"`
	ActionData map[string]any   `json:"actionData"`
	Checksum   string           `json:"checksum"`
	Timestamp  time.Time        `json:"timestamp"`
}

// StateChanges extracts the shallow field-change map recorded with the
// event, or nil when the event carries none.
func (e Event) StateChanges() map[string]any {
	raw, ok := e.ActionData["state_changes"]
	if !ok {
		return nil
	}
	changes, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	return changes
}

// Snapshot is a point-in-time capture of a room's wire projection. Version
// is always a multiple of the snapshot interval.
type Snapshot struct {
	RoomID    string           `json:"roomId"`
	Version   uint64           `json:"version"`
	State     state.Projection `json:"stateData"`
	Checksum  string           `json:"checksum"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Store is the persistence port behind the journal. Implementations must
// assign sequence numbers atomically inside AppendEvent so two concurrent
// appends for one room can never mint the same sequence.
type Store interface {
	AppendEvent(ctx context.Context, evt Event) (Event, error)
	EventsSince(ctx context.Context, roomID string, fromVersion, toVersion uint64) ([]Event, error)
	LatestSnapshot(ctx context.Context, roomID string) (Snapshot, bool, error)
	SnapshotAt(ctx context.Context, roomID string, version uint64) (Snapshot, bool, error)
	PutSnapshot(ctx context.Context, snap Snapshot) error
	SnapshotVersions(ctx context.Context, roomID string) ([]uint64, error)
	DeleteSnapshot(ctx context.Context, roomID string, version uint64) error
}

// Logger is the minimal logging surface the journal needs for best-effort
// maintenance failures.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// StorageError wraps a persistence failure. The action that triggered it is
// rolled back whole; version and sequence stay unchanged.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("journal %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// EventStore owns event appends, snapshot maintenance, and replay for all
// rooms. Per-room appends are serialized by the caller (the room lock held
// across process_action); the store's transaction is the backstop.
type EventStore struct {
	store     Store
	interval  uint64
	retention int
	logger    Logger
}

// Option configures an EventStore.
type Option func(*EventStore)

// WithSnapshotInterval overrides the snapshot version cadence.
func WithSnapshotInterval(interval uint64) Option {
	return func(es *EventStore) {
		if interval > 0 {
			es.interval = interval
		}
	}
}

// WithSnapshotRetention overrides the per-room snapshot cap.
func WithSnapshotRetention(retention int) Option {
	return func(es *EventStore) {
		if retention > 0 {
			es.retention = retention
		}
	}
}

// WithLogger attaches a logger for best-effort maintenance failures.
func WithLogger(logger Logger) Option {
	return func(es *EventStore) {
		if logger != nil {
			es.logger = logger
		}
	}
}

// New builds an EventStore over the given persistence port.
func New(store Store, opts ...Option) *EventStore {
	es := &EventStore{
		store:     store,
		interval:  DefaultSnapshotInterval,
		retention: DefaultSnapshotRetention,
		logger:    nopLogger{},
	}
	for _, opt := range opts {
		opt(es)
	}
	return es
}

// SnapshotInterval returns the configured snapshot cadence.
func (es *EventStore) SnapshotInterval() uint64 {
	return es.interval
}

// StoreEvent appends one event for an accepted action. The checksum covers
// the canonicalized action data. Failures surface as *StorageError and leave
// the log untouched.
func (es *EventStore) StoreEvent(ctx context.Context, roomID string, action state.GameAction, version uint64, actionData map[string]any) (Event, error) {
	sum, err := checksum.Sum(actionData)
	if err != nil {
		return Event{}, &StorageError{Op: "checksum event", Err: err}
	}
	evt := Event{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		Version:    version,
		PlayerID:   action.PlayerID,
		ActionType: action.Type,
		ActionData: actionData,
		Checksum:   sum,
		Timestamp:  time.Now(),
	}
	stored, err := es.store.AppendEvent(ctx, evt)
	if err != nil {
		return Event{}, &StorageError{Op: "append event", Err: err}
	}
	return stored, nil
}

// Events returns the room's events ordered by sequence number, filtered to
// versions in (fromVersion, toVersion]. A zero toVersion means unbounded.
func (es *EventStore) Events(ctx context.Context, roomID string, fromVersion, toVersion uint64) ([]Event, error) {
	events, err := es.store.EventsSince(ctx, roomID, fromVersion, toVersion)
	if err != nil {
		return nil, &StorageError{Op: "load events", Err: err}
	}
	return events, nil
}

// CreateSnapshot captures the room's wire projection at its current version.
// The snapshot checksum covers the reduced projection only (counts and
// flags), matching the state checksum clients verify against.
func (es *EventStore) CreateSnapshot(ctx context.Context, roomID string, s *state.GameState) (Snapshot, error) {
	sum, err := checksum.Compute(s)
	if err != nil {
		return Snapshot{}, &StorageError{Op: "checksum snapshot", Err: err}
	}
	snap := Snapshot{
		RoomID:    roomID,
		Version:   s.Version,
		State:     s.Project(),
		Checksum:  sum,
		CreatedAt: time.Now(),
	}
	if err := es.store.PutSnapshot(ctx, snap); err != nil {
		return Snapshot{}, &StorageError{Op: "put snapshot", Err: err}
	}
	return snap, nil
}

// CheckAndCreateSnapshot runs snapshot maintenance after a commit. It is a
// no-op off the interval, idempotent at the same version, and entirely
// best-effort: failures are logged and swallowed so housekeeping can never
// block game flow. It reports whether a snapshot was created.
func (es *EventStore) CheckAndCreateSnapshot(ctx context.Context, roomID string, version uint64, s *state.GameState) bool {
	if es.interval == 0 || version == 0 || version%es.interval != 0 {
		return false
	}
	if _, ok, err := es.store.SnapshotAt(ctx, roomID, version); err != nil {
		es.logger.Printf("snapshot lookup failed for room %s v%d: %v", roomID, version, err)
		return false
	} else if ok {
		return false
	}
	if _, err := es.CreateSnapshot(ctx, roomID, s); err != nil {
		es.logger.Printf("snapshot create failed for room %s v%d: %v", roomID, version, err)
		return false
	}
	es.pruneSnapshots(ctx, roomID)
	return true
}

// pruneSnapshots evicts the oldest snapshots beyond the retention cap,
// keeping the most recent by version. Best-effort.
func (es *EventStore) pruneSnapshots(ctx context.Context, roomID string) {
	versions, err := es.store.SnapshotVersions(ctx, roomID)
	if err != nil {
		es.logger.Printf("snapshot list failed for room %s: %v", roomID, err)
		return
	}
	if len(versions) <= es.retention {
		return
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	for _, version := range versions[:len(versions)-es.retention] {
		if err := es.store.DeleteSnapshot(ctx, roomID, version); err != nil {
			es.logger.Printf("snapshot evict failed for room %s v%d: %v", roomID, version, err)
		}
	}
}

// Replay rebuilds a room's wire projection from the latest snapshot (or the
// room-initial state when none exists) plus every later event in sequence
// order, shallow-merging each event's recorded state changes. The result is
// a deterministic function of the event sequence alone.
func (es *EventStore) Replay(ctx context.Context, roomID string, initial *state.GameState) (state.Projection, uint64, error) {
	base := initial.Project()
	fromVersion := uint64(0)

	snap, ok, err := es.store.LatestSnapshot(ctx, roomID)
	if err != nil {
		return nil, 0, &StorageError{Op: "load snapshot", Err: err}
	}
	if ok {
		base = cloneProjection(snap.State)
		fromVersion = snap.Version
	}

	events, err := es.store.EventsSince(ctx, roomID, fromVersion, 0)
	if err != nil {
		return nil, 0, &StorageError{Op: "load events", Err: err}
	}

	version := fromVersion
	for _, evt := range events {
		for field, value := range evt.StateChanges() {
			base[field] = value
		}
		base[string(state.FieldVersion)] = evt.Version
		version = evt.Version
	}
	return base, version, nil
}

func cloneProjection(src state.Projection) state.Projection {
	dst := make(state.Projection, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
