package journal_test

import (
	"context"
	"errors"
	"testing"

	"cassino/server/internal/journal"
	"cassino/server/internal/state"
	"cassino/server/internal/storage/memory"
)

func testAction(playerID string, typ state.ActionType) state.GameAction {
	return state.GameAction{
		ID:       "act-" + playerID,
		PlayerID: playerID,
		Seat:     state.SeatPlayer1,
		Type:     typ,
	}
}

func TestStoreEventAssignsSequence(t *testing.T) {
	es := journal.New(memory.New())
	ctx := context.Background()

	for i := uint64(1); i <= 3; i++ {
		evt, err := es.StoreEvent(ctx, "room-1", testAction("p1", state.ActionTrail), i, map[string]any{
			"state_changes": map[string]any{"roundNumber": 1},
		})
		if err != nil {
			t.Fatalf("store event %d: %v", i, err)
		}
		if evt.Sequence != i {
			t.Fatalf("sequence = %d, want %d", evt.Sequence, i)
		}
		if evt.Version != i {
			t.Fatalf("version = %d, want %d", evt.Version, i)
		}
		if evt.Checksum == "" || evt.ID == "" {
			t.Fatal("event should carry id and checksum")
		}
	}

	// Sequences are per room.
	evt, err := es.StoreEvent(ctx, "room-2", testAction("p1", state.ActionTrail), 1, nil)
	if err != nil {
		t.Fatalf("store event: %v", err)
	}
	if evt.Sequence != 1 {
		t.Fatalf("other room sequence = %d, want 1", evt.Sequence)
	}
}

func TestStoreEventFailureSurfacesStorageError(t *testing.T) {
	store := memory.New()
	es := journal.New(store)
	store.FailNext(errors.New("disk full"))

	_, err := es.StoreEvent(context.Background(), "room-1", testAction("p1", state.ActionTrail), 1, nil)
	var storageErr *journal.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected *journal.StorageError, got %v", err)
	}
	if storageErr.Op != "append event" {
		t.Fatalf("op = %q, want append event", storageErr.Op)
	}

	events, err := es.Events(context.Background(), "room-1", 0, 0)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("failed append should leave log empty, got %d events", len(events))
	}
}

func TestEventsVersionWindow(t *testing.T) {
	es := journal.New(memory.New())
	ctx := context.Background()
	for v := uint64(1); v <= 8; v++ {
		if _, err := es.StoreEvent(ctx, "room-1", testAction("p1", state.ActionTrail), v, nil); err != nil {
			t.Fatalf("store event %d: %v", v, err)
		}
	}

	events, err := es.Events(ctx, "room-1", 3, 6)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("window (3, 6] should hold 3 events, got %d", len(events))
	}
	for i, want := range []uint64{4, 5, 6} {
		if events[i].Version != want {
			t.Fatalf("event %d version = %d, want %d", i, events[i].Version, want)
		}
	}

	unbounded, err := es.Events(ctx, "room-1", 6, 0)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(unbounded) != 2 {
		t.Fatalf("window (6, inf) should hold 2 events, got %d", len(unbounded))
	}
}

func TestCheckAndCreateSnapshot(t *testing.T) {
	store := memory.New()
	es := journal.New(store, journal.WithSnapshotInterval(10))
	ctx := context.Background()
	s := state.NewGameState("room-1")

	s.Version = 7
	if es.CheckAndCreateSnapshot(ctx, "room-1", 7, s) {
		t.Fatal("version off the interval should not snapshot")
	}
	if es.CheckAndCreateSnapshot(ctx, "room-1", 0, s) {
		t.Fatal("version zero should not snapshot")
	}

	s.Version = 10
	if !es.CheckAndCreateSnapshot(ctx, "room-1", 10, s) {
		t.Fatal("version 10 should snapshot")
	}
	if es.CheckAndCreateSnapshot(ctx, "room-1", 10, s) {
		t.Fatal("re-check at the same version should be idempotent")
	}

	snap, ok, err := store.LatestSnapshot(ctx, "room-1")
	if err != nil || !ok {
		t.Fatalf("snapshot lookup: ok=%v err=%v", ok, err)
	}
	if snap.Version != 10 || snap.Checksum == "" {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestSnapshotRetention(t *testing.T) {
	store := memory.New()
	es := journal.New(store, journal.WithSnapshotInterval(10), journal.WithSnapshotRetention(5))
	ctx := context.Background()
	s := state.NewGameState("room-1")

	for v := uint64(10); v <= 70; v += 10 {
		s.Version = v
		if !es.CheckAndCreateSnapshot(ctx, "room-1", v, s) {
			t.Fatalf("snapshot at %d should be created", v)
		}
	}

	versions, err := store.SnapshotVersions(ctx, "room-1")
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(versions) != 5 {
		t.Fatalf("retained snapshots = %d, want 5", len(versions))
	}
	retained := make(map[uint64]bool, len(versions))
	for _, v := range versions {
		retained[v] = true
	}
	for _, v := range []uint64{30, 40, 50, 60, 70} {
		if !retained[v] {
			t.Fatalf("snapshot at %d should survive eviction, retained %v", v, versions)
		}
	}
}

func TestSnapshotFailureIsBestEffort(t *testing.T) {
	store := memory.New()
	es := journal.New(store, journal.WithSnapshotInterval(10))
	s := state.NewGameState("room-1")
	s.Version = 10

	store.FailNext(errors.New("disk full"))
	if es.CheckAndCreateSnapshot(context.Background(), "room-1", 10, s) {
		t.Fatal("failed snapshot should report false")
	}
}

func TestReplayFromEvents(t *testing.T) {
	es := journal.New(memory.New())
	ctx := context.Background()
	initial := state.NewGameState("room-1")

	changes := []map[string]any{
		{"phase": "round1", "currentTurn": "player1"},
		{"currentTurn": "player2", "player1Score": 2},
		{"currentTurn": "player1"},
	}
	for i, change := range changes {
		_, err := es.StoreEvent(ctx, "room-1", testAction("p1", state.ActionCapture), uint64(i+1), map[string]any{
			"state_changes": change,
		})
		if err != nil {
			t.Fatalf("store event %d: %v", i+1, err)
		}
	}

	proj, version, err := es.Replay(ctx, "room-1", initial)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if version != 3 {
		t.Fatalf("replayed version = %d, want 3", version)
	}
	if proj["phase"] != "round1" {
		t.Fatalf("phase = %v, want round1", proj["phase"])
	}
	if proj["currentTurn"] != "player1" {
		t.Fatalf("currentTurn = %v, want player1 after the final event", proj["currentTurn"])
	}
	if proj["player1Score"] != 2 {
		t.Fatalf("player1Score = %v, want 2", proj["player1Score"])
	}
	if proj["version"] != uint64(3) {
		t.Fatalf("version field = %v, want 3", proj["version"])
	}
}

func TestReplayStartsFromLatestSnapshot(t *testing.T) {
	store := memory.New()
	es := journal.New(store, journal.WithSnapshotInterval(10))
	ctx := context.Background()
	initial := state.NewGameState("room-1")

	snapState := state.NewGameState("room-1")
	snapState.Version = 10
	snapState.Phase = state.PhaseRound1
	snapState.Scores[state.SeatPlayer1] = 4
	if _, err := es.CreateSnapshot(ctx, "room-1", snapState); err != nil {
		t.Fatalf("create snapshot: %v", err)
	}

	// An event before the snapshot must not be replayed over it.
	if _, err := es.StoreEvent(ctx, "room-1", testAction("p1", state.ActionCapture), 9, map[string]any{
		"state_changes": map[string]any{"player1Score": 0},
	}); err != nil {
		t.Fatalf("store event: %v", err)
	}
	if _, err := es.StoreEvent(ctx, "room-1", testAction("p2", state.ActionCapture), 11, map[string]any{
		"state_changes": map[string]any{"player2Score": 3},
	}); err != nil {
		t.Fatalf("store event: %v", err)
	}

	proj, version, err := es.Replay(ctx, "room-1", initial)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if version != 11 {
		t.Fatalf("replayed version = %d, want 11", version)
	}
	if proj["player1Score"] != 4 {
		t.Fatalf("player1Score = %v, want the snapshot value 4", proj["player1Score"])
	}
	if proj["player2Score"] != 3 {
		t.Fatalf("player2Score = %v, want 3 from the post-snapshot event", proj["player2Score"])
	}

	// The snapshot projection itself must stay unmodified.
	snap, ok, err := store.LatestSnapshot(ctx, "room-1")
	if err != nil || !ok {
		t.Fatalf("snapshot lookup: ok=%v err=%v", ok, err)
	}
	if snap.State["player2Score"] != 0 {
		t.Fatalf("replay mutated the stored snapshot: %v", snap.State["player2Score"])
	}
}
