package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cassino/server/internal/journal"
	"cassino/server/internal/state"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendEventSequencing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := uint64(1); i <= 3; i++ {
		evt := journal.Event{
			ID:         "evt-" + string(rune('a'+i)),
			RoomID:     "room-1",
			Version:    i,
			PlayerID:   "p1",
			ActionType: state.ActionTrail,
			ActionData: map[string]any{"cardId": "K_hearts"},
			Checksum:   "deadbeef",
		}
		stored, err := store.AppendEvent(ctx, evt)
		if err != nil {
			t.Fatalf("append event %d: %v", i, err)
		}
		if stored.Sequence != i {
			t.Fatalf("sequence = %d, want %d", stored.Sequence, i)
		}
	}

	other := journal.Event{ID: "evt-z", RoomID: "room-2", Version: 1, PlayerID: "p1", ActionType: state.ActionTrail, ActionData: map[string]any{}}
	stored, err := store.AppendEvent(ctx, other)
	if err != nil {
		t.Fatalf("append event: %v", err)
	}
	if stored.Sequence != 1 {
		t.Fatalf("other room sequence = %d, want 1", stored.Sequence)
	}
}

func TestEventsSinceRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for v := uint64(1); v <= 5; v++ {
		evt := journal.Event{
			ID:         "evt-" + string(rune('a'+v)),
			RoomID:     "room-1",
			Version:    v,
			PlayerID:   "p1",
			ActionType: state.ActionCapture,
			ActionData: map[string]any{
				"cardId":        "8_hearts",
				"state_changes": map[string]any{"currentTurn": "player2"},
			},
			Checksum:  "deadbeef",
			Timestamp: time.UnixMilli(1700000000000 + int64(v)),
		}
		if _, err := store.AppendEvent(ctx, evt); err != nil {
			t.Fatalf("append event %d: %v", v, err)
		}
	}

	events, err := store.EventsSince(ctx, "room-1", 2, 4)
	if err != nil {
		t.Fatalf("events since: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("window (2, 4] should hold 2 events, got %d", len(events))
	}
	if events[0].Version != 3 || events[1].Version != 4 {
		t.Fatalf("versions = %d, %d", events[0].Version, events[1].Version)
	}
	if events[0].ActionType != state.ActionCapture {
		t.Fatalf("action type = %q", events[0].ActionType)
	}
	changes := events[0].StateChanges()
	if changes["currentTurn"] != "player2" {
		t.Fatalf("state changes did not survive the round trip: %v", changes)
	}
	if events[0].Timestamp.UnixMilli() != 1700000000003 {
		t.Fatalf("timestamp = %d", events[0].Timestamp.UnixMilli())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.LatestSnapshot(ctx, "room-1"); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	gs := state.NewGameState("room-1")
	gs.Version = 10
	gs.Phase = state.PhaseRound1
	snap := journal.Snapshot{
		RoomID:    "room-1",
		Version:   10,
		State:     gs.Project(),
		Checksum:  "cafef00d",
		CreatedAt: time.UnixMilli(1700000000000),
	}
	if err := store.PutSnapshot(ctx, snap); err != nil {
		t.Fatalf("put snapshot: %v", err)
	}

	got, ok, err := store.SnapshotAt(ctx, "room-1", 10)
	if err != nil || !ok {
		t.Fatalf("snapshot at: ok=%v err=%v", ok, err)
	}
	if got.Checksum != "cafef00d" {
		t.Fatalf("checksum = %q", got.Checksum)
	}
	if got.State["phase"] != "round1" {
		t.Fatalf("phase = %v, want round1", got.State["phase"])
	}
	if got.State["deckCount"] != float64(52) {
		t.Fatalf("deckCount = %v (%T), want 52", got.State["deckCount"], got.State["deckCount"])
	}
	if got.CreatedAt.UnixMilli() != 1700000000000 {
		t.Fatalf("createdAt = %d", got.CreatedAt.UnixMilli())
	}
}

func TestLatestSnapshotPicksHighestVersion(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	gs := state.NewGameState("room-1")

	for _, v := range []uint64{10, 30, 20} {
		gs.Version = v
		snap := journal.Snapshot{RoomID: "room-1", Version: v, State: gs.Project(), Checksum: "x"}
		if err := store.PutSnapshot(ctx, snap); err != nil {
			t.Fatalf("put snapshot %d: %v", v, err)
		}
	}

	latest, ok, err := store.LatestSnapshot(ctx, "room-1")
	if err != nil || !ok {
		t.Fatalf("latest snapshot: ok=%v err=%v", ok, err)
	}
	if latest.Version != 30 {
		t.Fatalf("latest version = %d, want 30", latest.Version)
	}
}

func TestSnapshotVersionsAndDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	gs := state.NewGameState("room-1")

	for _, v := range []uint64{10, 20, 30} {
		gs.Version = v
		if err := store.PutSnapshot(ctx, journal.Snapshot{RoomID: "room-1", Version: v, State: gs.Project(), Checksum: "x"}); err != nil {
			t.Fatalf("put snapshot %d: %v", v, err)
		}
	}

	versions, err := store.SnapshotVersions(ctx, "room-1")
	if err != nil {
		t.Fatalf("snapshot versions: %v", err)
	}
	if len(versions) != 3 || versions[0] != 10 || versions[2] != 30 {
		t.Fatalf("versions = %v", versions)
	}

	if err := store.DeleteSnapshot(ctx, "room-1", 10); err != nil {
		t.Fatalf("delete snapshot: %v", err)
	}
	versions, err = store.SnapshotVersions(ctx, "room-1")
	if err != nil {
		t.Fatalf("snapshot versions: %v", err)
	}
	if len(versions) != 2 || versions[0] != 20 {
		t.Fatalf("versions after delete = %v", versions)
	}
}

func TestPutSnapshotReplacesSameVersion(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	gs := state.NewGameState("room-1")
	gs.Version = 10

	if err := store.PutSnapshot(ctx, journal.Snapshot{RoomID: "room-1", Version: 10, State: gs.Project(), Checksum: "first"}); err != nil {
		t.Fatalf("put snapshot: %v", err)
	}
	if err := store.PutSnapshot(ctx, journal.Snapshot{RoomID: "room-1", Version: 10, State: gs.Project(), Checksum: "second"}); err != nil {
		t.Fatalf("replace snapshot: %v", err)
	}

	got, ok, err := store.SnapshotAt(ctx, "room-1", 10)
	if err != nil || !ok {
		t.Fatalf("snapshot at: ok=%v err=%v", ok, err)
	}
	if got.Checksum != "second" {
		t.Fatalf("checksum = %q, want second", got.Checksum)
	}
}
