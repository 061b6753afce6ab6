package memory

import (
	"context"
	"errors"
	"testing"

	"cassino/server/internal/journal"
	"cassino/server/internal/state"
)

func TestAppendEventFillsDefaults(t *testing.T) {
	store := New()
	evt, err := store.AppendEvent(context.Background(), journal.Event{
		RoomID:     "room-1",
		Version:    1,
		PlayerID:   "p1",
		ActionType: state.ActionTrail,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if evt.Sequence != 1 {
		t.Fatalf("sequence = %d, want 1", evt.Sequence)
	}
	if evt.ID == "" || evt.Timestamp.IsZero() {
		t.Fatal("append should fill id and timestamp")
	}
}

func TestFailNextAffectsOneCall(t *testing.T) {
	store := New()
	boom := errors.New("boom")
	store.FailNext(boom)

	_, err := store.AppendEvent(context.Background(), journal.Event{RoomID: "room-1", Version: 1})
	if !errors.Is(err, boom) {
		t.Fatalf("first call should fail with boom, got %v", err)
	}
	if _, err := store.AppendEvent(context.Background(), journal.Event{RoomID: "room-1", Version: 1}); err != nil {
		t.Fatalf("second call should succeed, got %v", err)
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, ok, err := store.LatestSnapshot(ctx, "room-1"); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	for _, v := range []uint64{10, 20} {
		if err := store.PutSnapshot(ctx, journal.Snapshot{RoomID: "room-1", Version: v, State: state.Projection{"version": v}}); err != nil {
			t.Fatalf("put snapshot %d: %v", v, err)
		}
	}

	latest, ok, err := store.LatestSnapshot(ctx, "room-1")
	if err != nil || !ok || latest.Version != 20 {
		t.Fatalf("latest = %+v ok=%v err=%v", latest, ok, err)
	}
	if _, ok, _ := store.SnapshotAt(ctx, "room-1", 10); !ok {
		t.Fatal("snapshot at 10 should exist")
	}
	if err := store.DeleteSnapshot(ctx, "room-1", 10); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.SnapshotAt(ctx, "room-1", 10); ok {
		t.Fatal("snapshot at 10 should be gone")
	}
	versions, err := store.SnapshotVersions(ctx, "room-1")
	if err != nil || len(versions) != 1 || versions[0] != 20 {
		t.Fatalf("versions = %v err=%v", versions, err)
	}
}
