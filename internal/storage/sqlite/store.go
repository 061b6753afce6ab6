// Package sqlite is the durable journal store. Events and snapshots live in
// one database file per server; sequence assignment happens inside the same
// transaction as the insert, so concurrent appends for a room can never mint
// the same sequence number.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"

	"cassino/server/internal/journal"
	"cassino/server/internal/state"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	room_id     TEXT NOT NULL,
	sequence    INTEGER NOT NULL,
	version     INTEGER NOT NULL,
	player_id   TEXT NOT NULL,
	action_type TEXT NOT NULL,
	action_data TEXT NOT NULL,
	checksum    TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	UNIQUE (room_id, sequence)
);
CREATE INDEX IF NOT EXISTS idx_events_room_version ON events (room_id, version);

CREATE TABLE IF NOT EXISTS snapshots (
	room_id    TEXT NOT NULL,
	version    INTEGER NOT NULL,
	state      BLOB NOT NULL,
	checksum   TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (room_id, version)
);
`

// Store implements journal.Store on sqlite.
type Store struct {
	db *sql.DB
}

// Open opens (and if necessary initializes) the database at path. The busy
// timeout keeps append latency bounded instead of failing fast under lock
// contention.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendEvent inserts one event with sequence = max(room sequence) + 1. The
// read and the insert share a transaction; any failure rolls the whole write
// back.
func (s *Store) AppendEvent(ctx context.Context, evt journal.Event) (journal.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return journal.Event{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var maxSeq uint64
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE room_id = ?`, evt.RoomID)
	if err := row.Scan(&maxSeq); err != nil {
		return journal.Event{}, fmt.Errorf("read max sequence: %w", err)
	}
	evt.Sequence = maxSeq + 1
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	actionData, err := json.Marshal(evt.ActionData)
	if err != nil {
		return journal.Event{}, fmt.Errorf("encode action data: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (id, room_id, sequence, version, player_id, action_type, action_data, checksum, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.ID, evt.RoomID, evt.Sequence, evt.Version, evt.PlayerID,
		string(evt.ActionType), string(actionData), evt.Checksum, evt.Timestamp.UnixMilli())
	if err != nil {
		return journal.Event{}, fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return journal.Event{}, fmt.Errorf("commit append: %w", err)
	}
	return evt, nil
}

// EventsSince returns the room's events with version in (fromVersion,
// toVersion] ordered by sequence. A zero toVersion means unbounded.
func (s *Store) EventsSince(ctx context.Context, roomID string, fromVersion, toVersion uint64) ([]journal.Event, error) {
	query := `SELECT id, room_id, sequence, version, player_id, action_type, action_data, checksum, created_at
		FROM events WHERE room_id = ? AND version > ?`
	args := []any{roomID, fromVersion}
	if toVersion > 0 {
		query += ` AND version <= ?`
		args = append(args, toVersion)
	}
	query += ` ORDER BY sequence ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []journal.Event
	for rows.Next() {
		var (
			evt        journal.Event
			actionType string
			actionData string
			createdAt  int64
		)
		if err := rows.Scan(&evt.ID, &evt.RoomID, &evt.Sequence, &evt.Version,
			&evt.PlayerID, &actionType, &actionData, &evt.Checksum, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.ActionType = state.ActionType(actionType)
		evt.Timestamp = time.UnixMilli(createdAt)
		if err := json.Unmarshal([]byte(actionData), &evt.ActionData); err != nil {
			return nil, fmt.Errorf("decode action data for event %s: %w", evt.ID, err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// LatestSnapshot returns the highest-version snapshot for the room.
func (s *Store) LatestSnapshot(ctx context.Context, roomID string) (journal.Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT room_id, version, state, checksum, created_at FROM snapshots
		 WHERE room_id = ? ORDER BY version DESC LIMIT 1`, roomID)
	return scanSnapshot(row)
}

// SnapshotAt returns the snapshot at an exact version, if present.
func (s *Store) SnapshotAt(ctx context.Context, roomID string, version uint64) (journal.Snapshot, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT room_id, version, state, checksum, created_at FROM snapshots
		 WHERE room_id = ? AND version = ?`, roomID, version)
	return scanSnapshot(row)
}

// PutSnapshot stores a snapshot, replacing any existing row at the same
// version. The projection blob is snappy-compressed at rest.
func (s *Store) PutSnapshot(ctx context.Context, snap journal.Snapshot) error {
	raw, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("encode snapshot state: %w", err)
	}
	blob := snappy.Encode(nil, raw)
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO snapshots (room_id, version, state, checksum, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.RoomID, snap.Version, blob, snap.Checksum, snap.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// SnapshotVersions lists the stored snapshot versions for a room.
func (s *Store) SnapshotVersions(ctx context.Context, roomID string) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version FROM snapshots WHERE room_id = ? ORDER BY version ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("query snapshot versions: %w", err)
	}
	defer rows.Close()

	var versions []uint64
	for rows.Next() {
		var version uint64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan snapshot version: %w", err)
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// DeleteSnapshot removes the snapshot at the given version.
func (s *Store) DeleteSnapshot(ctx context.Context, roomID string, version uint64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE room_id = ? AND version = ?`, roomID, version)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func scanSnapshot(row *sql.Row) (journal.Snapshot, bool, error) {
	var (
		snap      journal.Snapshot
		blob      []byte
		createdAt int64
	)
	err := row.Scan(&snap.RoomID, &snap.Version, &blob, &snap.Checksum, &createdAt)
	if err == sql.ErrNoRows {
		return journal.Snapshot{}, false, nil
	}
	if err != nil {
		return journal.Snapshot{}, false, fmt.Errorf("scan snapshot: %w", err)
	}
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return journal.Snapshot{}, false, fmt.Errorf("decompress snapshot: %w", err)
	}
	if err := json.Unmarshal(raw, &snap.State); err != nil {
		return journal.Snapshot{}, false, fmt.Errorf("decode snapshot state: %w", err)
	}
	snap.CreatedAt = time.UnixMilli(createdAt)
	return snap, true, nil
}
