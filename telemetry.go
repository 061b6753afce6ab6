package server

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// Telemetry aggregates pipeline counters. All methods are safe for
// concurrent use.
type Telemetry struct {
	actionsProcessed     atomic.Uint64
	actionsRejected      atomic.Uint64
	securityViolations   atomic.Uint64
	conflictsDetected    atomic.Uint64
	conflictsResolved    atomic.Uint64
	snapshotsCreated     atomic.Uint64
	broadcastsSent       atomic.Uint64
	broadcastFailures    atomic.Uint64
	deltasSent           atomic.Uint64
	clientsDesynced      atomic.Uint64
	syncRequests         atomic.Uint64
	fullResyncs          atomic.Uint64
	bytesSent            atomic.Uint64
	lastBroadcastBytes   atomic.Uint64
	lastActionMillis     atomic.Int64
	debug                bool
}

type TelemetrySnapshot struct {
	ActionsProcessed   uint64 `json:"actionsProcessed"`
	ActionsRejected    uint64 `json:"actionsRejected"`
	SecurityViolations uint64 `json:"securityViolations"`
	ConflictsDetected  uint64 `json:"conflictsDetected"`
	ConflictsResolved  uint64 `json:"conflictsResolved"`
	SnapshotsCreated   uint64 `json:"snapshotsCreated"`
	BroadcastsSent     uint64 `json:"broadcastsSent"`
	BroadcastFailures  uint64 `json:"broadcastFailures"`
	DeltasSent         uint64 `json:"deltasSent"`
	ClientsDesynced    uint64 `json:"clientsDesynced"`
	SyncRequests       uint64 `json:"syncRequests"`
	FullResyncs        uint64 `json:"fullResyncs"`
	BytesSent          uint64 `json:"bytesSent"`
	LastActionMillis   int64  `json:"lastActionMillis"`
}

func NewTelemetry() *Telemetry {
	t := &Telemetry{}
	if os.Getenv("DEBUG_TELEMETRY") == "1" {
		t.debug = true
	}
	return t
}

func (t *Telemetry) RecordAction(duration time.Duration, rejected bool) {
	t.actionsProcessed.Add(1)
	if rejected {
		t.actionsRejected.Add(1)
	}
	millis := duration.Milliseconds()
	if millis < 0 {
		millis = 0
	}
	t.lastActionMillis.Store(millis)
	if t.debug {
		fmt.Printf(
			"[telemetry] action=%dms processed=%d rejected=%d\n",
			millis,
			t.actionsProcessed.Load(),
			t.actionsRejected.Load(),
		)
	}
}

func (t *Telemetry) RecordViolations(count int) {
	if count <= 0 {
		return
	}
	t.securityViolations.Add(uint64(count))
}

func (t *Telemetry) RecordConflict(resolved bool) {
	t.conflictsDetected.Add(1)
	if resolved {
		t.conflictsResolved.Add(1)
	}
}

func (t *Telemetry) RecordSnapshot() {
	t.snapshotsCreated.Add(1)
}

func (t *Telemetry) RecordBroadcast(bytes int, delta bool) {
	if bytes < 0 {
		bytes = 0
	}
	t.broadcastsSent.Add(1)
	if delta {
		t.deltasSent.Add(1)
	}
	t.bytesSent.Add(uint64(bytes))
	t.lastBroadcastBytes.Store(uint64(bytes))
}

func (t *Telemetry) RecordBroadcastFailure() {
	t.broadcastFailures.Add(1)
}

func (t *Telemetry) RecordDesync() {
	t.clientsDesynced.Add(1)
}

func (t *Telemetry) RecordSync(full bool) {
	t.syncRequests.Add(1)
	if full {
		t.fullResyncs.Add(1)
	}
}

func (t *Telemetry) DebugEnabled() bool {
	return t.debug
}

func (t *Telemetry) Snapshot() TelemetrySnapshot {
	return TelemetrySnapshot{
		ActionsProcessed:   t.actionsProcessed.Load(),
		ActionsRejected:    t.actionsRejected.Load(),
		SecurityViolations: t.securityViolations.Load(),
		ConflictsDetected:  t.conflictsDetected.Load(),
		ConflictsResolved:  t.conflictsResolved.Load(),
		SnapshotsCreated:   t.snapshotsCreated.Load(),
		BroadcastsSent:     t.broadcastsSent.Load(),
		BroadcastFailures:  t.broadcastFailures.Load(),
		DeltasSent:         t.deltasSent.Load(),
		ClientsDesynced:    t.clientsDesynced.Load(),
		SyncRequests:       t.syncRequests.Load(),
		FullResyncs:        t.fullResyncs.Load(),
		BytesSent:          t.bytesSent.Load(),
		LastActionMillis:   t.lastActionMillis.Load(),
	}
}
