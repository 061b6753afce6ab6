package server

import (
	"cassino/server/internal/conflict"
	"cassino/server/internal/journal"
	"cassino/server/internal/state"
)

// StateUpdate carries a full authoritative state to every subscriber. When
// Compressed is set, State holds the base64 of the gzipped projection
// instead of the projection itself.
type StateUpdate struct {
	Type       string `json:"type"`
	RoomID     string `json:"roomId"`
	State      any    `json:"state"`
	Version    uint64 `json:"version"`
	Checksum   string `json:"checksum"`
	Timestamp  string `json:"timestamp"`
	Compressed bool   `json:"compressed,omitempty"`
}

// StateDelta carries only the tracked fields that changed since the base
// version.
type StateDelta struct {
	Type        string         `json:"type"`
	RoomID      string         `json:"roomId"`
	Version     uint64         `json:"version"`
	BaseVersion uint64         `json:"baseVersion"`
	Changes     map[string]any `json:"changes"`
	Checksum    string         `json:"checksum"`
	Timestamp   string         `json:"timestamp"`
}

// ActionAck confirms an accepted action to its sender.
type ActionAck struct {
	Type     string `json:"type"`
	ActionID string `json:"actionId"`
	Version  uint64 `json:"version"`
	Checksum string `json:"checksum"`
}

// ActionRejected tells the sender why an action was refused. Conflict
// rejections carry the structured notification instead of a bare reason.
type ActionRejected struct {
	Type     string                 `json:"type"`
	ActionID string                 `json:"actionId,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Conflict *conflict.Notification `json:"conflict,omitempty"`
}

// SyncResponse answers a catch-up request. MissingEvents is populated for
// small gaps; State for full resyncs.
type SyncResponse struct {
	Type             string           `json:"type"`
	Success          bool             `json:"success"`
	RoomID           string           `json:"roomId"`
	CurrentVersion   uint64           `json:"currentVersion"`
	ClientVersion    uint64           `json:"clientVersion"`
	State            state.Projection `json:"state,omitempty"`
	Checksum         string           `json:"checksum,omitempty"`
	MissingEvents    []journal.Event  `json:"missingEvents,omitempty"`
	RequiresFullSync bool             `json:"requiresFullSync"`
	Message          string           `json:"message,omitempty"`
}

// Desync tells a client that deliveries to it were dropped and it must
// request a full sync.
type Desync struct {
	Type          string `json:"type"`
	RoomID        string `json:"roomId"`
	ServerVersion uint64 `json:"serverVersion"`
	Message       string `json:"message"`
}

// JoinResponse is returned by the HTTP join endpoint.
type JoinResponse struct {
	RoomID   string           `json:"roomId"`
	ClientID string           `json:"clientId"`
	Seat     state.Seat       `json:"seat"`
	State    state.Projection `json:"state"`
	Version  uint64           `json:"version"`
	Checksum string           `json:"checksum"`
}

// DiagnosticsClient describes one live session for the diagnostics endpoint.
type DiagnosticsClient struct {
	ID            string `json:"id"`
	RoomID        string `json:"roomId"`
	LastHeartbeat int64  `json:"lastHeartbeat"`
	RTTMillis     int64  `json:"rttMillis"`
	Desynced      bool   `json:"desynced"`
}
