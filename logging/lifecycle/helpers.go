package lifecycle

import (
	"context"

	"cassino/server/logging"
)

const (
	// EventRoomCreated is emitted when a room registers its first state.
	EventRoomCreated logging.EventType = "lifecycle.room_created"
	// EventClientJoined is emitted when a websocket session subscribes to a room.
	EventClientJoined logging.EventType = "lifecycle.client_joined"
	// EventClientLeft is emitted when a session disconnects or is evicted.
	EventClientLeft logging.EventType = "lifecycle.client_left"
	// EventServerReady is emitted once the HTTP listener is accepting traffic.
	EventServerReady logging.EventType = "lifecycle.server_ready"
	// EventServerStopping is emitted when graceful shutdown begins.
	EventServerStopping logging.EventType = "lifecycle.server_stopping"
)

// RoomPayload carries room identity for lifecycle events.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// ClientPayload describes a session transition within a room.
type ClientPayload struct {
	RoomID   string `json:"roomId"`
	ClientID string `json:"clientId"`
	Reason   string `json:"reason,omitempty"`
}

// RoomCreated publishes a room creation event.
func RoomCreated(ctx context.Context, pub logging.Publisher, version uint64, roomID string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRoomCreated,
		Version:  version,
		Actor:    logging.EntityRef{ID: roomID, Kind: logging.EntityKindRoom},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Payload:  RoomPayload{RoomID: roomID},
	})
}

// ClientJoined publishes a subscription event for a session.
func ClientJoined(ctx context.Context, pub logging.Publisher, version uint64, roomID, clientID string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventClientJoined,
		Version:  version,
		Actor:    logging.EntityRef{ID: clientID, Kind: logging.EntityKindClient},
		Targets:  []logging.EntityRef{{ID: roomID, Kind: logging.EntityKindRoom}},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Payload:  ClientPayload{RoomID: roomID, ClientID: clientID},
	})
}

// ClientLeft publishes a disconnect event with the eviction reason.
func ClientLeft(ctx context.Context, pub logging.Publisher, version uint64, roomID, clientID, reason string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventClientLeft,
		Version:  version,
		Actor:    logging.EntityRef{ID: clientID, Kind: logging.EntityKindClient},
		Targets:  []logging.EntityRef{{ID: roomID, Kind: logging.EntityKindRoom}},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Payload:  ClientPayload{RoomID: roomID, ClientID: clientID, Reason: reason},
	})
}

// ServerReady publishes a listener startup event.
func ServerReady(ctx context.Context, pub logging.Publisher, addr string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventServerReady,
		Actor:    logging.EntityRef{ID: "server", Kind: logging.EntityKindSystem},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Extra:    map[string]any{"addr": addr},
	})
}

// ServerStopping publishes a shutdown event.
func ServerStopping(ctx context.Context, pub logging.Publisher, reason string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventServerStopping,
		Actor:    logging.EntityRef{ID: "server", Kind: logging.EntityKindSystem},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Extra:    map[string]any{"reason": reason},
	})
}
