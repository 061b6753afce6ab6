package network

import (
	"context"

	"cassino/server/logging"
)

const (
	// EventBroadcastFailed is emitted when a state update cannot be delivered.
	EventBroadcastFailed logging.EventType = "network.broadcast_failed"
	// EventRetryScheduled is emitted when a failed delivery is queued for retry.
	EventRetryScheduled logging.EventType = "network.retry_scheduled"
	// EventClientDesynced is emitted after delivery retries are exhausted.
	EventClientDesynced logging.EventType = "network.client_desynced"
	// EventSyncRequested is emitted when a client asks for missed versions.
	EventSyncRequested logging.EventType = "network.sync_requested"
)

// DeliveryPayload describes a delivery attempt toward one client.
type DeliveryPayload struct {
	RoomID   string `json:"roomId"`
	ClientID string `json:"clientId"`
	Attempt  int    `json:"attempt,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SyncPayload describes a client catch-up request.
type SyncPayload struct {
	RoomID        string `json:"roomId"`
	ClientID      string `json:"clientId"`
	ClientVersion uint64 `json:"clientVersion"`
	ServerVersion uint64 `json:"serverVersion"`
	FullSync      bool   `json:"fullSync"`
}

// BroadcastFailed publishes a failed delivery toward a single client.
func BroadcastFailed(ctx context.Context, pub logging.Publisher, version uint64, payload DeliveryPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBroadcastFailed,
		Version:  version,
		Actor:    logging.EntityRef{ID: payload.ClientID, Kind: logging.EntityKindClient},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryBroadcast,
		Payload:  payload,
	})
}

// RetryScheduled publishes a queued redelivery attempt.
func RetryScheduled(ctx context.Context, pub logging.Publisher, version uint64, payload DeliveryPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRetryScheduled,
		Version:  version,
		Actor:    logging.EntityRef{ID: payload.ClientID, Kind: logging.EntityKindClient},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryBroadcast,
		Payload:  payload,
	})
}

// ClientDesynced publishes a desync flag after retries are exhausted.
func ClientDesynced(ctx context.Context, pub logging.Publisher, version uint64, payload DeliveryPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventClientDesynced,
		Version:  version,
		Actor:    logging.EntityRef{ID: payload.ClientID, Kind: logging.EntityKindClient},
		Severity: logging.SeverityError,
		Category: logging.CategoryBroadcast,
		Payload:  payload,
	})
}

// SyncRequested publishes a client catch-up request with gap details.
func SyncRequested(ctx context.Context, pub logging.Publisher, payload SyncPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSyncRequested,
		Version:  payload.ServerVersion,
		Actor:    logging.EntityRef{ID: payload.ClientID, Kind: logging.EntityKindClient},
		Targets:  []logging.EntityRef{{ID: payload.RoomID, Kind: logging.EntityKindRoom}},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySync,
		Payload:  payload,
	})
}
