// Package proto defines the websocket wire contract between clients and the
// synchronization server. The structs here are the source of truth for the
// generated JSON schema.
package proto

import (
	"encoding/json"
	"fmt"
)

// Version tracks the wire-protocol revision expected by clients.
const Version = 1

// Client message type identifiers.
const (
	TypeAction      = "action"
	TypeSyncRequest = "sync_request"
	TypeHeartbeat   = "heartbeat"
)

// Server message type identifiers.
const (
	TypeStateUpdate    = "state_update"
	TypeStateDelta     = "state_delta"
	TypeActionAck      = "action_ack"
	TypeActionRejected = "action_rejected"
	TypeSyncResponse   = "sync_response"
	TypeHeartbeatAck   = "heartbeat_ack"
	TypeDesync         = "desync"
)

// ClientMessage is the envelope for everything a client sends over the
// socket. Type selects which optional fields are meaningful.
type ClientMessage struct {
	Ver           int            `json:"ver,omitempty"`
	Type          string         `json:"type" jsonschema:"required,enum=action,enum=sync_request,enum=heartbeat"`
	Action        *ActionPayload `json:"action,omitempty"`
	ClientVersion uint64         `json:"clientVersion,omitempty"`
	SentAt        int64          `json:"sentAt,omitempty"`
}

// ActionPayload carries one game action. Card ids use the RANK_suit
// grammar, for example "10_diamonds".
type ActionPayload struct {
	ID              string   `json:"actionId,omitempty"`
	Type            string   `json:"actionType" jsonschema:"required"`
	CardID          string   `json:"cardId,omitempty"`
	TargetCards     []string `json:"targetCards,omitempty"`
	BuildValue      int      `json:"buildValue,omitempty"`
	ClientTimestamp int64    `json:"clientTimestamp,omitempty"`
}

// DecodeClientMessage parses and minimally validates one inbound frame.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("decode client message: %w", err)
	}
	if msg.Type == "" {
		return ClientMessage{}, fmt.Errorf("decode client message: missing type")
	}
	return msg, nil
}
