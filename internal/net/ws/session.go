package ws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"cassino/server"
	"cassino/server/internal/net/intake"
	"cassino/server/internal/net/proto"
	"cassino/server/internal/rules"
	"cassino/server/internal/state"
)

type sessionState struct {
	roomID   string
	clientID string
	seat     state.Seat
	conn     *websocket.Conn
}

type heartbeatAck struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
	RTTMillis  int64  `json:"rtt"`
}

func marshalPayload(payload any) ([]byte, error) {
	return json.Marshal(payload)
}

// serve runs the read loop until the connection drops.
func (h *Handler) serve(sess *sessionState) {
	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			h.hub.Disconnect(sess.roomID, sess.clientID, "read error")
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", sess.clientID, err)
			continue
		}

		switch msg.Type {
		case proto.TypeAction:
			if !h.handleAction(sess, msg) {
				return
			}
		case proto.TypeSyncRequest:
			if !h.handleSync(sess, msg) {
				return
			}
		case proto.TypeHeartbeat:
			if !h.handleHeartbeat(sess, msg) {
				return
			}
		default:
			h.logger.Printf("unknown message type %q from %s", msg.Type, sess.clientID)
		}
	}
}

func (h *Handler) handleAction(sess *sessionState, msg proto.ClientMessage) bool {
	action, ok, reason := intake.StageClientAction(intake.ActionContext{
		HasRoom: func(roomID string) bool {
			_, err := h.sync.CurrentVersion(roomID)
			return err == nil
		},
	}, sess.roomID, sess.clientID, sess.seat, msg)
	if !ok {
		return h.sendRejection(sess, actionID(msg), reason, "")
	}

	result, err := h.sync.ProcessAction(context.Background(), sess.roomID, action)
	if err != nil {
		return h.sendRejection(sess, action.ID, rejectReason(err), err.Error())
	}

	ack := server.ActionAck{
		Type:     proto.TypeActionAck,
		ActionID: action.ID,
		Version:  result.Version,
		Checksum: result.Checksum,
	}
	if err := h.writeJSON(sess.roomID, sess.clientID, ack); err != nil {
		h.hub.Disconnect(sess.roomID, sess.clientID, "write error")
		return false
	}
	return true
}

func (h *Handler) handleSync(sess *sessionState, msg proto.ClientMessage) bool {
	resp, err := h.sync.SyncClient(context.Background(), sess.roomID, sess.clientID, msg.ClientVersion)
	if err != nil {
		h.logger.Printf("sync failed for %s: %v", sess.clientID, err)
		return true
	}
	resp.Type = proto.TypeSyncResponse
	if err := h.writeJSON(sess.roomID, sess.clientID, resp); err != nil {
		h.hub.Disconnect(sess.roomID, sess.clientID, "write error")
		return false
	}
	if resp.RequiresFullSync {
		// The client now holds the full state again.
		h.hub.MarkDesynced(sess.roomID, sess.clientID, false)
	}
	return true
}

func (h *Handler) handleHeartbeat(sess *sessionState, msg proto.ClientMessage) bool {
	now := time.Now()
	rtt, ok := h.hub.UpdateHeartbeat(sess.roomID, sess.clientID, now, msg.SentAt)
	if !ok {
		return true
	}
	ack := heartbeatAck{
		Ver:        proto.Version,
		Type:       proto.TypeHeartbeatAck,
		ServerTime: now.UnixMilli(),
		ClientTime: msg.SentAt,
		RTTMillis:  rtt.Milliseconds(),
	}
	if err := h.writeJSON(sess.roomID, sess.clientID, ack); err != nil {
		h.hub.Disconnect(sess.roomID, sess.clientID, "write error")
		return false
	}
	return true
}

func (h *Handler) sendRejection(sess *sessionState, id, reason, detail string) bool {
	reject := server.ActionRejected{
		Type:     proto.TypeActionRejected,
		ActionID: id,
		Reason:   reason,
		Message:  detail,
	}
	if err := h.writeJSON(sess.roomID, sess.clientID, reject); err != nil {
		h.hub.Disconnect(sess.roomID, sess.clientID, "write error")
		return false
	}
	return true
}

func actionID(msg proto.ClientMessage) string {
	if msg.Action == nil {
		return ""
	}
	return msg.Action.ID
}

// rejectReason maps pipeline errors onto wire reject reasons.
func rejectReason(err error) string {
	var turnErr *server.TurnOrderError
	if errors.As(err, &turnErr) {
		return server.RejectNotYourTurn
	}
	var blockErr *server.SecurityBlockError
	if errors.As(err, &blockErr) {
		return server.RejectSecurityBlock
	}
	var staleErr *server.VersionConflictError
	if errors.As(err, &staleErr) {
		return server.RejectStaleVersion
	}
	var ruleErr *rules.ValidationError
	if errors.As(err, &ruleErr) {
		return server.RejectRuleViolation
	}
	if errors.Is(err, server.ErrRoomNotFound) {
		return server.RejectUnknownRoom
	}
	return server.RejectInvalidAction
}
