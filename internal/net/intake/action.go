// Package intake normalizes raw client frames into game actions before they
// reach the synchronizer.
package intake

import (
	"time"

	"github.com/google/uuid"

	"cassino/server"
	"cassino/server/internal/net/proto"
	"cassino/server/internal/state"
)

// ActionContext carries the lookups staging needs. Nil funcs skip their
// check.
type ActionContext struct {
	HasRoom func(string) bool
	Now     func() time.Time
}

// StageClientAction turns a decoded client frame into a server-stamped
// GameAction. The boolean reports acceptance; on rejection the string is a
// wire reject reason.
func StageClientAction(ctx ActionContext, roomID, clientID string, seat state.Seat, msg proto.ClientMessage) (state.GameAction, bool, string) {
	var zero state.GameAction

	if msg.Action == nil {
		return zero, false, server.RejectInvalidAction
	}
	payload := *msg.Action

	actionType := state.ActionType(payload.Type)
	if !actionType.Valid() {
		return zero, false, server.RejectInvalidAction
	}
	if payload.CardID != "" {
		if _, err := state.ParseCard(payload.CardID); err != nil {
			return zero, false, server.RejectInvalidAction
		}
	}
	for _, target := range payload.TargetCards {
		if _, err := state.ParseCard(target); err != nil {
			return zero, false, server.RejectInvalidAction
		}
	}
	if ctx.HasRoom != nil && !ctx.HasRoom(roomID) {
		return zero, false, server.RejectUnknownRoom
	}

	now := time.Now()
	if ctx.Now != nil {
		now = ctx.Now()
	}

	action := state.GameAction{
		ID:              payload.ID,
		PlayerID:        clientID,
		Seat:            seat,
		Type:            actionType,
		CardID:          state.Card(payload.CardID),
		BuildValue:      payload.BuildValue,
		ClientTimestamp: payload.ClientTimestamp,
		ClientVersion:   msg.ClientVersion,
		ServerTimestamp: now.UnixMilli(),
	}
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if len(payload.TargetCards) > 0 {
		targets := make([]state.Card, 0, len(payload.TargetCards))
		for _, target := range payload.TargetCards {
			targets = append(targets, state.Card(target))
		}
		action.TargetIDs = targets
	}
	return action, true, ""
}
