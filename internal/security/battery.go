package security

import (
	"fmt"

	"cassino/server/internal/state"
)

// ValidateAction runs the pre-mutation checks: the action type must be known
// and, for play actions, the submitting seat must hold the turn. Turn-order
// violations are medium severity on their own; enforcement (rejecting the
// action and escalating repeat offenders) is the caller's job because it owns
// the per-room tracker.
func ValidateAction(prev *state.GameState, action state.GameAction) Report {
	var report Report

	if !action.Type.Valid() {
		report.Add(Violation{
			Type:        ViolationActionType,
			Severity:    SeverityCritical,
			Description: fmt.Sprintf("unknown action type %q", action.Type),
			Details:     map[string]any{"actionType": string(action.Type)},
		})
		return report
	}

	if action.Type.EndsTurn() {
		if ok, msg := ValidateTurnOrder(action.Seat, prev.CurrentTurn); !ok {
			report.Add(Violation{
				Type:        ViolationTurnOrder,
				Severity:    SeverityMedium,
				Description: msg,
				Details: map[string]any{
					"playerId":    action.PlayerID,
					"seat":        string(action.Seat),
					"currentTurn": string(prev.CurrentTurn),
				},
			})
		}
	}
	return report
}

// ValidateTransition runs the post-mutation battery against the state the
// rules engine produced: card conservation, score integrity, the phase graph,
// and the turn-advance rule. A critical violation anywhere means the caller
// must abort without committing.
func ValidateTransition(prev, next *state.GameState, actionType state.ActionType) Report {
	var report Report
	report.Merge(ValidateCardIntegrity(next))
	report.Merge(ValidateScoreIntegrity(next))
	report.Merge(ValidateStateTransition(prev, next))
	report.Merge(ValidateTurnAdvance(prev, next, actionType))
	return report
}
