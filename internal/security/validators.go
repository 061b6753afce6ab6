package security

import (
	"fmt"

	"cassino/server/internal/state"
)

// maxBaseScore is the highest score reachable in a single round: 11 base
// points plus the 4 bonus points for most cards and most spades, capped well
// under the 21-point game target.
const maxScore = 21

// maxBonusPoints covers most-cards (3) and most-spades (1).
const maxBonusPoints = 4

// ValidateCardIntegrity checks the conservation invariant: exactly 52 cards
// across all zones, no identifier in two zones, every identifier well-formed.
func ValidateCardIntegrity(s *state.GameState) Report {
	var report Report
	cards := s.AllCards()

	if len(cards) != state.DeckSize {
		report.Add(Violation{
			Type:        ViolationCardCount,
			Severity:    SeverityCritical,
			Description: fmt.Sprintf("expected %d cards across all zones, found %d", state.DeckSize, len(cards)),
			Details:     map[string]any{"total": len(cards)},
		})
	}

	seen := make(map[state.Card]int, len(cards))
	for _, card := range cards {
		seen[card]++
	}
	for card, count := range seen {
		if count > 1 {
			report.Add(Violation{
				Type:        ViolationCardDuplicate,
				Severity:    SeverityCritical,
				Description: fmt.Sprintf("card %s appears in %d zones", card, count),
				Details:     map[string]any{"cardId": string(card), "occurrences": count},
			})
		}
		if !card.Valid() {
			report.Add(Violation{
				Type:        ViolationCardIdentity,
				Severity:    SeverityHigh,
				Description: fmt.Sprintf("card id %q does not match <rank>_<suit>", card),
				Details:     map[string]any{"cardId": string(card)},
			})
		}
	}
	return report
}

// BaseScore recomputes a seat's minimum score from its captured cards: one
// point per ace, one for the two of spades, two for the ten of diamonds.
func BaseScore(captured []state.Card) int {
	score := 0
	for _, card := range captured {
		switch {
		case card.Rank() == "A":
			score++
		case card == state.NewCard("2", "spades"):
			score++
		case card == state.NewCard("10", "diamonds"):
			score += 2
		}
	}
	return score
}

// ValidateScoreIntegrity verifies that each seat's reported score is
// reachable from its captured cards. Scores outside [0, 21] are critical;
// scores below the recomputed base or above base plus the maximum bonus are
// flagged high but do not block.
func ValidateScoreIntegrity(s *state.GameState) Report {
	var report Report
	for _, seat := range state.Seats() {
		reported := s.Scores[seat]
		base := BaseScore(s.Captures[seat])

		if reported < 0 || reported > maxScore {
			report.Add(Violation{
				Type:        ViolationScoreRange,
				Severity:    SeverityCritical,
				Description: fmt.Sprintf("%s score %d outside valid range [0, %d]", seat, reported, maxScore),
				Details:     map[string]any{"seat": string(seat), "reported": reported},
			})
			continue
		}
		if reported < base {
			report.Add(Violation{
				Type:        ViolationScoreTooLow,
				Severity:    SeverityHigh,
				Description: fmt.Sprintf("%s score %d below base %d recomputed from captures", seat, reported, base),
				Details:     map[string]any{"seat": string(seat), "reported": reported, "base": base},
			})
		}
		if reported > base+maxBonusPoints {
			report.Add(Violation{
				Type:        ViolationScoreTooHigh,
				Severity:    SeverityHigh,
				Description: fmt.Sprintf("%s score %d exceeds base %d plus maximum bonus %d", seat, reported, base, maxBonusPoints),
				Details:     map[string]any{"seat": string(seat), "reported": reported, "base": base},
			})
		}
	}
	return report
}

// phaseGraph is the only set of legal phase edges. Staying in the same phase
// is not a transition and is always allowed.
var phaseGraph = map[state.Phase][]state.Phase{
	state.PhaseWaiting:       {state.PhaseCardSelection, state.PhaseDealer},
	state.PhaseCardSelection: {state.PhaseDealer},
	state.PhaseDealer:        {state.PhaseDealing, state.PhaseRound1},
	state.PhaseDealing:       {state.PhaseRound1},
	state.PhaseRound1:        {state.PhaseRound2, state.PhaseFinished},
	state.PhaseRound2:        {state.PhaseFinished},
	state.PhaseFinished:      {state.PhaseWaiting},
}

// roundMutablePhases are the only phases during which the round number may
// change.
var roundMutablePhases = map[state.Phase]bool{
	state.PhaseRound1:   true,
	state.PhaseRound2:   true,
	state.PhaseFinished: true,
}

// ValidateStateTransition checks the phase edge and round-number change
// between two states. Any edge outside the fixed graph is critical.
func ValidateStateTransition(prev, next *state.GameState) Report {
	var report Report

	if prev.Phase != next.Phase {
		if !legalPhaseEdge(prev.Phase, next.Phase) {
			report.Add(Violation{
				Type:        ViolationPhaseTransition,
				Severity:    SeverityCritical,
				Description: fmt.Sprintf("illegal phase transition %s -> %s", prev.Phase, next.Phase),
				Details:     map[string]any{"from": string(prev.Phase), "to": string(next.Phase)},
			})
		}
	}

	if next.RoundNumber != prev.RoundNumber && !restartEdge(prev, next) {
		delta := next.RoundNumber - prev.RoundNumber
		switch {
		case delta < 0:
			report.Add(Violation{
				Type:        ViolationRoundNumber,
				Severity:    SeverityCritical,
				Description: fmt.Sprintf("round number decreased from %d to %d", prev.RoundNumber, next.RoundNumber),
				Details:     map[string]any{"from": prev.RoundNumber, "to": next.RoundNumber},
			})
		case delta > 1:
			report.Add(Violation{
				Type:        ViolationRoundNumber,
				Severity:    SeverityCritical,
				Description: fmt.Sprintf("round number jumped from %d to %d", prev.RoundNumber, next.RoundNumber),
				Details:     map[string]any{"from": prev.RoundNumber, "to": next.RoundNumber},
			})
		case !roundMutablePhases[next.Phase]:
			report.Add(Violation{
				Type:        ViolationRoundNumber,
				Severity:    SeverityCritical,
				Description: fmt.Sprintf("round number changed during phase %s", next.Phase),
				Details:     map[string]any{"phase": string(next.Phase)},
			})
		}
	}
	return report
}

// restartEdge reports whether the pair of states is the finished-to-waiting
// reset. The reset rewinds the round number to zero and clears the turn, so
// the monotonicity and turn-advance rules do not apply across it.
func restartEdge(prev, next *state.GameState) bool {
	return prev.Phase == state.PhaseFinished &&
		next.Phase == state.PhaseWaiting &&
		next.RoundNumber == 0
}

func legalPhaseEdge(from, to state.Phase) bool {
	for _, allowed := range phaseGraph[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTurnAdvance checks that only turn-ending action types moved the
// current turn. Lobby and dealing actions must leave it untouched, except for
// the initial assignment when no seat holds the turn yet.
func ValidateTurnAdvance(prev, next *state.GameState, actionType state.ActionType) Report {
	var report Report
	if prev.CurrentTurn == "" {
		return report
	}
	if restartEdge(prev, next) && next.CurrentTurn == "" {
		return report
	}
	if prev.CurrentTurn != next.CurrentTurn && !actionType.EndsTurn() {
		report.Add(Violation{
			Type:        ViolationTurnAdvance,
			Severity:    SeverityCritical,
			Description: fmt.Sprintf("action %s must not advance the turn", actionType),
			Details: map[string]any{
				"actionType": string(actionType),
				"from":       string(prev.CurrentTurn),
				"to":         string(next.CurrentTurn),
			},
		})
	}
	return report
}
