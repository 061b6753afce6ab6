package security

import (
	"testing"

	"cassino/server/internal/state"
)

func findViolation(report Report, typ ViolationType) *Violation {
	for i := range report.Violations {
		if report.Violations[i].Type == typ {
			return &report.Violations[i]
		}
	}
	return nil
}

func TestValidateCardIntegrityFullDeck(t *testing.T) {
	s := state.NewGameState("room-1")
	report := ValidateCardIntegrity(s)
	if !report.Empty() {
		t.Fatalf("fresh state should pass, got %+v", report.Violations)
	}
}

func TestValidateCardIntegrityMissingCard(t *testing.T) {
	s := state.NewGameState("room-1")
	s.Deck = s.Deck[:len(s.Deck)-1]
	report := ValidateCardIntegrity(s)
	v := findViolation(report, ViolationCardCount)
	if v == nil {
		t.Fatal("51 cards should trigger a count violation")
	}
	if v.Severity != SeverityCritical {
		t.Fatalf("count violation severity = %s, want critical", v.Severity)
	}
	if !report.Blocked() {
		t.Fatal("count violation should block")
	}
}

func TestValidateCardIntegrityDuplicate(t *testing.T) {
	s := state.NewGameState("room-1")
	// Move one card to a hand but leave it in the deck too.
	s.Hands[state.SeatPlayer1] = []state.Card{s.Deck[0]}
	s.Deck = s.Deck[:len(s.Deck)-1]
	report := ValidateCardIntegrity(s)
	if findViolation(report, ViolationCardDuplicate) == nil {
		t.Fatal("duplicated card should trigger a violation")
	}
	if !report.Blocked() {
		t.Fatal("duplicate should block")
	}
}

func TestValidateCardIntegrityBadIdentifier(t *testing.T) {
	s := state.NewGameState("room-1")
	s.Deck[0] = "joker_red"
	report := ValidateCardIntegrity(s)
	v := findViolation(report, ViolationCardIdentity)
	if v == nil {
		t.Fatal("malformed identifier should trigger a violation")
	}
	if v.Severity != SeverityHigh {
		t.Fatalf("identity violation severity = %s, want high", v.Severity)
	}
}

func TestBaseScore(t *testing.T) {
	captured := []state.Card{
		"A_hearts",
		"A_spades",
		"2_spades",
		"10_diamonds",
		"K_clubs",
	}
	if got := BaseScore(captured); got != 5 {
		t.Fatalf("base score = %d, want 5", got)
	}
}

func TestValidateScoreIntegrity(t *testing.T) {
	cases := []struct {
		name     string
		score    int
		captured []state.Card
		wantType ViolationType
		blocked  bool
	}{
		{"valid zero", 0, nil, "", false},
		{"over maximum", 22, nil, ViolationScoreRange, true},
		{"negative", -1, nil, ViolationScoreRange, true},
		{"below base", 0, []state.Card{"A_hearts", "A_clubs"}, ViolationScoreTooLow, false},
		{"above base plus bonus", 7, []state.Card{"A_hearts"}, ViolationScoreTooHigh, false},
		{"base plus full bonus", 5, []state.Card{"A_hearts"}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := state.NewGameState("room-1")
			s.Captures[state.SeatPlayer1] = tc.captured
			s.Deck = s.Deck[:len(s.Deck)-len(tc.captured)]
			s.Scores[state.SeatPlayer1] = tc.score
			report := ValidateScoreIntegrity(s)
			if tc.wantType == "" {
				if !report.Empty() {
					t.Fatalf("expected clean report, got %+v", report.Violations)
				}
				return
			}
			if findViolation(report, tc.wantType) == nil {
				t.Fatalf("expected %s violation, got %+v", tc.wantType, report.Violations)
			}
			if report.Blocked() != tc.blocked {
				t.Fatalf("blocked = %v, want %v", report.Blocked(), tc.blocked)
			}
		})
	}
}

func TestValidateStateTransitionPhases(t *testing.T) {
	cases := []struct {
		from  state.Phase
		to    state.Phase
		legal bool
	}{
		{state.PhaseWaiting, state.PhaseCardSelection, true},
		{state.PhaseWaiting, state.PhaseDealer, true},
		{state.PhaseCardSelection, state.PhaseDealer, true},
		{state.PhaseDealer, state.PhaseDealing, true},
		{state.PhaseDealer, state.PhaseRound1, true},
		{state.PhaseDealing, state.PhaseRound1, true},
		{state.PhaseRound1, state.PhaseRound2, true},
		{state.PhaseRound1, state.PhaseFinished, true},
		{state.PhaseRound2, state.PhaseFinished, true},
		{state.PhaseFinished, state.PhaseWaiting, true},
		{state.PhaseRound1, state.PhaseRound1, true},
		{state.PhaseWaiting, state.PhaseRound2, false},
		{state.PhaseRound2, state.PhaseRound1, false},
		{state.PhaseFinished, state.PhaseRound1, false},
		{state.PhaseDealing, state.PhaseWaiting, false},
	}
	for _, tc := range cases {
		prev := state.NewGameState("room-1")
		prev.Phase = tc.from
		next := prev.Clone()
		next.Phase = tc.to
		report := ValidateStateTransition(prev, next)
		if got := report.Empty(); got != tc.legal {
			t.Fatalf("transition %s -> %s legal = %v, want %v", tc.from, tc.to, got, tc.legal)
		}
	}
}

func TestValidateStateTransitionRounds(t *testing.T) {
	cases := []struct {
		name  string
		phase state.Phase
		from  int
		to    int
		legal bool
	}{
		{"increment during round1", state.PhaseRound1, 0, 1, true},
		{"unchanged", state.PhaseWaiting, 1, 1, true},
		{"decrement", state.PhaseRound1, 2, 1, false},
		{"jump by two", state.PhaseRound1, 1, 3, false},
		{"increment during waiting", state.PhaseWaiting, 0, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prev := state.NewGameState("room-1")
			prev.Phase = tc.phase
			prev.RoundNumber = tc.from
			next := prev.Clone()
			next.RoundNumber = tc.to
			report := ValidateStateTransition(prev, next)
			if got := report.Empty(); got != tc.legal {
				t.Fatalf("round %d -> %d in %s legal = %v, want %v", tc.from, tc.to, tc.phase, got, tc.legal)
			}
		})
	}
}

func TestValidateStateTransitionRestart(t *testing.T) {
	prev := state.NewGameState("room-1")
	prev.Phase = state.PhaseFinished
	prev.RoundNumber = 2
	prev.CurrentTurn = state.SeatPlayer1

	next := state.NewGameState("room-1")

	if report := ValidateStateTransition(prev, next); !report.Empty() {
		t.Fatalf("finished -> waiting reset should pass, got %+v", report.Violations)
	}
	if report := ValidateTurnAdvance(prev, next, state.ActionResetRound); !report.Empty() {
		t.Fatalf("reset may clear the turn, got %+v", report.Violations)
	}

	// The exemption covers only the real reset shape; a rewind that keeps a
	// nonzero round number is still a monotonicity violation.
	partial := prev.Clone()
	partial.Phase = state.PhaseWaiting
	partial.RoundNumber = 1
	if report := ValidateStateTransition(prev, partial); report.Empty() {
		t.Fatal("round rewind outside the reset should be flagged")
	}
}

func TestValidateTurnAdvance(t *testing.T) {
	prev := state.NewGameState("room-1")
	prev.CurrentTurn = state.SeatPlayer1
	next := prev.Clone()
	next.CurrentTurn = state.SeatPlayer2

	if report := ValidateTurnAdvance(prev, next, state.ActionCapture); !report.Empty() {
		t.Fatalf("capture may advance the turn, got %+v", report.Violations)
	}
	report := ValidateTurnAdvance(prev, next, state.ActionShuffle)
	if report.Empty() || !report.Blocked() {
		t.Fatal("shuffle advancing the turn should be a critical violation")
	}

	unset := state.NewGameState("room-1")
	first := unset.Clone()
	first.CurrentTurn = state.SeatPlayer1
	if report := ValidateTurnAdvance(unset, first, state.ActionDealCards); !report.Empty() {
		t.Fatalf("initial turn assignment should be allowed, got %+v", report.Violations)
	}
}

func TestValidateAction(t *testing.T) {
	prev := state.NewGameState("room-1")
	prev.CurrentTurn = state.SeatPlayer1

	report := ValidateAction(prev, state.GameAction{Type: "teleport"})
	if !report.Blocked() {
		t.Fatal("unknown action type should block")
	}

	outOfTurn := state.GameAction{PlayerID: "p2", Seat: state.SeatPlayer2, Type: state.ActionCapture}
	report = ValidateAction(prev, outOfTurn)
	v := findViolation(report, ViolationTurnOrder)
	if v == nil {
		t.Fatal("out-of-turn capture should be flagged")
	}
	if v.Severity != SeverityMedium {
		t.Fatalf("turn order severity = %s, want medium", v.Severity)
	}
	if v.Description != "Not your turn" {
		t.Fatalf("description = %q, want %q", v.Description, "Not your turn")
	}
	if report.Blocked() {
		t.Fatal("turn order violation alone should not block in the validator")
	}

	inTurn := state.GameAction{PlayerID: "p1", Seat: state.SeatPlayer1, Type: state.ActionCapture}
	if report := ValidateAction(prev, inTurn); !report.Empty() {
		t.Fatalf("in-turn capture should pass, got %+v", report.Violations)
	}

	lobby := state.GameAction{PlayerID: "p2", Seat: state.SeatPlayer2, Type: state.ActionReady}
	if report := ValidateAction(prev, lobby); !report.Empty() {
		t.Fatalf("lobby actions are exempt from turn order, got %+v", report.Violations)
	}
}
