package rules

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"cassino/server/internal/state"
)

const (
	cardsPerHand   = 10
	tableCardCount = 4

	mostCardsBonus  = 3
	mostSpadesBonus = 1
)

// CassinoEngine is the built-in rules implementation for two-seat Cassino.
// It covers the zone mechanics and scoring; tournaments that need a richer
// variant plug their own Engine at construction time.
type CassinoEngine struct {
	shuffle func(deck []state.Card)
}

// NewCassinoEngine returns an engine with a time-seeded shuffle. Replay
// never re-runs the engine, so shuffle nondeterminism cannot desync rooms.
func NewCassinoEngine() *CassinoEngine {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &CassinoEngine{
		shuffle: func(deck []state.Card) {
			rng.Shuffle(len(deck), func(i, j int) {
				deck[i], deck[j] = deck[j], deck[i]
			})
		},
	}
}

// NewCassinoEngineWithShuffle injects a shuffle, for deterministic tests.
func NewCassinoEngineWithShuffle(shuffle func([]state.Card)) *CassinoEngine {
	return &CassinoEngine{shuffle: shuffle}
}

// Apply computes the next state for one action against a copy of s.
func (e *CassinoEngine) Apply(s *state.GameState, action state.GameAction) (*state.GameState, error) {
	next := s.Clone()
	next.LastUpdated = time.Now()

	var err error
	switch action.Type {
	case state.ActionReady:
		err = e.ready(next)
	case state.ActionSelectCard:
		err = e.selectCard(next, action)
	case state.ActionShuffle:
		err = e.shuffleDeck(next)
	case state.ActionDealCards:
		err = e.dealCards(next)
	case state.ActionTrail:
		err = e.trail(next, action)
	case state.ActionCapture:
		err = e.capture(next, action)
	case state.ActionBuild:
		err = e.build(next, action)
	case state.ActionResetRound:
		err = e.resetRound(next)
	default:
		err = Reject("unsupported action type %q", action.Type)
	}
	if err != nil {
		return nil, err
	}

	if action.Type.EndsTurn() {
		next.CurrentTurn = next.CurrentTurn.Opponent()
		e.maybeAdvanceRound(next)
	}
	return next, nil
}

func (e *CassinoEngine) ready(next *state.GameState) error {
	if next.Phase != state.PhaseWaiting {
		return Reject("ready is only valid while waiting")
	}
	next.Phase = state.PhaseCardSelection
	return nil
}

// selectCard resolves the dealer cut: the selecting seat becomes dealer and
// the opponent leads the first round.
func (e *CassinoEngine) selectCard(next *state.GameState, action state.GameAction) error {
	if next.Phase != state.PhaseCardSelection {
		return Reject("dealer selection is not in progress")
	}
	next.Phase = state.PhaseDealer
	next.DealerSelected = true
	next.CurrentTurn = action.Seat.Opponent()
	return nil
}

func (e *CassinoEngine) shuffleDeck(next *state.GameState) error {
	if next.Phase != state.PhaseDealer {
		return Reject("shuffle is only valid during the dealer phase")
	}
	e.shuffle(next.Deck)
	return nil
}

func (e *CassinoEngine) dealCards(next *state.GameState) error {
	switch next.Phase {
	case state.PhaseDealer, state.PhaseDealing:
	default:
		return Reject("dealing is not in progress")
	}
	if len(next.Deck) < 2*cardsPerHand+tableCardCount {
		return Reject("not enough cards left to deal")
	}
	for _, seat := range state.Seats() {
		next.Hands[seat] = append(next.Hands[seat], next.Deck[:cardsPerHand]...)
		next.Deck = next.Deck[cardsPerHand:]
	}
	next.Table = append(next.Table, next.Deck[:tableCardCount]...)
	next.Deck = next.Deck[tableCardCount:]
	next.Phase = state.PhaseRound1
	next.RoundNumber++
	next.RoundDealt = true
	return nil
}

func (e *CassinoEngine) trail(next *state.GameState, action state.GameAction) error {
	if err := requirePlayPhase(next); err != nil {
		return err
	}
	card, err := takeFromHand(next, action.Seat, action.CardID)
	if err != nil {
		return err
	}
	next.Table = append(next.Table, card)
	return nil
}

func (e *CassinoEngine) capture(next *state.GameState, action state.GameAction) error {
	if err := requirePlayPhase(next); err != nil {
		return err
	}
	if len(action.TargetIDs) == 0 {
		return Reject("capture requires at least one target")
	}
	card, err := takeFromHand(next, action.Seat, action.CardID)
	if err != nil {
		return err
	}

	captured := []state.Card{card}
	value := card.CaptureValue()
	for _, target := range action.TargetIDs {
		if taken, ok := takeFromTable(next, target); ok {
			if taken.CaptureValue() != value {
				return Reject("table card %s does not match capture value %d", target, value)
			}
			captured = append(captured, taken)
			continue
		}
		build, ok := takeBuild(next, target)
		if !ok {
			return Reject("capture target %s is not on the table", target)
		}
		if build.Value != value {
			return Reject("build %s does not match capture value %d", target, value)
		}
		captured = append(captured, build.Cards...)
	}
	next.Captures[action.Seat] = append(next.Captures[action.Seat], captured...)
	return nil
}

func (e *CassinoEngine) build(next *state.GameState, action state.GameAction) error {
	if err := requirePlayPhase(next); err != nil {
		return err
	}
	if action.BuildValue <= 0 {
		return Reject("build requires a declared value")
	}
	if len(action.TargetIDs) == 0 {
		return Reject("build requires at least one table card")
	}
	card, err := takeFromHand(next, action.Seat, action.CardID)
	if err != nil {
		return err
	}

	components := []state.Card{card}
	total := card.CaptureValue()
	for _, target := range action.TargetIDs {
		taken, ok := takeFromTable(next, target)
		if !ok {
			return Reject("build target %s is not on the table", target)
		}
		components = append(components, taken)
		total += taken.CaptureValue()
	}
	if total != action.BuildValue {
		return Reject("build components sum to %d, not the declared %d", total, action.BuildValue)
	}
	if !holdsValue(next.Hands[action.Seat], action.BuildValue) {
		return Reject("cannot build %d without holding a matching card", action.BuildValue)
	}
	next.Builds = append(next.Builds, state.Build{
		ID:    uuid.NewString(),
		Owner: action.Seat,
		Value: action.BuildValue,
		Cards: components,
	})
	return nil
}

func (e *CassinoEngine) resetRound(next *state.GameState) error {
	if next.Phase != state.PhaseFinished {
		return Reject("reset is only valid once the game is finished")
	}
	fresh := state.NewGameState(next.RoomID)
	fresh.Version = next.Version
	fresh.LastUpdated = next.LastUpdated
	*next = *fresh
	return nil
}

// maybeAdvanceRound moves round1 to round2 (dealing the rest of the deck) or
// finishes the game once both hands are empty.
func (e *CassinoEngine) maybeAdvanceRound(next *state.GameState) {
	if next.Phase != state.PhaseRound1 && next.Phase != state.PhaseRound2 {
		return
	}
	if len(next.Hands[state.SeatPlayer1]) > 0 || len(next.Hands[state.SeatPlayer2]) > 0 {
		return
	}
	if next.Phase == state.PhaseRound1 && len(next.Deck) >= 2*cardsPerHand {
		for _, seat := range state.Seats() {
			next.Hands[seat] = append(next.Hands[seat], next.Deck[:cardsPerHand]...)
			next.Deck = next.Deck[cardsPerHand:]
		}
		next.Phase = state.PhaseRound2
		next.RoundNumber++
		return
	}
	e.finish(next)
}

// finish sweeps the table to the last capturer's pile and scores both seats.
func (e *CassinoEngine) finish(next *state.GameState) {
	sweeper := next.CurrentTurn.Opponent()
	next.Captures[sweeper] = append(next.Captures[sweeper], next.Table...)
	next.Table = next.Table[:0]
	for _, build := range next.Builds {
		next.Captures[sweeper] = append(next.Captures[sweeper], build.Cards...)
	}
	next.Builds = next.Builds[:0]

	next.Phase = state.PhaseFinished
	for _, seat := range state.Seats() {
		next.Scores[seat] = baseScore(next.Captures[seat])
	}
	p1, p2 := next.Captures[state.SeatPlayer1], next.Captures[state.SeatPlayer2]
	if len(p1) != len(p2) {
		if len(p1) > len(p2) {
			next.Scores[state.SeatPlayer1] += mostCardsBonus
		} else {
			next.Scores[state.SeatPlayer2] += mostCardsBonus
		}
	}
	s1, s2 := countSpades(p1), countSpades(p2)
	if s1 != s2 {
		if s1 > s2 {
			next.Scores[state.SeatPlayer1] += mostSpadesBonus
		} else {
			next.Scores[state.SeatPlayer2] += mostSpadesBonus
		}
	}
}

func baseScore(captured []state.Card) int {
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

func countSpades(cards []state.Card) int {
	count := 0
	for _, card := range cards {
		if card.Suit() == "spades" {
			count++
		}
	}
	return count
}

func requirePlayPhase(next *state.GameState) error {
	if next.Phase != state.PhaseRound1 && next.Phase != state.PhaseRound2 {
		return Reject("no round in progress")
	}
	return nil
}

func takeFromHand(next *state.GameState, seat state.Seat, card state.Card) (state.Card, error) {
	hand := next.Hands[seat]
	for i, held := range hand {
		if held == card {
			next.Hands[seat] = append(hand[:i:i], hand[i+1:]...)
			return held, nil
		}
	}
	return "", Reject("card %s is not in hand", card)
}

func takeFromTable(next *state.GameState, card state.Card) (state.Card, bool) {
	for i, onTable := range next.Table {
		if onTable == card {
			next.Table = append(next.Table[:i:i], next.Table[i+1:]...)
			return onTable, true
		}
	}
	return "", false
}

// takeBuild removes a build addressed either by its id or by any of its
// component cards.
func takeBuild(next *state.GameState, target state.Card) (state.Build, bool) {
	for i, build := range next.Builds {
		match := build.ID == string(target)
		for _, component := range build.Cards {
			if component == target {
				match = true
				break
			}
		}
		if match {
			next.Builds = append(next.Builds[:i:i], next.Builds[i+1:]...)
			return build, true
		}
	}
	return state.Build{}, false
}

func holdsValue(hand []state.Card, value int) bool {
	for _, card := range hand {
		if card.CaptureValue() == value {
			return true
		}
	}
	return false
}
