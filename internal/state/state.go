package state

import (
	"time"
)

// Phase identifies the coarse room state machine position.
type Phase string

const (
	PhaseWaiting       Phase = "waiting"
	PhaseCardSelection Phase = "cardSelection"
	PhaseDealer        Phase = "dealer"
	PhaseDealing       Phase = "dealing"
	PhaseRound1        Phase = "round1"
	PhaseRound2        Phase = "round2"
	PhaseFinished      Phase = "finished"
)

// Valid reports whether the phase is one of the known machine states.
func (p Phase) Valid() bool {
	switch p {
	case PhaseWaiting, PhaseCardSelection, PhaseDealer, PhaseDealing, PhaseRound1, PhaseRound2, PhaseFinished:
		return true
	}
	return false
}

// Seat identifies one of the two player positions in a room.
type Seat string

const (
	SeatPlayer1 Seat = "player1"
	SeatPlayer2 Seat = "player2"
)

// Seats returns both seats in stable order.
func Seats() [2]Seat {
	return [2]Seat{SeatPlayer1, SeatPlayer2}
}

// Valid reports whether the seat is player1 or player2.
func (s Seat) Valid() bool {
	return s == SeatPlayer1 || s == SeatPlayer2
}

// Opponent returns the other seat.
func (s Seat) Opponent() Seat {
	if s == SeatPlayer1 {
		return SeatPlayer2
	}
	return SeatPlayer1
}

// Build is a stack of table cards combined toward a declared capture value.
// Component cards live inside the build until it is captured or trailed off.
type Build struct {
	ID    string `json:"id"`
	Owner Seat   `json:"owner"`
	Value int    `json:"value"`
	Cards []Card `json:"cards"`
}

// GameState is the authoritative, versioned record for one room. A copy of
// the previous state survives until the new one commits, so rejected actions
// never leak partial mutations.
type GameState struct {
	RoomID         string
	Version        uint64
	Phase          Phase
	CurrentTurn    Seat
	RoundNumber    int
	Deck           []Card
	Table          []Card
	Hands          map[Seat][]Card
	Captures       map[Seat][]Card
	Builds         []Build
	Scores         map[Seat]int
	DealerSelected bool
	RoundDealt     bool
	LastUpdated    time.Time
}

// NewGameState returns the initial waiting-room state with a full deck.
func NewGameState(roomID string) *GameState {
	return &GameState{
		RoomID:      roomID,
		Version:     0,
		Phase:       PhaseWaiting,
		RoundNumber: 0,
		Deck:        Deck(),
		Table:       make([]Card, 0),
		Hands: map[Seat][]Card{
			SeatPlayer1: {},
			SeatPlayer2: {},
		},
		Captures: map[Seat][]Card{
			SeatPlayer1: {},
			SeatPlayer2: {},
		},
		Builds: make([]Build, 0),
		Scores: map[Seat]int{
			SeatPlayer1: 0,
			SeatPlayer2: 0,
		},
	}
}

// Clone returns a deep copy so callers can mutate without aliasing the
// committed state.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Deck = append([]Card(nil), s.Deck...)
	clone.Table = append([]Card(nil), s.Table...)
	clone.Hands = cloneZoneMap(s.Hands)
	clone.Captures = cloneZoneMap(s.Captures)
	clone.Builds = make([]Build, len(s.Builds))
	for i, build := range s.Builds {
		copied := build
		copied.Cards = append([]Card(nil), build.Cards...)
		clone.Builds[i] = copied
	}
	clone.Scores = make(map[Seat]int, len(s.Scores))
	for seat, score := range s.Scores {
		clone.Scores[seat] = score
	}
	return &clone
}

func cloneZoneMap(src map[Seat][]Card) map[Seat][]Card {
	dst := make(map[Seat][]Card, len(src))
	for seat, cards := range src {
		dst[seat] = append([]Card(nil), cards...)
	}
	return dst
}

// AllCards returns every card identity across deck, hands, table, capture
// piles, and build components. The conservation invariant requires the result
// to contain exactly 52 distinct identifiers at every committed version.
func (s *GameState) AllCards() []Card {
	cards := make([]Card, 0, DeckSize)
	cards = append(cards, s.Deck...)
	cards = append(cards, s.Table...)
	for _, seat := range Seats() {
		cards = append(cards, s.Hands[seat]...)
		cards = append(cards, s.Captures[seat]...)
	}
	for _, build := range s.Builds {
		cards = append(cards, build.Cards...)
	}
	return cards
}

// CardCount returns the total number of card identities across all zones.
func (s *GameState) CardCount() int {
	return len(s.AllCards())
}

// BuildCardCount returns the number of cards locked inside builds.
func (s *GameState) BuildCardCount() int {
	total := 0
	for _, build := range s.Builds {
		total += len(build.Cards)
	}
	return total
}
