package state

import (
	"fmt"
	"strings"
)

// Card identifies a single playing card as "<RANK>_<suit>", e.g. "A_hearts"
// or "10_diamonds". The grammar admits exactly 52 distinct identifiers.
type Card string

var ranks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

var suits = []string{"hearts", "diamonds", "clubs", "spades"}

// DeckSize is the number of cards in a full deck.
const DeckSize = 52

// NewCard builds a card identifier from a rank and suit without validation.
func NewCard(rank, suit string) Card {
	return Card(rank + "_" + suit)
}

// Rank returns the rank component of the identifier, or "" if malformed.
func (c Card) Rank() string {
	rank, _, ok := strings.Cut(string(c), "_")
	if !ok {
		return ""
	}
	return rank
}

// Suit returns the suit component of the identifier, or "" if malformed.
func (c Card) Suit() string {
	_, suit, ok := strings.Cut(string(c), "_")
	if !ok {
		return ""
	}
	return suit
}

// Valid reports whether the identifier matches the card grammar.
func (c Card) Valid() bool {
	rank, suit, ok := strings.Cut(string(c), "_")
	if !ok {
		return false
	}
	if !validRank(rank) {
		return false
	}
	return validSuit(suit)
}

// CaptureValue returns the numeric value used when matching captures and
// builds. Aces count as 1, face cards as 11-13.
func (c Card) CaptureValue() int {
	switch rank := c.Rank(); rank {
	case "A":
		return 1
	case "J":
		return 11
	case "Q":
		return 12
	case "K":
		return 13
	default:
		for i, r := range ranks {
			if r == rank {
				return i + 1
			}
		}
	}
	return 0
}

// Deck returns the canonical 52-card deck in rank-major order.
func Deck() []Card {
	deck := make([]Card, 0, DeckSize)
	for _, suit := range suits {
		for _, rank := range ranks {
			deck = append(deck, NewCard(rank, suit))
		}
	}
	return deck
}

func validRank(rank string) bool {
	for _, r := range ranks {
		if r == rank {
			return true
		}
	}
	return false
}

func validSuit(suit string) bool {
	for _, s := range suits {
		if s == suit {
			return true
		}
	}
	return false
}

// ParseCard validates and converts a raw identifier.
func ParseCard(raw string) (Card, error) {
	card := Card(raw)
	if !card.Valid() {
		return "", fmt.Errorf("invalid card id %q", raw)
	}
	return card, nil
}
