package state

import "testing"

func TestTrackedFieldCount(t *testing.T) {
	fields := TrackedFields()
	if len(fields) != 20 {
		t.Fatalf("tracked fields = %d, want 20", len(fields))
	}
	seen := make(map[Field]struct{}, len(fields))
	for _, field := range fields {
		if _, dup := seen[field]; dup {
			t.Fatalf("duplicate tracked field %q", field)
		}
		seen[field] = struct{}{}
	}
}

func TestProjectCoversTrackedFields(t *testing.T) {
	s := NewGameState("room-1")
	s.Phase = PhaseRound1
	s.CurrentTurn = SeatPlayer1
	s.Hands[SeatPlayer1] = []Card{"A_hearts", "4_clubs"}
	s.Table = []Card{"9_spades"}
	s.Scores[SeatPlayer2] = 5

	proj := s.Project()
	if len(proj) != len(TrackedFields()) {
		t.Fatalf("projection has %d entries, want %d", len(proj), len(TrackedFields()))
	}
	for _, field := range TrackedFields() {
		if _, ok := proj[string(field)]; !ok {
			t.Fatalf("projection missing field %q", field)
		}
	}
	if proj["phase"] != "round1" {
		t.Fatalf("phase = %v, want round1", proj["phase"])
	}
	if proj["currentTurn"] != "player1" {
		t.Fatalf("currentTurn = %v, want player1", proj["currentTurn"])
	}
	if proj["player1HandCount"] != 2 {
		t.Fatalf("player1HandCount = %v, want 2", proj["player1HandCount"])
	}
	if proj["player2Score"] != 5 {
		t.Fatalf("player2Score = %v, want 5", proj["player2Score"])
	}
	hand, ok := proj["player1Hand"].([]string)
	if !ok || len(hand) != 2 || hand[0] != "A_hearts" {
		t.Fatalf("player1Hand = %v", proj["player1Hand"])
	}
}

func TestChecksumProjectionExcludesIdentities(t *testing.T) {
	s := NewGameState("room-1")
	s.Hands[SeatPlayer1] = []Card{"A_hearts", "2_clubs", "3_diamonds"}
	s.Builds = []Build{{ID: "b1", Owner: SeatPlayer2, Value: 9, Cards: []Card{"4_hearts", "5_spades"}}}

	proj := s.ChecksumProjection()
	if proj["player1HandCount"] != 3 {
		t.Fatalf("player1HandCount = %v, want 3", proj["player1HandCount"])
	}
	if proj["buildCardCount"] != 2 {
		t.Fatalf("buildCardCount = %v, want 2", proj["buildCardCount"])
	}
	for _, key := range []string{"player1Hand", "tableCards", "builds"} {
		if _, ok := proj[key]; ok {
			t.Fatalf("checksum projection should not carry %q", key)
		}
	}
}

func TestLastUpdatedField(t *testing.T) {
	s := NewGameState("room-1")
	if got := s.FieldValue(FieldLastUpdated); got != int64(0) {
		t.Fatalf("zero LastUpdated projected as %v, want 0", got)
	}
}
