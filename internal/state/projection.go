package state

// Field names the entries of the wire projection. Broadcast deltas diff over
// exactly this set, so adding a field here is what makes it replicate.
type Field string

const (
	FieldVersion              Field = "version"
	FieldPhase                Field = "phase"
	FieldCurrentTurn          Field = "currentTurn"
	FieldRoundNumber          Field = "roundNumber"
	FieldDeckCount            Field = "deckCount"
	FieldTableCards           Field = "tableCards"
	FieldBuilds               Field = "builds"
	FieldPlayer1Hand          Field = "player1Hand"
	FieldPlayer2Hand          Field = "player2Hand"
	FieldPlayer1HandCount     Field = "player1HandCount"
	FieldPlayer2HandCount     Field = "player2HandCount"
	FieldPlayer1Captured      Field = "player1Captured"
	FieldPlayer2Captured      Field = "player2Captured"
	FieldPlayer1CaptureCount  Field = "player1CaptureCount"
	FieldPlayer2CaptureCount  Field = "player2CaptureCount"
	FieldPlayer1Score         Field = "player1Score"
	FieldPlayer2Score         Field = "player2Score"
	FieldDealerSelected       Field = "dealerSelected"
	FieldRoundDealt           Field = "roundDealt"
	FieldLastUpdated          Field = "lastUpdated"
)

// TrackedFields lists every replicated field in stable order.
func TrackedFields() []Field {
	return []Field{
		FieldVersion,
		FieldPhase,
		FieldCurrentTurn,
		FieldRoundNumber,
		FieldDeckCount,
		FieldTableCards,
		FieldBuilds,
		FieldPlayer1Hand,
		FieldPlayer2Hand,
		FieldPlayer1HandCount,
		FieldPlayer2HandCount,
		FieldPlayer1Captured,
		FieldPlayer2Captured,
		FieldPlayer1CaptureCount,
		FieldPlayer2CaptureCount,
		FieldPlayer1Score,
		FieldPlayer2Score,
		FieldDealerSelected,
		FieldRoundDealt,
		FieldLastUpdated,
	}
}

// Projection is the dict-shaped wire form of a state. Keys are Field names.
// It exists only at the serialization boundary; everything inside the engine
// works on the typed GameState record.
type Projection map[string]any

// Project flattens the state into its wire projection.
func (s *GameState) Project() Projection {
	proj := make(Projection, len(TrackedFields()))
	for _, field := range TrackedFields() {
		proj[string(field)] = s.FieldValue(field)
	}
	return proj
}

// FieldValue returns the wire value for a single tracked field.
func (s *GameState) FieldValue(field Field) any {
	switch field {
	case FieldVersion:
		return s.Version
	case FieldPhase:
		return string(s.Phase)
	case FieldCurrentTurn:
		return string(s.CurrentTurn)
	case FieldRoundNumber:
		return s.RoundNumber
	case FieldDeckCount:
		return len(s.Deck)
	case FieldTableCards:
		return cardStrings(s.Table)
	case FieldBuilds:
		return projectBuilds(s.Builds)
	case FieldPlayer1Hand:
		return cardStrings(s.Hands[SeatPlayer1])
	case FieldPlayer2Hand:
		return cardStrings(s.Hands[SeatPlayer2])
	case FieldPlayer1HandCount:
		return len(s.Hands[SeatPlayer1])
	case FieldPlayer2HandCount:
		return len(s.Hands[SeatPlayer2])
	case FieldPlayer1Captured:
		return cardStrings(s.Captures[SeatPlayer1])
	case FieldPlayer2Captured:
		return cardStrings(s.Captures[SeatPlayer2])
	case FieldPlayer1CaptureCount:
		return len(s.Captures[SeatPlayer1])
	case FieldPlayer2CaptureCount:
		return len(s.Captures[SeatPlayer2])
	case FieldPlayer1Score:
		return s.Scores[SeatPlayer1]
	case FieldPlayer2Score:
		return s.Scores[SeatPlayer2]
	case FieldDealerSelected:
		return s.DealerSelected
	case FieldRoundDealt:
		return s.RoundDealt
	case FieldLastUpdated:
		if s.LastUpdated.IsZero() {
			return int64(0)
		}
		return s.LastUpdated.UnixMilli()
	}
	return nil
}

// ChecksumProjection reduces the state to the fields covered by the integrity
// checksum: version, phase, turn, round, per-zone card counts, scores, and
// milestone flags. Card identities are deliberately excluded; identity-level
// integrity is enforced separately on every action.
func (s *GameState) ChecksumProjection() Projection {
	return Projection{
		"version":             s.Version,
		"phase":               string(s.Phase),
		"currentTurn":         string(s.CurrentTurn),
		"roundNumber":         s.RoundNumber,
		"deckCount":           len(s.Deck),
		"tableCount":          len(s.Table),
		"buildCardCount":      s.BuildCardCount(),
		"player1HandCount":    len(s.Hands[SeatPlayer1]),
		"player2HandCount":    len(s.Hands[SeatPlayer2]),
		"player1CaptureCount": len(s.Captures[SeatPlayer1]),
		"player2CaptureCount": len(s.Captures[SeatPlayer2]),
		"player1Score":        s.Scores[SeatPlayer1],
		"player2Score":        s.Scores[SeatPlayer2],
		"dealerSelected":      s.DealerSelected,
		"roundDealt":          s.RoundDealt,
	}
}

func cardStrings(cards []Card) []string {
	out := make([]string, len(cards))
	for i, card := range cards {
		out[i] = string(card)
	}
	return out
}

func projectBuilds(builds []Build) []map[string]any {
	out := make([]map[string]any, len(builds))
	for i, build := range builds {
		out[i] = map[string]any{
			"id":    build.ID,
			"owner": string(build.Owner),
			"value": build.Value,
			"cards": cardStrings(build.Cards),
		}
	}
	return out
}
