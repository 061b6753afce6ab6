// Package security implements the anti-cheat validators that gate every
// client action before the rules engine runs. The checks are independent of
// game-rule legality: they reject transitions that are impossible for any
// honest client, whatever the rules engine would say.
package security

import "time"

// Severity ranks how serious a violation is. Only critical violations block
// the action; everything else is logged and the action proceeds.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ViolationType names the check that fired.
type ViolationType string

const (
	ViolationCardCount       ViolationType = "card_count_mismatch"
	ViolationCardDuplicate   ViolationType = "card_duplicated"
	ViolationCardIdentity    ViolationType = "card_id_invalid"
	ViolationScoreRange      ViolationType = "score_out_of_range"
	ViolationScoreTooLow     ViolationType = "score_too_low"
	ViolationScoreTooHigh    ViolationType = "score_too_high"
	ViolationPhaseTransition ViolationType = "illegal_phase_transition"
	ViolationRoundNumber     ViolationType = "illegal_round_change"
	ViolationTurnOrder       ViolationType = "turn_order"
	ViolationTurnAdvance     ViolationType = "illegal_turn_advance"
	ViolationActionType      ViolationType = "unknown_action_type"
)

// Violation is an ephemeral diagnostic record. Violations are logged, never
// persisted as game state.
type Violation struct {
	Type        ViolationType  `json:"violationType"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Report collects the violations found by one validation pass.
type Report struct {
	Violations []Violation
}

// Add appends a violation stamped with the current time.
func (r *Report) Add(v Violation) {
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now()
	}
	r.Violations = append(r.Violations, v)
}

// Merge folds another report's violations into this one.
func (r *Report) Merge(other Report) {
	r.Violations = append(r.Violations, other.Violations...)
}

// Blocked reports whether any violation is critical. Critical violations must
// abort the action with no state mutation.
func (r Report) Blocked() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// Critical returns only the critical violations.
func (r Report) Critical() []Violation {
	var critical []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityCritical {
			critical = append(critical, v)
		}
	}
	return critical
}

// Empty reports whether the pass found nothing at all.
func (r Report) Empty() bool {
	return len(r.Violations) == 0
}
