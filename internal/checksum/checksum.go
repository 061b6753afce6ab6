// Package checksum derives the drift-detection digest for room state. The
// digest covers a reduced projection (counts and flags, not card identities)
// so it stays cheap to compute on every committed version.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"cassino/server/internal/state"
)

// Compute hashes the canonical checksum projection of a state and returns a
// 64-character lowercase hex digest.
func Compute(s *state.GameState) (string, error) {
	if s == nil {
		return "", fmt.Errorf("checksum: nil state")
	}
	return ComputeProjection(s.ChecksumProjection())
}

// ComputeProjection hashes an already-reduced projection. A projection built
// by hand (for example one decoded from a stored snapshot) must produce a
// digest byte-identical to the one produced from the typed record.
func ComputeProjection(proj state.Projection) (string, error) {
	canonical, err := Canonicalize(proj)
	if err != nil {
		return "", fmt.Errorf("checksum: canonicalize projection: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Validate compares a digest against the state's current checksum. The
// comparison is case-insensitive so clients may submit uppercase hex.
func Validate(s *state.GameState, digest string) (bool, error) {
	expected, err := Compute(s)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(expected, digest), nil
}

// Canonicalize produces the sorted-key, whitespace-free JSON encoding used
// for every digest in the engine. Values are round-tripped through the
// generic JSON representation so that typed and dict-shaped inputs encode
// identically.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Sum hashes arbitrary payload data (for example event action data) with the
// same canonical encoding as state checksums.
func Sum(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", fmt.Errorf("checksum: canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
