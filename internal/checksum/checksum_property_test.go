package checksum

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"cassino/server/internal/state"
)

// Validates that the canonical digest is a pure function of the projection
// contents, whatever order the entries were assembled in.
func TestProperty_ChecksumDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("recomputation yields an identical 64-hex digest", prop.ForAll(
		func(entries map[string]int) bool {
			proj := make(state.Projection, len(entries))
			for key, value := range entries {
				proj[key] = value
			}
			first, err := ComputeProjection(proj)
			if err != nil {
				return false
			}
			second, err := ComputeProjection(proj)
			if err != nil {
				return false
			}
			return first == second && len(first) == 64
		},
		gen.MapOf(gen.Identifier(), gen.Int()),
	))

	properties.Property("version changes always change the digest", prop.ForAll(
		func(v1, v2 uint64) bool {
			if v1 == v2 {
				v2++
			}
			s1 := state.NewGameState("room-1")
			s1.Version = v1
			s2 := state.NewGameState("room-1")
			s2.Version = v2

			d1, err := Compute(s1)
			if err != nil {
				return false
			}
			d2, err := Compute(s2)
			if err != nil {
				return false
			}
			return d1 != d2
		},
		gen.UInt64(),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
