// Package version classifies client state versions against the authoritative
// server version. All functions are pure; sync policy (incremental vs full)
// belongs to the caller.
package version

import "fmt"

// DefaultMaxGap is the staleness threshold used to pick snapshot-based
// recovery over incremental event replay.
const DefaultMaxGap = 10

// Result describes how a client version relates to the server version.
type Result struct {
	Valid        bool   `json:"valid"`
	HasGap       bool   `json:"hasGap"`
	GapSize      uint64 `json:"gapSize"`
	RequiresSync bool   `json:"requiresSync"`
	Anomaly      bool   `json:"anomaly"`
	Message      string `json:"message"`
}

// Validate compares a client version against the server version.
//
// A client ahead of the server should never happen in correct operation; the
// result is flagged as an anomaly so callers can force a full resync and emit
// a monitoring signal.
func Validate(clientVersion, serverVersion uint64) Result {
	switch {
	case clientVersion == serverVersion:
		return Result{
			Valid:   true,
			Message: "client is in sync",
		}
	case clientVersion < serverVersion:
		gap := serverVersion - clientVersion
		return Result{
			HasGap:       true,
			GapSize:      gap,
			RequiresSync: true,
			Message:      fmt.Sprintf("client is %d versions behind", gap),
		}
	default:
		return Result{
			RequiresSync: true,
			Anomaly:      true,
			GapSize:      clientVersion - serverVersion,
			Message:      fmt.Sprintf("client version %d is ahead of server version %d", clientVersion, serverVersion),
		}
	}
}

// MissingVersions returns the inclusive ascending range the client is
// missing: [client+1 .. server]. The result is empty when there is no gap.
func MissingVersions(clientVersion, serverVersion uint64) []uint64 {
	if clientVersion >= serverVersion {
		return nil
	}
	missing := make([]uint64, 0, serverVersion-clientVersion)
	for v := clientVersion + 1; v <= serverVersion; v++ {
		missing = append(missing, v)
	}
	return missing
}

// IsStale reports whether the client is behind by more than maxGap versions.
// A maxGap of 0 falls back to DefaultMaxGap.
func IsStale(clientVersion, serverVersion uint64, maxGap uint64) bool {
	if maxGap == 0 {
		maxGap = DefaultMaxGap
	}
	if clientVersion >= serverVersion {
		return false
	}
	return serverVersion-clientVersion > maxGap
}
