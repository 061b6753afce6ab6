package server

import "time"

// Tunables shared by the hub, broadcaster, and synchronizer. Zero values are
// replaced with the defaults below via normalized.
type Config struct {
	// SnapshotInterval is the version modulus that triggers a snapshot.
	SnapshotInterval uint64
	// SnapshotRetention caps how many snapshots each room keeps.
	SnapshotRetention int
	// MaxVersionGap is the staleness threshold beyond which a client gets a
	// full resync instead of missed events.
	MaxVersionGap uint64
	// ConflictWindowMillis bounds how far apart two server timestamps may be
	// and still count as concurrent.
	ConflictWindowMillis int64
	// CompressionThreshold is the payload size in bytes above which state
	// broadcasts are compressed.
	CompressionThreshold int
	// RetryBaseDelay seeds the exponential backoff for failed deliveries.
	RetryBaseDelay time.Duration
	// MaxBroadcastRetries bounds redelivery attempts before a client is
	// flagged as desynced.
	MaxBroadcastRetries int
	// WriteWait is the per-message websocket write deadline.
	WriteWait time.Duration
	// HeartbeatTimeout evicts sessions that stop sending heartbeats.
	HeartbeatTimeout time.Duration
}

const (
	defaultSnapshotInterval     = 10
	defaultSnapshotRetention    = 5
	defaultMaxVersionGap        = 10
	defaultConflictWindowMillis = 100
	defaultCompressionThreshold = 1024
	defaultRetryBaseDelay       = 100 * time.Millisecond
	defaultMaxBroadcastRetries  = 3
	defaultWriteWait            = 5 * time.Second
	defaultHeartbeatTimeout     = 45 * time.Second
)

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SnapshotInterval:     defaultSnapshotInterval,
		SnapshotRetention:    defaultSnapshotRetention,
		MaxVersionGap:        defaultMaxVersionGap,
		ConflictWindowMillis: defaultConflictWindowMillis,
		CompressionThreshold: defaultCompressionThreshold,
		RetryBaseDelay:       defaultRetryBaseDelay,
		MaxBroadcastRetries:  defaultMaxBroadcastRetries,
		WriteWait:            defaultWriteWait,
		HeartbeatTimeout:     defaultHeartbeatTimeout,
	}
}

func (c Config) normalized() Config {
	if c.SnapshotInterval == 0 {
		c.SnapshotInterval = defaultSnapshotInterval
	}
	if c.SnapshotRetention <= 0 {
		c.SnapshotRetention = defaultSnapshotRetention
	}
	if c.MaxVersionGap == 0 {
		c.MaxVersionGap = defaultMaxVersionGap
	}
	if c.ConflictWindowMillis <= 0 {
		c.ConflictWindowMillis = defaultConflictWindowMillis
	}
	if c.CompressionThreshold <= 0 {
		c.CompressionThreshold = defaultCompressionThreshold
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.MaxBroadcastRetries <= 0 {
		c.MaxBroadcastRetries = defaultMaxBroadcastRetries
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	return c
}
