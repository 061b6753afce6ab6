package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cassino/server/internal/state"
	"cassino/server/logging"
	"cassino/server/logging/network"
)

// ClientSender is the delivery surface the broadcaster needs from the hub.
type ClientSender interface {
	Clients(roomID string) []string
	Send(roomID, clientID string, data []byte) error
	MarkDesynced(roomID, clientID string, desynced bool)
}

// BroadcastController fans state updates out to every subscriber of a room.
// Deliveries are fire-and-forget with respect to committed state: a failed
// send never unwinds the version that produced it.
type BroadcastController struct {
	sender    ClientSender
	cfg       Config
	publisher logging.Publisher
	counters  *Telemetry

	mu       sync.Mutex
	lastSent map[string]lastBroadcast
}

type lastBroadcast struct {
	projection state.Projection
	version    uint64
}

// NewBroadcastController wires a controller to its delivery surface.
func NewBroadcastController(sender ClientSender, cfg Config, publisher logging.Publisher, counters *Telemetry) *BroadcastController {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	if counters == nil {
		counters = NewTelemetry()
	}
	return &BroadcastController{
		sender:    sender,
		cfg:       cfg.normalized(),
		publisher: publisher,
		counters:  counters,
		lastSent:  make(map[string]lastBroadcast),
	}
}

// BroadcastState sends the full projection to every subscriber. Payloads
// above the compression threshold are gzipped when that actually shrinks
// them.
func (b *BroadcastController) BroadcastState(ctx context.Context, roomID string, projection state.Projection, version uint64, checksum string) error {
	stateField, compressed, err := b.encodeState(projection)
	if err != nil {
		return err
	}
	msg := StateUpdate{
		Type:       "state_update",
		RoomID:     roomID,
		State:      stateField,
		Version:    version,
		Checksum:   checksum,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Compressed: compressed,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	b.rememberBroadcast(roomID, projection, version)
	b.counters.RecordBroadcast(len(data), false)
	return b.deliver(ctx, roomID, version, data)
}

// BroadcastDelta sends only the tracked fields that changed since the last
// broadcast. Rooms with no recorded base fall back to a full update.
func (b *BroadcastController) BroadcastDelta(ctx context.Context, roomID string, projection state.Projection, version uint64, checksum string) error {
	b.mu.Lock()
	last, ok := b.lastSent[roomID]
	b.mu.Unlock()
	if !ok {
		return b.BroadcastState(ctx, roomID, projection, version, checksum)
	}

	changes := computeDelta(last.projection, projection)
	if len(changes) == 0 {
		return nil
	}
	msg := StateDelta{
		Type:        "state_delta",
		RoomID:      roomID,
		Version:     version,
		BaseVersion: last.version,
		Changes:     changes,
		Checksum:    checksum,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	b.rememberBroadcast(roomID, projection, version)
	b.counters.RecordBroadcast(len(data), true)
	return b.deliver(ctx, roomID, version, data)
}

// SendToClient delivers a payload to a single subscriber without retries.
func (b *BroadcastController) SendToClient(roomID, clientID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.sender.Send(roomID, clientID, data)
}

// Forget drops the delta base for a room, forcing the next broadcast to be
// a full update.
func (b *BroadcastController) Forget(roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.lastSent, roomID)
}

func (b *BroadcastController) rememberBroadcast(roomID string, projection state.Projection, version uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSent[roomID] = lastBroadcast{projection: projection, version: version}
}

// deliver fans one payload out to every subscriber, retrying each failed
// client with exponential backoff before flagging it desynced.
func (b *BroadcastController) deliver(ctx context.Context, roomID string, version uint64, data []byte) error {
	clients := b.sender.Clients(roomID)
	if len(clients) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, clientID := range clients {
		clientID := clientID
		g.Go(func() error {
			b.deliverToClient(ctx, roomID, clientID, version, data)
			return nil
		})
	}
	return g.Wait()
}

func (b *BroadcastController) deliverToClient(ctx context.Context, roomID, clientID string, version uint64, data []byte) {
	err := b.sender.Send(roomID, clientID, data)
	if err == nil {
		return
	}

	b.counters.RecordBroadcastFailure()
	network.BroadcastFailed(ctx, b.publisher, version, network.DeliveryPayload{
		RoomID:   roomID,
		ClientID: clientID,
		Error:    err.Error(),
	})

	for attempt := 1; attempt <= b.cfg.MaxBroadcastRetries; attempt++ {
		delay := b.cfg.RetryBaseDelay * (1 << (attempt - 1))
		network.RetryScheduled(ctx, b.publisher, version, network.DeliveryPayload{
			RoomID:   roomID,
			ClientID: clientID,
			Attempt:  attempt,
		})
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err = b.sender.Send(roomID, clientID, data); err == nil {
			return
		}
		b.counters.RecordBroadcastFailure()
	}

	b.sender.MarkDesynced(roomID, clientID, true)
	b.counters.RecordDesync()
	network.ClientDesynced(ctx, b.publisher, version, network.DeliveryPayload{
		RoomID:   roomID,
		ClientID: clientID,
		Attempt:  b.cfg.MaxBroadcastRetries,
		Error:    err.Error(),
	})

	// Best effort: the socket may have recovered since the last retry, and
	// the prompt tells the client to request a full sync instead of waiting
	// for deltas it will never reconcile.
	if prompt, merr := json.Marshal(Desync{
		Type:          "desync",
		RoomID:        roomID,
		ServerVersion: version,
		Message:       "state updates were dropped, request a full sync",
	}); merr == nil {
		_ = b.sender.Send(roomID, clientID, prompt)
	}
}

// encodeState returns the wire value for the state field, gzipping large
// projections when compression wins.
func (b *BroadcastController) encodeState(projection state.Projection) (any, bool, error) {
	raw, err := json.Marshal(projection)
	if err != nil {
		return nil, false, err
	}
	if len(raw) <= b.cfg.CompressionThreshold {
		return projection, false, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return projection, false, nil
	}
	if err := zw.Close(); err != nil {
		return projection, false, nil
	}
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	if len(encoded) >= len(raw) {
		return projection, false, nil
	}
	return encoded, true, nil
}

// computeDelta compares two projections field by field and returns the
// tracked fields whose values differ.
func computeDelta(prev, next state.Projection) map[string]any {
	changes := make(map[string]any)
	for _, field := range state.TrackedFields() {
		key := string(field)
		prevValue, prevOK := prev[key]
		nextValue, nextOK := next[key]
		if !nextOK {
			continue
		}
		if !prevOK || !jsonEqual(prevValue, nextValue) {
			changes[key] = nextValue
		}
	}
	return changes
}

func jsonEqual(a, b any) bool {
	rawA, errA := json.Marshal(a)
	rawB, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(rawA, rawB)
}
