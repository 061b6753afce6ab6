package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"cassino/server/internal/state"
)

// fakeSender records deliveries and can be told to fail a client a fixed
// number of times.
type fakeSender struct {
	mu        sync.Mutex
	clients   map[string][]string
	sent      map[string][][]byte
	failTimes map[string]int
	desynced  map[string]bool
}

func newFakeSender(roomID string, clientIDs ...string) *fakeSender {
	return &fakeSender{
		clients:   map[string][]string{roomID: clientIDs},
		sent:      make(map[string][][]byte),
		failTimes: make(map[string]int),
		desynced:  make(map[string]bool),
	}
}

func (f *fakeSender) Clients(roomID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.clients[roomID]...)
}

func (f *fakeSender) Send(roomID, clientID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTimes[clientID] > 0 {
		f.failTimes[clientID]--
		return errors.New("connection reset")
	}
	f.sent[clientID] = append(f.sent[clientID], append([]byte(nil), data...))
	return nil
}

func (f *fakeSender) MarkDesynced(roomID, clientID string, desynced bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.desynced[clientID] = desynced
}

func (f *fakeSender) failNext(clientID string, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failTimes[clientID] = times
}

func (f *fakeSender) received(clientID string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[clientID]
}

func (f *fakeSender) isDesynced(clientID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.desynced[clientID]
}

func fastRetryConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	cfg.MaxBroadcastRetries = 2
	return cfg
}

func TestBroadcastStateReachesAllClients(t *testing.T) {
	sender := newFakeSender("room-1", "c1", "c2")
	b := NewBroadcastController(sender, fastRetryConfig(), nil, nil)
	projection := state.NewGameState("room-1").Project()

	if err := b.BroadcastState(context.Background(), "room-1", projection, 3, "abc"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	for _, clientID := range []string{"c1", "c2"} {
		payloads := sender.received(clientID)
		if len(payloads) != 1 {
			t.Fatalf("%s received %d payloads, want 1", clientID, len(payloads))
		}
		var msg StateUpdate
		if err := json.Unmarshal(payloads[0], &msg); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if msg.Type != "state_update" || msg.Version != 3 || msg.Checksum != "abc" {
			t.Fatalf("unexpected message %+v", msg)
		}
	}
}

func TestBroadcastStateCompressesLargePayloads(t *testing.T) {
	sender := newFakeSender("room-1", "c1")
	cfg := fastRetryConfig()
	cfg.CompressionThreshold = 64
	b := NewBroadcastController(sender, cfg, nil, nil)

	projection := state.NewGameState("room-1").Project()
	raw, err := json.Marshal(projection)
	if err != nil {
		t.Fatalf("marshal projection: %v", err)
	}
	if len(raw) <= cfg.CompressionThreshold {
		t.Fatalf("test projection too small: %d bytes", len(raw))
	}

	if err := b.BroadcastState(context.Background(), "room-1", projection, 1, "abc"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	var msg StateUpdate
	if err := json.Unmarshal(sender.received("c1")[0], &msg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !msg.Compressed {
		t.Fatal("payload above threshold should be compressed")
	}
	encoded, ok := msg.State.(string)
	if !ok {
		t.Fatalf("compressed state should be a string, got %T", msg.State)
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		t.Fatalf("open gzip: %v", err)
	}
	inflated, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	var roundTripped state.Projection
	if err := json.Unmarshal(inflated, &roundTripped); err != nil {
		t.Fatalf("decode inflated state: %v", err)
	}
	if roundTripped["phase"] != "waiting" {
		t.Fatalf("inflated phase = %v", roundTripped["phase"])
	}
}

func TestBroadcastStateSkipsUselessCompression(t *testing.T) {
	sender := newFakeSender("room-1", "c1")
	cfg := fastRetryConfig()
	// Tiny threshold with a payload whose compressed+base64 form is larger.
	cfg.CompressionThreshold = 2
	b := NewBroadcastController(sender, cfg, nil, nil)

	projection := state.Projection{"a": 1}
	if err := b.BroadcastState(context.Background(), "room-1", projection, 1, "abc"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	var msg StateUpdate
	if err := json.Unmarshal(sender.received("c1")[0], &msg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if msg.Compressed {
		t.Fatal("compression should be skipped when it does not shrink the payload")
	}
}

func TestBroadcastDeltaWithoutBaseFallsBack(t *testing.T) {
	sender := newFakeSender("room-1", "c1")
	b := NewBroadcastController(sender, fastRetryConfig(), nil, nil)
	projection := state.NewGameState("room-1").Project()

	if err := b.BroadcastDelta(context.Background(), "room-1", projection, 1, "abc"); err != nil {
		t.Fatalf("broadcast delta: %v", err)
	}
	var msg StateUpdate
	if err := json.Unmarshal(sender.received("c1")[0], &msg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if msg.Type != "state_update" {
		t.Fatalf("first broadcast should be a full update, got %q", msg.Type)
	}
}

func TestBroadcastDeltaSendsOnlyChanges(t *testing.T) {
	sender := newFakeSender("room-1", "c1")
	b := NewBroadcastController(sender, fastRetryConfig(), nil, nil)

	gs := state.NewGameState("room-1")
	gs.Version = 1
	if err := b.BroadcastState(context.Background(), "room-1", gs.Project(), 1, "abc"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	next := gs.Clone()
	next.Version = 2
	next.CurrentTurn = state.SeatPlayer2
	next.Scores[state.SeatPlayer1] = 3
	if err := b.BroadcastDelta(context.Background(), "room-1", next.Project(), 2, "def"); err != nil {
		t.Fatalf("broadcast delta: %v", err)
	}

	payloads := sender.received("c1")
	if len(payloads) != 2 {
		t.Fatalf("received %d payloads, want 2", len(payloads))
	}
	var msg StateDelta
	if err := json.Unmarshal(payloads[1], &msg); err != nil {
		t.Fatalf("decode delta: %v", err)
	}
	if msg.Type != "state_delta" || msg.Version != 2 || msg.BaseVersion != 1 {
		t.Fatalf("unexpected delta envelope %+v", msg)
	}
	if len(msg.Changes) != 3 {
		t.Fatalf("changes = %v, want exactly version, currentTurn, player1Score", msg.Changes)
	}
	for _, key := range []string{"version", "currentTurn", "player1Score"} {
		if _, ok := msg.Changes[key]; !ok {
			t.Fatalf("changes missing %q: %v", key, msg.Changes)
		}
	}
}

func TestBroadcastDeltaNoChangesSendsNothing(t *testing.T) {
	sender := newFakeSender("room-1", "c1")
	b := NewBroadcastController(sender, fastRetryConfig(), nil, nil)
	projection := state.NewGameState("room-1").Project()

	if err := b.BroadcastState(context.Background(), "room-1", projection, 1, "abc"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if err := b.BroadcastDelta(context.Background(), "room-1", projection, 1, "abc"); err != nil {
		t.Fatalf("broadcast delta: %v", err)
	}
	if got := len(sender.received("c1")); got != 1 {
		t.Fatalf("identical projection should not resend, got %d payloads", got)
	}
}

func TestDeliverRetryRecovers(t *testing.T) {
	sender := newFakeSender("room-1", "c1")
	sender.failNext("c1", 1)
	counters := NewTelemetry()
	b := NewBroadcastController(sender, fastRetryConfig(), nil, counters)
	projection := state.NewGameState("room-1").Project()

	if err := b.BroadcastState(context.Background(), "room-1", projection, 1, "abc"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(sender.received("c1")) != 1 {
		t.Fatal("retry should deliver the payload")
	}
	if sender.isDesynced("c1") {
		t.Fatal("recovered client must not be flagged desynced")
	}
	snap := counters.Snapshot()
	if snap.BroadcastFailures != 1 {
		t.Fatalf("broadcastFailures = %d, want 1", snap.BroadcastFailures)
	}
}

func TestDeliverExhaustedRetriesFlagsDesync(t *testing.T) {
	sender := newFakeSender("room-1", "c1", "c2")
	// First attempt plus two retries all fail.
	sender.failNext("c1", 3)
	counters := NewTelemetry()
	b := NewBroadcastController(sender, fastRetryConfig(), nil, counters)
	projection := state.NewGameState("room-1").Project()

	if err := b.BroadcastState(context.Background(), "room-1", projection, 1, "abc"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if !sender.isDesynced("c1") {
		t.Fatal("client with exhausted retries should be flagged desynced")
	}
	if len(sender.received("c2")) != 1 {
		t.Fatal("one failing client must not block the other")
	}
	prompts := sender.received("c1")
	if len(prompts) != 1 {
		t.Fatalf("desynced client received %d payloads, want only the prompt", len(prompts))
	}
	var prompt Desync
	if err := json.Unmarshal(prompts[0], &prompt); err != nil {
		t.Fatalf("decode prompt: %v", err)
	}
	if prompt.Type != "desync" || prompt.RoomID != "room-1" || prompt.ServerVersion != 1 {
		t.Fatalf("unexpected desync prompt %+v", prompt)
	}
	snap := counters.Snapshot()
	if snap.ClientsDesynced != 1 {
		t.Fatalf("clientsDesynced = %d, want 1", snap.ClientsDesynced)
	}
	if snap.BroadcastFailures != 3 {
		t.Fatalf("broadcastFailures = %d, want 3", snap.BroadcastFailures)
	}
}

func TestForgetForcesFullBroadcast(t *testing.T) {
	sender := newFakeSender("room-1", "c1")
	b := NewBroadcastController(sender, fastRetryConfig(), nil, nil)
	projection := state.NewGameState("room-1").Project()

	if err := b.BroadcastState(context.Background(), "room-1", projection, 1, "abc"); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	b.Forget("room-1")
	if err := b.BroadcastDelta(context.Background(), "room-1", projection, 1, "abc"); err != nil {
		t.Fatalf("broadcast delta: %v", err)
	}
	var msg StateUpdate
	if err := json.Unmarshal(sender.received("c1")[1], &msg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if msg.Type != "state_update" {
		t.Fatalf("post-forget broadcast should be full, got %q", msg.Type)
	}
}

func TestComputeDelta(t *testing.T) {
	prev := state.NewGameState("room-1")
	next := prev.Clone()
	next.Version = 1
	next.Phase = state.PhaseCardSelection
	next.Hands[state.SeatPlayer1] = []state.Card{"A_hearts"}

	changes := computeDelta(prev.Project(), next.Project())
	want := []string{"version", "phase", "player1Hand", "player1HandCount"}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want keys %v", changes, want)
	}
	for _, key := range want {
		if _, ok := changes[key]; !ok {
			t.Fatalf("changes missing %q", key)
		}
	}

	if got := computeDelta(prev.Project(), prev.Project()); len(got) != 0 {
		t.Fatalf("identical projections should yield no changes, got %v", got)
	}
}

func TestSendToClient(t *testing.T) {
	sender := newFakeSender("room-1", "c1")
	b := NewBroadcastController(sender, fastRetryConfig(), nil, nil)

	if err := b.SendToClient("room-1", "c1", ActionAck{Type: "action_ack", ActionID: "a1", Version: 2}); err != nil {
		t.Fatalf("send: %v", err)
	}
	payload := sender.received("c1")[0]
	if !strings.Contains(string(payload), `"action_ack"`) {
		t.Fatalf("payload = %s", payload)
	}
}
