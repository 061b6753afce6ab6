package server

import (
	"context"
	"sync"
	"time"

	"cassino/server/internal/checksum"
	"cassino/server/internal/conflict"
	"cassino/server/internal/journal"
	"cassino/server/internal/rules"
	"cassino/server/internal/security"
	"cassino/server/internal/state"
	"cassino/server/internal/version"
	"cassino/server/logging"
	"cassino/server/logging/conflicts"
	"cassino/server/logging/lifecycle"
	"cassino/server/logging/network"
	logsecurity "cassino/server/logging/security"
)

// Synchronizer is the authoritative pipeline for every room: it validates
// actions, applies the rules engine, assigns versions, journals events, and
// hands committed states to the broadcaster. All mutation for a room happens
// under that room's lock, so versions are strictly sequential.
type Synchronizer struct {
	cfg       Config
	journal   *journal.EventStore
	engine    rules.Engine
	resolver  *conflict.Resolver
	tracker   *security.ViolationTracker
	broadcast *BroadcastController
	publisher logging.Publisher
	counters  *Telemetry

	mu    sync.Mutex
	rooms map[string]*room
}

type room struct {
	mu    sync.Mutex
	state *state.GameState
	seats map[state.Seat]string
}

// ActionResult reports a committed action back to the caller.
type ActionResult struct {
	State    *state.GameState
	Version  uint64
	Checksum string
	Event    journal.Event
}

// BatchResult reports the outcome of resolving a batch of near-simultaneous
// actions.
type BatchResult struct {
	Accepted []ActionResult
	Rejected []conflict.Rejection
}

// NewSynchronizer wires the pipeline together. The broadcaster may be nil
// for callers that deliver state themselves.
func NewSynchronizer(cfg Config, store *journal.EventStore, engine rules.Engine, broadcast *BroadcastController, publisher logging.Publisher, counters *Telemetry) *Synchronizer {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	if counters == nil {
		counters = NewTelemetry()
	}
	cfg = cfg.normalized()
	return &Synchronizer{
		cfg:       cfg,
		journal:   store,
		engine:    engine,
		resolver:  conflict.NewResolver(cfg.ConflictWindowMillis),
		tracker:   security.NewViolationTracker(),
		broadcast: broadcast,
		publisher: publisher,
		counters:  counters,
		rooms:     make(map[string]*room),
	}
}

// Room returns the room's container, creating a fresh waiting-phase state
// on first use.
func (s *Synchronizer) Room(roomID string) *room {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[roomID]
	if !ok {
		rm = &room{
			state: state.NewGameState(roomID),
			seats: make(map[state.Seat]string),
		}
		s.rooms[roomID] = rm
		lifecycle.RoomCreated(context.Background(), s.publisher, 0, roomID)
	}
	return rm
}

func (s *Synchronizer) lookup(roomID string) (*room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.rooms[roomID]
	return rm, ok
}

// Join assigns the caller a seat in the room and returns the current state
// so the client can render immediately. The second joiner gets the opposite
// seat; a third is refused.
func (s *Synchronizer) Join(roomID, clientID string) (JoinResponse, error) {
	rm := s.Room(roomID)
	rm.mu.Lock()
	defer rm.mu.Unlock()

	var seat state.Seat
	switch {
	case rm.seats[state.SeatPlayer1] == "" || rm.seats[state.SeatPlayer1] == clientID:
		seat = state.SeatPlayer1
	case rm.seats[state.SeatPlayer2] == "" || rm.seats[state.SeatPlayer2] == clientID:
		seat = state.SeatPlayer2
	default:
		return JoinResponse{}, ErrRoomFull
	}
	rm.seats[seat] = clientID

	digest, err := checksum.Compute(rm.state)
	if err != nil {
		return JoinResponse{}, err
	}
	return JoinResponse{
		RoomID:   roomID,
		ClientID: clientID,
		Seat:     seat,
		State:    rm.state.Project(),
		Version:  rm.state.Version,
		Checksum: digest,
	}, nil
}

// Seat reports which seat a client holds in a room.
func (s *Synchronizer) Seat(roomID, clientID string) (state.Seat, bool) {
	rm, ok := s.lookup(roomID)
	if !ok {
		return "", false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for seat, id := range rm.seats {
		if id == clientID {
			return seat, true
		}
	}
	return "", false
}

// CurrentState returns a deep copy of the room's authoritative state.
func (s *Synchronizer) CurrentState(roomID string) (*state.GameState, error) {
	rm, ok := s.lookup(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.state.Clone(), nil
}

// CurrentVersion returns the room's committed version.
func (s *Synchronizer) CurrentVersion(roomID string) (uint64, error) {
	rm, ok := s.lookup(roomID)
	if !ok {
		return 0, ErrRoomNotFound
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.state.Version, nil
}

// ProcessAction runs the full pipeline for one client action. On success the
// room's state advances exactly one version and the committed state is
// broadcast to subscribers; a broadcast failure never unwinds the commit.
func (s *Synchronizer) ProcessAction(ctx context.Context, roomID string, action state.GameAction) (ActionResult, error) {
	started := time.Now()
	rm := s.Room(roomID)

	rm.mu.Lock()
	result, err := s.processLocked(ctx, roomID, rm, action)
	rm.mu.Unlock()

	s.counters.RecordAction(time.Since(started), err != nil)
	if err != nil {
		return ActionResult{}, err
	}

	if action.Type == state.ActionResetRound {
		s.resetRoomTracking(roomID)
	}
	s.publishState(ctx, roomID, result)
	return result, nil
}

// resetRoomTracking clears the per-room accounting that belongs to the game
// that just ended: turn-violation counters and the delta base, so the first
// broadcast of the new game is a full update.
func (s *Synchronizer) resetRoomTracking(roomID string) {
	s.tracker.Reset(roomID)
	if s.broadcast != nil {
		s.broadcast.Forget(roomID)
	}
}

func (s *Synchronizer) processLocked(ctx context.Context, roomID string, rm *room, action state.GameAction) (ActionResult, error) {
	if action.ServerTimestamp == 0 {
		action.ServerTimestamp = time.Now().UnixMilli()
	}
	prev := rm.state

	// A reported client version of zero means the client did not say which
	// version it built the action against.
	if action.ClientVersion != 0 && action.ClientVersion < prev.Version {
		return ActionResult{}, &VersionConflictError{
			ClientVersion: action.ClientVersion,
			ServerVersion: prev.Version,
		}
	}

	next, err := s.validateAndApply(roomID, prev, action)
	if err != nil {
		return ActionResult{}, err
	}

	return s.commitLocked(ctx, roomID, rm, prev, next, action)
}

// validateAndApply runs the pre-action battery, the rules engine, and the
// transition battery without mutating anything. It is also the validate
// callback for conflict resolution.
func (s *Synchronizer) validateAndApply(roomID string, prev *state.GameState, action state.GameAction) (*state.GameState, error) {
	report := security.ValidateAction(prev, action)
	s.recordViolations(roomID, prev.Version, action, report)
	if turnViolation(report) {
		count, escalated := s.tracker.Record(roomID, action.PlayerID)
		if escalated {
			logsecurity.Escalation(context.Background(), s.publisher, prev.Version,
				logging.EntityRef{ID: action.PlayerID, Kind: logging.EntityKindPlayer},
				logsecurity.EscalationPayload{RoomID: roomID, PlayerID: action.PlayerID, Count: count})
		}
		return nil, &TurnOrderError{PlayerID: action.PlayerID, Count: count, Escalated: escalated}
	}
	if report.Blocked() {
		s.logBlocked(roomID, prev.Version, action, report)
		return nil, &SecurityBlockError{Report: report}
	}

	next, err := s.engine.Apply(prev, action)
	if err != nil {
		return nil, err
	}

	transition := security.ValidateTransition(prev, next, action.Type)
	s.recordViolations(roomID, prev.Version, action, transition)
	if transition.Blocked() {
		s.logBlocked(roomID, prev.Version, action, transition)
		return nil, &SecurityBlockError{Report: transition}
	}
	return next, nil
}

// commitLocked assigns the next version, journals the event, and adopts the
// new state. The in-memory state only advances after the journal accepts
// the event.
func (s *Synchronizer) commitLocked(ctx context.Context, roomID string, rm *room, prev, next *state.GameState, action state.GameAction) (ActionResult, error) {
	next.Version = prev.Version + 1
	next.LastUpdated = time.Now()
	action.Version = next.Version

	digest, err := checksum.Compute(next)
	if err != nil {
		return ActionResult{}, err
	}

	actionData := map[string]any{
		"actionId":      action.ID,
		"actionType":    string(action.Type),
		"cardId":        string(action.CardID),
		"checksum":      digest,
		"state_changes": computeDelta(prev.Project(), next.Project()),
	}
	evt, err := s.journal.StoreEvent(ctx, roomID, action, next.Version, actionData)
	if err != nil {
		return ActionResult{}, err
	}

	rm.state = next
	if s.journal.CheckAndCreateSnapshot(ctx, roomID, next.Version, next) {
		s.counters.RecordSnapshot()
	}

	return ActionResult{
		State:    next.Clone(),
		Version:  next.Version,
		Checksum: digest,
		Event:    evt,
	}, nil
}

// publishState pushes a committed state to subscribers. Errors are logged
// by the broadcaster; the commit stands either way.
func (s *Synchronizer) publishState(ctx context.Context, roomID string, result ActionResult) {
	if s.broadcast == nil {
		return
	}
	s.broadcast.BroadcastDelta(ctx, roomID, result.State.Project(), result.Version, result.Checksum)
}

// ProcessBatch resolves a set of near-simultaneous actions with the
// server-wins policy, commits the winners in timestamp order, and notifies
// each loser of the action that beat it.
func (s *Synchronizer) ProcessBatch(ctx context.Context, roomID string, actions []state.GameAction) (BatchResult, error) {
	if len(actions) == 0 {
		return BatchResult{}, nil
	}
	now := time.Now().UnixMilli()
	for i := range actions {
		if actions[i].ServerTimestamp == 0 {
			actions[i].ServerTimestamp = now
		}
	}

	rm := s.Room(roomID)
	rm.mu.Lock()
	resolution := s.resolver.Resolve(roomID, rm.state, actions, func(prev *state.GameState, action state.GameAction) (*state.GameState, error) {
		return s.validateAndApply(roomID, prev, action)
	})

	var batch BatchResult
	var commitErr error
	for _, action := range resolution.Accepted {
		prev := rm.state
		next, err := s.validateAndApply(roomID, prev, action)
		if err != nil {
			commitErr = err
			break
		}
		result, err := s.commitLocked(ctx, roomID, rm, prev, next, action)
		if err != nil {
			commitErr = err
			break
		}
		batch.Accepted = append(batch.Accepted, result)
	}
	batch.Rejected = resolution.Rejected
	currentVersion := rm.state.Version
	rm.mu.Unlock()

	if commitErr != nil {
		return batch, commitErr
	}

	for _, rejection := range resolution.Rejected {
		if rejection.Winner.ID != "" {
			s.counters.RecordConflict(true)
			conflicts.Resolved(ctx, s.publisher, currentVersion, roomID, conflicts.ResolvedPayload{
				RoomID:   roomID,
				Winner:   rejection.Winner.ID,
				Loser:    rejection.Action.ID,
				Reason:   rejection.Reason,
				Accepted: len(batch.Accepted),
				Rejected: len(resolution.Rejected),
			})
		}
		s.notifyRejection(roomID, rejection)
	}

	if len(batch.Accepted) > 0 {
		s.publishState(ctx, roomID, batch.Accepted[len(batch.Accepted)-1])
	}
	return batch, nil
}

// notifyRejection tells only the losing client why its action was dropped.
// The structured conflict notification is attached only when another action
// actually beat this one; plain invalid actions get a bare rejection.
func (s *Synchronizer) notifyRejection(roomID string, rejection conflict.Rejection) {
	if s.broadcast == nil {
		return
	}
	msg := ActionRejected{
		Type:     "action_rejected",
		ActionID: rejection.Action.ID,
		Reason:   rejection.Reason,
	}
	if rejection.Winner.ID != "" {
		note := conflict.NewNotification(rejection, time.Now())
		msg.Conflict = &note
	}
	s.broadcast.SendToClient(roomID, rejection.Action.PlayerID, msg)
}

// SyncClient answers a catch-up request. Small gaps return the missed
// events; anything past the staleness threshold, and any client claiming a
// version ahead of the server, gets the full authoritative state.
func (s *Synchronizer) SyncClient(ctx context.Context, roomID, clientID string, clientVersion uint64) (SyncResponse, error) {
	rm, ok := s.lookup(roomID)
	if !ok {
		return SyncResponse{}, ErrRoomNotFound
	}

	rm.mu.Lock()
	current := rm.state.Clone()
	rm.mu.Unlock()

	check := version.Validate(clientVersion, current.Version)
	network.SyncRequested(ctx, s.publisher, network.SyncPayload{
		RoomID:        roomID,
		ClientID:      clientID,
		ClientVersion: clientVersion,
		ServerVersion: current.Version,
		FullSync:      check.RequiresSync || check.Anomaly,
	})

	resp := SyncResponse{
		Type:           "sync_response",
		RoomID:         roomID,
		CurrentVersion: current.Version,
		ClientVersion:  clientVersion,
	}

	if check.Anomaly {
		// A client claiming a version ahead of the server is an anomaly, not
		// a successful catch-up: it still gets the full state to recover
		// from, but the response reports failure.
		s.counters.RecordSync(true)
		return s.fullSyncResponse(resp, current, check.Message, false)
	}
	if !check.HasGap {
		s.counters.RecordSync(false)
		resp.Success = true
		resp.Message = check.Message
		return resp, nil
	}
	if version.IsStale(clientVersion, current.Version, s.cfg.MaxVersionGap) {
		s.counters.RecordSync(true)
		return s.fullSyncResponse(resp, current, check.Message, true)
	}

	events, err := s.journal.Events(ctx, roomID, clientVersion, current.Version)
	if err != nil {
		// Event history is unavailable, so fall back to the full state.
		s.counters.RecordSync(true)
		return s.fullSyncResponse(resp, current, "event history unavailable", true)
	}
	s.counters.RecordSync(false)
	resp.Success = true
	resp.MissingEvents = events
	return resp, nil
}

func (s *Synchronizer) fullSyncResponse(resp SyncResponse, current *state.GameState, message string, success bool) (SyncResponse, error) {
	digest, err := checksum.Compute(current)
	if err != nil {
		return SyncResponse{}, err
	}
	resp.Success = success
	resp.State = current.Project()
	resp.Checksum = digest
	resp.RequiresFullSync = true
	resp.Message = message
	return resp, nil
}

// ReplayProjection rebuilds a room's wire projection from the journal, for
// recovery and audit tooling.
func (s *Synchronizer) ReplayProjection(ctx context.Context, roomID string) (state.Projection, uint64, error) {
	return s.journal.Replay(ctx, roomID, state.NewGameState(roomID))
}

// Telemetry returns a point-in-time copy of the pipeline counters.
func (s *Synchronizer) Telemetry() TelemetrySnapshot {
	return s.counters.Snapshot()
}

// ConflictStats exposes the bounded conflict log's aggregates.
func (s *Synchronizer) ConflictStats() conflict.Stats {
	return s.resolver.Log().Stats()
}

// ViolationCount reports how many turn-order violations a player has
// accumulated in a room.
func (s *Synchronizer) ViolationCount(roomID, playerID string) int {
	return s.tracker.Count(roomID, playerID)
}

func (s *Synchronizer) recordViolations(roomID string, ver uint64, action state.GameAction, report security.Report) {
	if report.Empty() {
		return
	}
	s.counters.RecordViolations(len(report.Violations))
	for _, v := range report.Violations {
		logsecurity.Violation(context.Background(), s.publisher, ver,
			logging.EntityRef{ID: action.PlayerID, Kind: logging.EntityKindPlayer},
			logsecurity.ViolationPayload{
				RoomID:      roomID,
				Violation:   string(v.Type),
				SeverityTag: string(v.Severity),
				Description: v.Description,
				Details:     v.Details,
			})
	}
}

func (s *Synchronizer) logBlocked(roomID string, ver uint64, action state.GameAction, report security.Report) {
	kinds := make([]string, 0, len(report.Violations))
	for _, v := range report.Critical() {
		kinds = append(kinds, string(v.Type))
	}
	logsecurity.ActionBlocked(context.Background(), s.publisher, ver,
		logging.EntityRef{ID: action.PlayerID, Kind: logging.EntityKindPlayer},
		action.ID,
		logsecurity.BlockedPayload{RoomID: roomID, ActionType: string(action.Type), Violations: kinds})
}

func turnViolation(report security.Report) bool {
	for _, v := range report.Violations {
		if v.Type == security.ViolationTurnOrder {
			return true
		}
	}
	return false
}
