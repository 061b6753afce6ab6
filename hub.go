package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cassino/server/logging"
	"cassino/server/logging/lifecycle"
)

// Hub owns the live websocket sessions grouped by room. It knows nothing
// about game state; the synchronizer pushes marshaled payloads through it.
type Hub struct {
	mu        sync.Mutex
	rooms     map[string]map[string]*subscriber
	cfg       Config
	publisher logging.Publisher
}

type subscriber struct {
	conn          *websocket.Conn
	mu            sync.Mutex
	roomID        string
	clientID      string
	lastHeartbeat time.Time
	lastRTT       time.Duration
	desynced      bool
}

// NewHub creates an empty hub.
func NewHub(cfg Config, publisher logging.Publisher) *Hub {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Hub{
		rooms:     make(map[string]map[string]*subscriber),
		cfg:       cfg.normalized(),
		publisher: publisher,
	}
}

// Subscribe associates a connection with a room, replacing any previous
// session for the same client id.
func (h *Hub) Subscribe(roomID, clientID string, conn *websocket.Conn) *subscriber {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[string]*subscriber)
		h.rooms[roomID] = room
	}
	var stale *websocket.Conn
	if existing, ok := room[clientID]; ok {
		stale = existing.conn
	}
	sub := &subscriber{
		conn:          conn,
		roomID:        roomID,
		clientID:      clientID,
		lastHeartbeat: time.Now(),
	}
	room[clientID] = sub
	h.mu.Unlock()

	if stale != nil {
		stale.Close()
	}
	lifecycle.ClientJoined(context.Background(), h.publisher, 0, roomID, clientID)
	return sub
}

// Disconnect removes a session and closes its connection.
func (h *Hub) Disconnect(roomID, clientID, reason string) {
	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	sub, ok := room[clientID]
	if ok {
		delete(room, clientID)
	}
	if len(room) == 0 {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	sub.conn.Close()
	lifecycle.ClientLeft(context.Background(), h.publisher, 0, roomID, clientID, reason)
}

// Clients returns the client ids currently subscribed to a room.
func (h *Hub) Clients(roomID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[roomID]
	ids := make([]string, 0, len(room))
	for id := range room {
		ids = append(ids, id)
	}
	return ids
}

// ConnectedCount reports how many sessions a room has.
func (h *Hub) ConnectedCount(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}

// IsConnected reports whether a client currently holds a session.
func (h *Hub) IsConnected(roomID, clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.rooms[roomID][clientID]
	return ok
}

// Send delivers one marshaled payload to a single client, honoring the
// write deadline. Callers own retry policy.
func (h *Hub) Send(roomID, clientID string, data []byte) error {
	h.mu.Lock()
	sub, ok := h.rooms[roomID][clientID]
	h.mu.Unlock()
	if !ok {
		return ErrClientNotFound
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
	return sub.conn.WriteMessage(websocket.TextMessage, data)
}

// MarkDesynced flags a client whose deliveries were dropped. The flag is
// cleared on the next successful full sync.
func (h *Hub) MarkDesynced(roomID, clientID string, desynced bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.rooms[roomID][clientID]; ok {
		sub.desynced = desynced
	}
}

// IsDesynced reports whether a client is flagged for a full resync.
func (h *Hub) IsDesynced(roomID, clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.rooms[roomID][clientID]
	return ok && sub.desynced
}

// UpdateHeartbeat records the most recent heartbeat time and RTT for a
// client session.
func (h *Hub) UpdateHeartbeat(roomID, clientID string, receivedAt time.Time, clientSent int64) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.rooms[roomID][clientID]
	if !ok {
		return 0, false
	}

	sub.lastHeartbeat = receivedAt

	if clientSent > 0 {
		clientTime := time.UnixMilli(clientSent)
		if clientTime.Before(receivedAt.Add(5 * time.Second)) {
			rtt := receivedAt.Sub(clientTime)
			if rtt < 0 {
				rtt = 0
			}
			sub.lastRTT = rtt
		}
	}

	return sub.lastRTT, true
}

// ReapStale closes sessions that have missed the heartbeat window and
// returns the ids it evicted.
func (h *Hub) ReapStale(now time.Time) []string {
	h.mu.Lock()
	var stale []*subscriber
	for roomID, room := range h.rooms {
		for clientID, sub := range room {
			if now.Sub(sub.lastHeartbeat) > h.cfg.HeartbeatTimeout {
				stale = append(stale, sub)
				delete(room, clientID)
			}
		}
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()

	evicted := make([]string, 0, len(stale))
	for _, sub := range stale {
		sub.conn.Close()
		evicted = append(evicted, sub.clientID)
		lifecycle.ClientLeft(context.Background(), h.publisher, 0, sub.roomID, sub.clientID, "heartbeat timeout")
	}
	return evicted
}

// RunReaper evicts stale sessions on a fixed cadence until ctx is done.
func (h *Hub) RunReaper(ctx context.Context) {
	interval := h.cfg.HeartbeatTimeout / 3
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.ReapStale(now)
		}
	}
}

// DiagnosticsSnapshot exposes session data for the diagnostics endpoint.
func (h *Hub) DiagnosticsSnapshot() []DiagnosticsClient {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]DiagnosticsClient, 0)
	for roomID, room := range h.rooms {
		for clientID, sub := range room {
			clients = append(clients, DiagnosticsClient{
				ID:            clientID,
				RoomID:        roomID,
				LastHeartbeat: sub.lastHeartbeat.UnixMilli(),
				RTTMillis:     sub.lastRTT.Milliseconds(),
				Desynced:      sub.desynced,
			})
		}
	}
	return clients
}
