package ws

import (
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"cassino/server"
	"cassino/server/internal/checksum"
	"cassino/server/internal/net/proto"
)

type HandlerConfig struct {
	Logger *log.Logger
}

// Handler upgrades HTTP requests into game sessions. Clients must have
// claimed a seat through the join endpoint before connecting.
type Handler struct {
	hub      *server.Hub
	sync     *server.Synchronizer
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *server.Hub, sync *server.Synchronizer, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		sync:     sync,
		logger:   logger,
		upgrader: upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	roomID := r.URL.Query().Get("room")
	clientID := r.URL.Query().Get("id")
	if roomID == "" || clientID == "" {
		nethttp.Error(w, "missing room or id", nethttp.StatusBadRequest)
		return
	}

	seat, ok := h.sync.Seat(roomID, clientID)
	if !ok {
		nethttp.Error(w, "join the room before connecting", nethttp.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", clientID, err)
		return
	}

	h.hub.Subscribe(roomID, clientID, conn)

	if !h.sendInitialState(roomID, clientID) {
		h.hub.Disconnect(roomID, clientID, "initial state failed")
		return
	}

	h.serve(&sessionState{
		roomID:   roomID,
		clientID: clientID,
		seat:     seat,
		conn:     conn,
	})
}

// sendInitialState pushes the full authoritative state so a fresh session
// never starts from a delta.
func (h *Handler) sendInitialState(roomID, clientID string) bool {
	current, err := h.sync.CurrentState(roomID)
	if err != nil {
		h.logger.Printf("failed to load state for %s: %v", roomID, err)
		return false
	}
	digest, err := checksum.Compute(current)
	if err != nil {
		h.logger.Printf("failed to checksum state for %s: %v", roomID, err)
		return false
	}
	msg := server.StateUpdate{
		Type:      proto.TypeStateUpdate,
		RoomID:    roomID,
		State:     current.Project(),
		Version:   current.Version,
		Checksum:  digest,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.writeJSON(roomID, clientID, msg); err != nil {
		return false
	}
	return true
}

func (h *Handler) writeJSON(roomID, clientID string, payload any) error {
	data, err := marshalPayload(payload)
	if err != nil {
		h.logger.Printf("failed to marshal payload for %s: %v", clientID, err)
		return err
	}
	return h.hub.Send(roomID, clientID, data)
}
