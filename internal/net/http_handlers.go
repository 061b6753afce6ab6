// Package net wires the HTTP surface: the join endpoint, the websocket
// upgrade, and operational endpoints for health and diagnostics.
package net

import (
	"encoding/json"
	"errors"
	"log"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"github.com/google/uuid"

	"cassino/server"
	"cassino/server/internal/net/ws"
	"cassino/server/internal/observability"
)

type HTTPHandlerConfig struct {
	ClientDir     string
	Logger        *log.Logger
	Observability observability.Config
}

type joinRequest struct {
	RoomID   string `json:"roomId"`
	ClientID string `json:"clientId,omitempty"`
}

// NewHTTPHandler builds the full route table for the server.
func NewHTTPHandler(hub *server.Hub, sync *server.Synchronizer, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	wsHandler := ws.NewHandler(hub, sync, ws.HandlerConfig{Logger: logger})

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/join", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			nethttp.Error(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		var req joinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			nethttp.Error(w, "malformed join request", nethttp.StatusBadRequest)
			return
		}
		if req.RoomID == "" {
			nethttp.Error(w, "missing roomId", nethttp.StatusBadRequest)
			return
		}
		if req.ClientID == "" {
			req.ClientID = uuid.NewString()
		}

		resp, err := sync.Join(req.RoomID, req.ClientID)
		if err != nil {
			if errors.Is(err, server.ErrRoomFull) {
				nethttp.Error(w, err.Error(), nethttp.StatusConflict)
				return
			}
			logger.Printf("join failed for room %s: %v", req.RoomID, err)
			nethttp.Error(w, "join failed", nethttp.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, resp)
	})

	mux.HandleFunc("/ws", wsHandler.Handle)

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string `json:"status"`
			ServerTime int64  `json:"serverTime"`
			Clients    any    `json:"clients"`
			Telemetry  any    `json:"telemetry"`
			Conflicts  any    `json:"conflicts"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Clients:    hub.DiagnosticsSnapshot(),
			Telemetry:  sync.Telemetry(),
			Conflicts:  sync.ConflictStats(),
		}
		writeJSON(w, logger, payload)
	})

	mux.HandleFunc("/replay", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		roomID := r.URL.Query().Get("room")
		if roomID == "" {
			nethttp.Error(w, "missing room", nethttp.StatusBadRequest)
			return
		}
		projection, version, err := sync.ReplayProjection(r.Context(), roomID)
		if err != nil {
			logger.Printf("replay failed for room %s: %v", roomID, err)
			nethttp.Error(w, "replay failed", nethttp.StatusInternalServerError)
			return
		}
		payload := struct {
			RoomID  string `json:"roomId"`
			Version uint64 `json:"version"`
			State   any    `json:"state"`
		}{
			RoomID:  roomID,
			Version: version,
			State:   projection,
		}
		writeJSON(w, logger, payload)
	})

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	if cfg.ClientDir != "" {
		mux.Handle("/", nethttp.FileServer(nethttp.Dir(cfg.ClientDir)))
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, logger *log.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Printf("failed to encode response: %v", err)
	}
}
