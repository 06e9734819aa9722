// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"net/http"

	"github.com/flowlink/flowlink/internal/hub"
	"github.com/flowlink/flowlink/internal/log"
	"github.com/flowlink/flowlink/internal/ws"
)

// hubHandler adapts the hub to the ws.Handler contract.
type hubHandler struct {
	hub *hub.Hub
}

func (h hubHandler) HandleMessage(c *ws.Conn, data []byte) { h.hub.HandleMessage(c, data) }
func (h hubHandler) HandleDisconnect(c *ws.Conn)           { h.hub.HandleDisconnect(c) }

// handleWS upgrades the request and runs the connection's read pump until
// the peer disconnects. The write pump runs on its own goroutine.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub.Closed() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	sock, err := ws.Upgrade(w, r)
	if err != nil {
		// Upgrade already wrote the HTTP error reply.
		s.logger.Warn().
			Err(err).
			Str(log.FieldRemoteAddr, r.RemoteAddr).
			Msg("websocket upgrade failed")
		return
	}

	conn := ws.NewConn(sock, hubHandler{hub: s.hub}, ws.Options{
		PingInterval: s.cfg.PingInterval,
		SendBuffer:   s.cfg.SendBuffer,
	})
	s.hub.Attach(conn)
	conn.Serve()
}
