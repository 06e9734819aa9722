// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package hub is the signaling and relay core. It owns the session store
// and the global device directory, dispatches every inbound frame by its
// envelope type, and routes the resulting frames to zero or more
// connections.
//
// Concurrency model: all state mutations are serialized under one hub
// mutex. Frame writes go through bounded non-blocking queues (see
// internal/ws), so the critical section never waits on a slow consumer.
// Handler funcs and the private helpers they call run with h.mu held.
package hub

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowlink/flowlink/internal/domain/session/model"
	"github.com/flowlink/flowlink/internal/domain/session/store"
	"github.com/flowlink/flowlink/internal/log"
	"github.com/flowlink/flowlink/internal/metrics"
	"github.com/flowlink/flowlink/internal/protocol"
	"github.com/flowlink/flowlink/internal/telemetry"
)

// Reasons a session ends, used for logs and metrics.
const (
	reasonTTL       = "ttl"
	reasonOwnerLeft = "owner_left"
	reasonEmptied   = "emptied"
)

// ownerLeftReason is the close reason sent to evicted members.
const ownerLeftReason = "Session owner left"

// Conn is the slice of the transport the hub needs. *ws.Conn satisfies
// it; tests substitute fakes.
type Conn interface {
	ID() string
	TrySend(data []byte) bool
	CloseWithReason(code int, reason string)
	Close()
}

// Config tunes hub behavior. Zero values fall back to defaults.
type Config struct {
	// SessionTTL is how long a session lives after creation.
	SessionTTL time.Duration

	// NearbyDelay is the pause between session_created and the automatic
	// nearby broadcast. Zero runs the broadcast inline, which tests use.
	NearbyDelay time.Duration
}

// Hub routes frames between connections and owns all session state.
type Hub struct {
	store *store.Store
	dir   *store.Directory

	ttl         time.Duration
	nearbyDelay time.Duration

	mu         sync.Mutex
	conns      map[string]Conn   // conn id -> transport
	connDevice map[string]string // conn id -> device id, set on first identity
	closed     bool

	now func() time.Time
	log zerolog.Logger

	startedAt time.Time
}

// New creates a hub around the given store and directory.
func New(st *store.Store, dir *store.Directory, cfg Config) *Hub {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.NearbyDelay < 0 {
		cfg.NearbyDelay = 0
	}
	return &Hub{
		store:       st,
		dir:         dir,
		ttl:         cfg.SessionTTL,
		nearbyDelay: cfg.NearbyDelay,
		conns:       make(map[string]Conn),
		connDevice:  make(map[string]string),
		now:         time.Now,
		log:         log.WithComponent("hub"),
		startedAt:   time.Now(),
	}
}

// Attach registers a freshly upgraded connection with the hub. The
// device association happens later, on the first identity-bearing frame.
// A connection arriving after Shutdown is closed immediately.
func (h *Hub) Attach(c Conn) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.CloseWithReason(websocket.CloseGoingAway, "server shutting down")
		return
	}
	h.conns[c.ID()] = c
	h.syncGauges()
	h.log.Debug().Str(log.FieldConnID, c.ID()).Msg("connection attached")
	h.mu.Unlock()
}

// HandleMessage decodes one inbound frame and dispatches it. It runs on
// the connection's read goroutine; the flat switch below is the entire
// protocol surface.
func (h *Hub) HandleMessage(c Conn, data []byte) {
	defer h.recoverPanics(c)

	env, err := protocol.Decode(data)
	if err != nil {
		metrics.IncProtocolError("invalid_format")
		h.mu.Lock()
		h.sendError(c, "Invalid message format")
		h.mu.Unlock()
		return
	}

	msgType := env.Type
	if !protocol.KnownType(msgType) {
		msgType = "unknown"
	}
	metrics.IncFrameIn(msgType)

	// Each frame is a root span; frames carry no trace context. The
	// normalized type keeps span names bounded.
	_, span := telemetry.Tracer("flowlink.hub").Start(context.Background(), "hub."+msgType,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(telemetry.MessageAttributes(msgType, env.SessionID, env.DeviceID)...))
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	switch env.Type {
	case protocol.TypeDeviceRegister:
		h.handleDeviceRegister(c, env)
	case protocol.TypeSessionCreate:
		h.handleSessionCreate(c, env)
	case protocol.TypeSessionJoin:
		h.handleSessionJoin(c, env)
	case protocol.TypeSessionLeave:
		h.handleSessionLeave(c, env)
	case protocol.TypeWebRTCOffer, protocol.TypeWebRTCAnswer, protocol.TypeWebRTCICECandidate:
		h.handleSignal(c, env)
	case protocol.TypeIntentSend:
		h.handleIntentSend(c, env)
	case protocol.TypeClipboardBroadcast:
		h.handleClipboardBroadcast(c, env)
	case protocol.TypeDeviceStatusUpdate:
		h.handleStatusUpdate(c, env)
	case protocol.TypeGroupCreate:
		h.handleGroupCreate(c, env)
	case protocol.TypeGroupUpdate:
		h.handleGroupUpdate(c, env)
	case protocol.TypeGroupDelete:
		h.handleGroupDelete(c, env)
	case protocol.TypeGroupBroadcast:
		h.handleGroupBroadcast(c, env)
	case protocol.TypeSessionInvitation:
		h.handleInvitation(c, env)
	case protocol.TypeInvitationResponse:
		h.handleInvitationResponse(c, env)
	case protocol.TypeNearbySessionBroadcast:
		h.handleNearbyBroadcast(c, env)
	default:
		metrics.IncProtocolError("unknown_type")
		h.sendError(c, "Unknown message type: "+env.Type)
	}

	h.syncGauges()
}

// HandleDisconnect detaches a closed connection and, when it was the
// device's last one, runs the device-offline flow.
func (h *Hub) HandleDisconnect(c Conn) {
	defer h.recoverPanics(c)

	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, c.ID())
	deviceID, bound := h.connDevice[c.ID()]
	delete(h.connDevice, c.ID())

	if !bound {
		h.syncGauges()
		h.log.Debug().Str(log.FieldConnID, c.ID()).Msg("unbound connection closed")
		return
	}

	remaining := h.dir.Detach(deviceID, c.ID(), h.now())
	h.log.Debug().
		Str(log.FieldConnID, c.ID()).
		Str(log.FieldDeviceID, deviceID).
		Int("remaining_connections", remaining).
		Msg("connection closed")

	if remaining == 0 {
		if entry, ok := h.dir.Get(deviceID); ok && entry.SessionID != "" {
			h.leaveSession(entry.SessionID, deviceID)
		}
	}
	h.syncGauges()
}

// Stats is the live state summary served by /health.
type Stats struct {
	Sessions    int
	Connections int
	Devices     int
	Uptime      time.Duration
}

// Stats returns the current counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	conns := len(h.conns)
	h.mu.Unlock()
	return Stats{
		Sessions:    h.store.Count(),
		Connections: conns,
		Devices:     h.dir.Count(),
		Uptime:      time.Since(h.startedAt),
	}
}

// DebugState is the full state dump served by /debug in development.
type DebugState struct {
	Sessions      []model.SessionSnapshot `json:"sessions"`
	GlobalDevices []model.DeviceEntry     `json:"globalDevices"`
}

// DebugState snapshots all sessions and directory entries.
func (h *Hub) DebugState() DebugState {
	return DebugState{
		Sessions:      h.store.List(),
		GlobalDevices: h.dir.All(),
	}
}

// Shutdown closes every connection with a going-away frame. Pending
// nearby broadcasts are cancelled.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	open := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		open = append(open, c)
	}
	h.mu.Unlock()

	for _, c := range open {
		c.CloseWithReason(websocket.CloseGoingAway, "server shutting down")
	}
	h.log.Info().Int("connections", len(open)).Msg("hub shut down")
	return ctx.Err()
}

// Closed reports whether Shutdown has begun. New connections and
// messages are refused from then on.
func (h *Hub) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// recoverPanics keeps a handler panic from killing the process. The hub
// mutex has already been released during unwinding when this runs; the
// offending connection is dropped.
func (h *Hub) recoverPanics(c Conn) {
	if rec := recover(); rec != nil {
		buf := make([]byte, 8192)
		n := runtime.Stack(buf, false)
		h.log.Error().
			Str("event", "panic.recovered").
			Str(log.FieldConnID, c.ID()).
			Interface("panic_value", rec).
			Str("stack_trace", string(buf[:n])).
			Msg("panic recovered in frame handler")
		c.Close()
	}
}

// syncGauges refreshes the prometheus gauges from live state.
func (h *Hub) syncGauges() {
	metrics.SetActiveSessions(h.store.Count())
	metrics.SetActiveConnections(len(h.conns))
	metrics.SetDirectoryEntries(h.dir.Count())
}

// bindConn associates the connection with a device identity, detaching
// any previous association first. The directory entry must exist.
func (h *Hub) bindConn(c Conn, deviceID string) {
	if prev, ok := h.connDevice[c.ID()]; ok && prev != deviceID {
		h.dir.Detach(prev, c.ID(), h.now())
	}
	h.connDevice[c.ID()] = deviceID
	h.dir.Attach(deviceID, c.ID(), h.now())
}

// encode builds a server-originated frame. Failures are programming
// errors: they are logged and the frame is dropped, never fatal.
func (h *Hub) encode(msgType string, payload any, sessionID, deviceID string) ([]byte, bool) {
	env, err := protocol.NewEnvelope(msgType, payload, h.now())
	if err != nil {
		h.log.Error().Err(err).Str(log.FieldMsgType, msgType).Msg("encode payload failed")
		return nil, false
	}
	env.SessionID = sessionID
	env.DeviceID = deviceID
	frame, err := env.Encode()
	if err != nil {
		h.log.Error().Err(err).Str(log.FieldMsgType, msgType).Msg("encode envelope failed")
		return nil, false
	}
	return frame, true
}

// send delivers one frame to a specific connection.
func (h *Hub) send(c Conn, msgType string, payload any, sessionID string) bool {
	frame, ok := h.encode(msgType, payload, sessionID, "")
	if !ok {
		return false
	}
	if !c.TrySend(frame) {
		return false
	}
	metrics.IncFrameOut(msgType)
	return true
}

func (h *Hub) sendError(c Conn, message string) {
	h.send(c, protocol.TypeError, protocol.ErrorPayload{Message: message}, "")
}

func missingFieldsMessage(fields []string) string {
	return "Missing required fields: " + strings.Join(fields, ", ")
}
