// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package hub

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowlink/flowlink/internal/log"
	"github.com/flowlink/flowlink/internal/metrics"
	"github.com/flowlink/flowlink/internal/protocol"
)

// handleDeviceRegister upserts the device's directory presence so it can
// receive invitations and nearby broadcasts without joining a session.
func (h *Hub) handleDeviceRegister(c Conn, env *protocol.Envelope) {
	var p protocol.RegisterPayload
	if err := env.ParsePayload(&p); err != nil {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	if missing := p.MissingFields(); len(missing) > 0 {
		metrics.IncProtocolError("missing_fields")
		h.sendError(c, missingFieldsMessage(missing))
		return
	}

	h.dir.Upsert(p.Info(), h.now())
	h.bindConn(c, p.DeviceID)

	h.send(c, protocol.TypeDeviceRegistered, protocol.DeviceRegisteredPayload{
		DeviceID:   p.DeviceID,
		Username:   p.Username,
		Registered: true,
	}, "")

	h.log.Info().
		Str(log.FieldDeviceID, p.DeviceID).
		Str(log.FieldUsername, p.Username).
		Str(log.FieldConnID, c.ID()).
		Msg("device registered")
}

func (h *Hub) handleSessionCreate(c Conn, env *protocol.Envelope) {
	var p protocol.RegisterPayload
	if err := env.ParsePayload(&p); err != nil {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	if missing := p.MissingFields(); len(missing) > 0 {
		metrics.IncProtocolError("missing_fields")
		h.sendError(c, missingFieldsMessage(missing))
		return
	}

	now := h.now()
	snap, err := h.store.Create(p.Info(), now, h.ttl)
	if err != nil {
		h.log.Error().Err(err).Msg("session create failed")
		h.sendError(c, "Failed to create session")
		return
	}

	h.dir.Upsert(p.Info(), now)
	h.bindConn(c, p.DeviceID)
	h.dir.SetSession(p.DeviceID, snap.ID)

	h.send(c, protocol.TypeSessionCreated, protocol.SessionCreatedPayload{
		SessionID: snap.ID,
		Code:      snap.Code,
		ExpiresAt: snap.ExpiresAt,
	}, snap.ID)

	h.log.Info().
		Str(log.FieldSessionID, snap.ID).
		Str(log.FieldSessionCode, snap.Code).
		Str(log.FieldDeviceID, p.DeviceID).
		Str(log.FieldUsername, p.Username).
		Msg("session created")

	h.scheduleNearby(snap.ID)
}

func (h *Hub) handleSessionJoin(c Conn, env *protocol.Envelope) {
	var p protocol.JoinPayload
	if err := env.ParsePayload(&p); err != nil {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	missing := p.MissingFields()
	if p.Code == "" {
		missing = append([]string{"code"}, missing...)
	}
	if len(missing) > 0 {
		metrics.IncProtocolError("missing_fields")
		h.sendError(c, missingFieldsMessage(missing))
		return
	}

	now := h.now()
	id, ok := h.store.FindByCode(p.Code, now)
	if !ok {
		metrics.IncProtocolError("invalid_code")
		h.sendError(c, "Invalid session code")
		return
	}
	member, wasNew, err := h.store.AddMember(id, p.Info(), now)
	if err != nil {
		metrics.IncProtocolError("invalid_code")
		h.sendError(c, "Invalid session code")
		return
	}

	h.dir.Upsert(p.Info(), now)
	h.bindConn(c, p.DeviceID)
	h.dir.SetSession(p.DeviceID, id)

	snap, ok := h.store.Get(id, now)
	if !ok {
		h.sendError(c, "Invalid session code")
		return
	}

	// Reply first so the joiner sees session_joined before anyone reacts
	// to the device_connected fan-out.
	h.send(c, protocol.TypeSessionJoined, protocol.SessionJoinedPayload{
		SessionID: id,
		Devices:   snap.Devices,
		Groups:    snap.Groups,
	}, id)

	h.fanToSession(snap, p.DeviceID, protocol.TypeDeviceConnected, protocol.DeviceConnectedPayload{Device: member})

	h.log.Info().
		Str(log.FieldSessionID, id).
		Str(log.FieldDeviceID, p.DeviceID).
		Str(log.FieldUsername, p.Username).
		Bool("rejoined", !wasNew).
		Msg("device joined session")
}

// handleSessionLeave is a graceful exit: the same flow as a dropped
// connection, except the connection and the directory entry live on.
func (h *Hub) handleSessionLeave(c Conn, env *protocol.Envelope) {
	if env.SessionID == "" || env.DeviceID == "" {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	h.log.Info().
		Str(log.FieldSessionID, env.SessionID).
		Str(log.FieldDeviceID, env.DeviceID).
		Msg("device left session")
	h.leaveSession(env.SessionID, env.DeviceID)
}

// leaveSession runs the member-exit flow shared by session_leave and the
// last-connection disconnect path. Device entries are never deleted
// here; entry cleanup belongs to the sweeper alone.
func (h *Hub) leaveSession(sessionID, deviceID string) {
	now := h.now()
	snap, ok := h.store.Get(sessionID, now)
	if !ok {
		return
	}
	if snap.CreatedBy == deviceID {
		h.endSession(sessionID, deviceID)
		return
	}

	onlineLeft, ok := h.store.MarkOffline(sessionID, deviceID, now)
	if !ok {
		return
	}
	h.dir.SetSession(deviceID, "")
	if snap, ok := h.store.Get(sessionID, now); ok {
		h.fanToSession(snap, deviceID, protocol.TypeDeviceDisconnected, protocol.DeviceDisconnectedPayload{DeviceID: deviceID})
	}
	if onlineLeft == 0 {
		h.removeEmptySession(sessionID)
	}
}

// endSession is the owner-left eviction. Every remaining member gets a
// session_expired frame followed by a normal close carrying the reason,
// on each of its connections. Device entries survive for the grace
// window; only their session link is cleared.
func (h *Hub) endSession(sessionID, ownerID string) {
	snap, ok := h.store.Remove(sessionID)
	if !ok {
		return
	}
	frame, encOK := h.encode(protocol.TypeSessionExpired, struct{}{}, sessionID, "")

	delivered, skipped := 0, 0
	for _, m := range snap.Devices {
		if m.ID == ownerID {
			continue
		}
		reached := false
		for _, connID := range h.dir.ConnIDs(m.ID) {
			c, open := h.conns[connID]
			if !open {
				continue
			}
			if encOK && c.TrySend(frame) {
				metrics.IncFrameOut(protocol.TypeSessionExpired)
				reached = true
			}
			c.CloseWithReason(websocket.CloseNormalClosure, ownerLeftReason)
		}
		if reached {
			delivered++
		} else {
			skipped++
		}
	}
	metrics.AddFanout("session", delivered, skipped)

	h.dir.ClearSessionAll(sessionID)
	metrics.IncSessionExpired(reasonOwnerLeft)
	h.log.Info().
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldDeviceID, ownerID).
		Int(log.FieldDelivered, delivered).
		Msg("session ended, owner left")
}

// expireSession removes a session past its TTL and tells each member
// exactly once. Connections stay open; an expired session is not a
// transport failure.
func (h *Hub) expireSession(sessionID string) {
	snap, ok := h.store.Remove(sessionID)
	if !ok {
		return
	}
	frame, encOK := h.encode(protocol.TypeSessionExpired, struct{}{}, sessionID, "")

	delivered, skipped := 0, 0
	if encOK {
		for _, m := range snap.Devices {
			if h.deliverFrame(m.ID, frame, protocol.TypeSessionExpired) {
				delivered++
			} else {
				skipped++
			}
		}
	}
	metrics.AddFanout("session", delivered, skipped)

	h.dir.ClearSessionAll(sessionID)
	metrics.IncSessionExpired(reasonTTL)
	h.log.Info().
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldSessionCode, snap.Code).
		Int(log.FieldDelivered, delivered).
		Msg("session expired")
}

// removeEmptySession deletes a session whose last online member left.
// Nobody is connected, so there is nothing to fan out.
func (h *Hub) removeEmptySession(sessionID string) {
	if _, ok := h.store.Remove(sessionID); !ok {
		return
	}
	h.dir.ClearSessionAll(sessionID)
	metrics.IncSessionExpired(reasonEmptied)
	h.log.Info().Str(log.FieldSessionID, sessionID).Msg("session removed, no online members")
}

// scheduleNearby queues the automatic discovery broadcast after session
// creation. The session_created reply is already in the sender's queue,
// so it stays ahead of the announcement even with a zero delay.
func (h *Hub) scheduleNearby(sessionID string) {
	if h.nearbyDelay == 0 {
		h.autoNearby(sessionID)
		return
	}
	time.AfterFunc(h.nearbyDelay, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.closed {
			return
		}
		h.autoNearby(sessionID)
		h.syncGauges()
	})
}

// autoNearby re-reads the session, which may have died during the
// delay, then runs the nearby fan-out and acks the owner.
func (h *Hub) autoNearby(sessionID string) {
	snap, ok := h.store.Get(sessionID, h.now())
	if !ok {
		return
	}
	count := h.fanToNearby(snap, snap.CreatedBy)
	frame, ok := h.encode(protocol.TypeNearbyBroadcastSent, protocol.NearbyBroadcastSentPayload{NotificationsSent: count}, snap.ID, "")
	if ok {
		h.deliverFrame(snap.CreatedBy, frame, protocol.TypeNearbyBroadcastSent)
	}
}
