// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package hub

import (
	"fmt"

	"github.com/flowlink/flowlink/internal/domain/session/model"
	"github.com/flowlink/flowlink/internal/log"
	"github.com/flowlink/flowlink/internal/metrics"
	"github.com/flowlink/flowlink/internal/protocol"
)

// handleInvitation resolves the target identifier, username first and
// literal device id second, and forwards the invitation to exactly one
// of the target's connections.
func (h *Hub) handleInvitation(c Conn, env *protocol.Envelope) {
	if env.DeviceID == "" {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	var p protocol.InvitationSendPayload
	if err := env.ParsePayload(&p); err != nil {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	var missing []string
	if p.TargetIdentifier == "" {
		missing = append(missing, "targetIdentifier")
	}
	if len(p.Invitation) == 0 {
		missing = append(missing, "invitation")
	}
	if len(missing) > 0 {
		metrics.IncProtocolError("missing_fields")
		h.sendError(c, missingFieldsMessage(missing))
		return
	}

	target, ok := h.resolveInvitee(env.DeviceID, p.TargetIdentifier)
	if !ok {
		metrics.IncProtocolError("user_offline")
		h.sendError(c, fmt.Sprintf("User %q not found or not online", p.TargetIdentifier))
		return
	}

	frame, ok := h.encode(protocol.TypeSessionInvitation, protocol.InvitationDeliverPayload{Invitation: p.Invitation}, env.SessionID, "")
	if !ok {
		return
	}
	if !h.deliverFrame(target.DeviceID, frame, protocol.TypeSessionInvitation) {
		metrics.IncProtocolError("user_offline")
		h.sendError(c, fmt.Sprintf("User %q not found or not online", p.TargetIdentifier))
		return
	}
	metrics.AddFanout("unicast", 1, 0)

	h.send(c, protocol.TypeInvitationSent, protocol.InvitationSentPayload{
		TargetIdentifier: p.TargetIdentifier,
		TargetUsername:   target.Username,
		TargetDeviceName: target.Name,
	}, env.SessionID)

	h.log.Info().
		Str(log.FieldDeviceID, env.DeviceID).
		Str(log.FieldTarget, target.DeviceID).
		Str(log.FieldUsername, target.Username).
		Msg("invitation sent")
}

// resolveInvitee maps a target identifier to a reachable device. A
// username match never resolves to the sender's own device; a literal
// device id is taken as-is.
func (h *Hub) resolveInvitee(senderID, ident string) (model.DeviceEntry, bool) {
	for _, e := range h.dir.FindByUsername(ident) {
		if e.DeviceID == senderID {
			continue
		}
		if h.hasOpenConn(e.DeviceID) {
			return e, true
		}
	}
	if e, ok := h.dir.Get(ident); ok && h.hasOpenConn(e.DeviceID) {
		return e, true
	}
	return model.DeviceEntry{}, false
}

// handleInvitationResponse forwards the accept or decline, payload
// untouched, to the session owner.
func (h *Hub) handleInvitationResponse(c Conn, env *protocol.Envelope) {
	if env.SessionID == "" || env.DeviceID == "" || len(env.Payload) == 0 {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}

	snap, ok := h.store.Get(env.SessionID, h.now())
	if !ok {
		metrics.IncProtocolError("invalid_code")
		h.sendError(c, "Invalid session code")
		return
	}

	frame, ok := h.encode(protocol.TypeInvitationResponse, env.Payload, env.SessionID, env.DeviceID)
	if !ok {
		return
	}
	if !h.deliverFrame(snap.CreatedBy, frame, protocol.TypeInvitationResponse) {
		metrics.IncProtocolError("target_offline")
		h.sendError(c, "Target device not connected")
		return
	}
	metrics.AddFanout("unicast", 1, 0)

	h.log.Info().
		Str(log.FieldSessionID, env.SessionID).
		Str(log.FieldDeviceID, env.DeviceID).
		Str(log.FieldTarget, snap.CreatedBy).
		Msg("invitation response forwarded")
}

// handleNearbyBroadcast announces the sender's session to every online
// device not already in it and reports how many were notified.
func (h *Hub) handleNearbyBroadcast(c Conn, env *protocol.Envelope) {
	if env.SessionID == "" || env.DeviceID == "" {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}

	snap, ok := h.store.Get(env.SessionID, h.now())
	if !ok {
		metrics.IncProtocolError("invalid_code")
		h.sendError(c, "Invalid session code")
		return
	}

	count := h.fanToNearby(snap, env.DeviceID)
	h.send(c, protocol.TypeNearbyBroadcastSent, protocol.NearbyBroadcastSentPayload{NotificationsSent: count}, env.SessionID)

	h.log.Info().
		Str(log.FieldSessionID, env.SessionID).
		Str(log.FieldDeviceID, env.DeviceID).
		Int(log.FieldDelivered, count).
		Msg("nearby broadcast")
}
