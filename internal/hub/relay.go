// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package hub

import (
	"errors"

	"github.com/flowlink/flowlink/internal/domain/session/model"
	"github.com/flowlink/flowlink/internal/domain/session/store"
	"github.com/flowlink/flowlink/internal/log"
	"github.com/flowlink/flowlink/internal/metrics"
	"github.com/flowlink/flowlink/internal/protocol"
)

// handleSignal relays a WebRTC negotiation frame between two session
// members. The data blob is forwarded byte for byte under the same
// message type; the hub only rewraps the routing fields.
func (h *Hub) handleSignal(c Conn, env *protocol.Envelope) {
	if env.SessionID == "" || env.DeviceID == "" {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	var p protocol.SignalPayload
	if err := env.ParsePayload(&p); err != nil {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	if p.ToDevice == "" {
		metrics.IncProtocolError("missing_fields")
		h.sendError(c, missingFieldsMessage([]string{"toDevice"}))
		return
	}
	if _, ok := h.store.Get(env.SessionID, h.now()); !ok {
		metrics.IncProtocolError("invalid_code")
		h.sendError(c, "Invalid session code")
		return
	}

	frame, ok := h.encode(env.Type, protocol.SignalRelayPayload{
		FromDevice: env.DeviceID,
		ToDevice:   p.ToDevice,
		Data:       p.Data,
	}, env.SessionID, "")
	if !ok {
		return
	}
	if !h.deliverFrame(p.ToDevice, frame, env.Type) {
		metrics.IncProtocolError("target_offline")
		h.sendError(c, "Target device not connected")
		return
	}
	h.log.Debug().
		Str(log.FieldSessionID, env.SessionID).
		Str(log.FieldMsgType, env.Type).
		Str(log.FieldDeviceID, env.DeviceID).
		Str(log.FieldTarget, p.ToDevice).
		Msg("signal relayed")
}

// handleIntentSend delivers an application intent to one session member
// and acks the sender. The intent body is opaque to the hub.
func (h *Hub) handleIntentSend(c Conn, env *protocol.Envelope) {
	if env.SessionID == "" || env.DeviceID == "" {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	var p protocol.IntentSendPayload
	if err := env.ParsePayload(&p); err != nil {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	var missing []string
	if p.TargetDevice == "" {
		missing = append(missing, "targetDevice")
	}
	if len(p.Intent) == 0 {
		missing = append(missing, "intent")
	}
	if len(missing) > 0 {
		metrics.IncProtocolError("missing_fields")
		h.sendError(c, missingFieldsMessage(missing))
		return
	}

	snap, ok := h.store.Get(env.SessionID, h.now())
	if !ok {
		metrics.IncProtocolError("invalid_code")
		h.sendError(c, "Invalid session code")
		return
	}
	m, ok := findMember(snap, p.TargetDevice)
	if !ok || !m.Online {
		metrics.IncProtocolError("target_offline")
		h.sendError(c, "Target device not connected")
		return
	}

	frame, ok := h.encode(protocol.TypeIntentReceived, protocol.IntentReceivedPayload{
		Intent:       p.Intent,
		SourceDevice: env.DeviceID,
	}, env.SessionID, "")
	if !ok {
		return
	}
	if !h.deliverFrame(p.TargetDevice, frame, protocol.TypeIntentReceived) {
		metrics.IncProtocolError("target_offline")
		h.sendError(c, "Target device not connected")
		return
	}
	metrics.AddFanout("unicast", 1, 0)

	h.send(c, protocol.TypeIntentSent, protocol.IntentSentPayload{TargetDevice: p.TargetDevice}, env.SessionID)
}

// handleClipboardBroadcast mirrors the sender's clipboard to every other
// online member. The sender never receives its own clipboard back.
func (h *Hub) handleClipboardBroadcast(c Conn, env *protocol.Envelope) {
	if env.SessionID == "" || env.DeviceID == "" {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	var p protocol.ClipboardPayload
	if err := env.ParsePayload(&p); err != nil {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	if len(p.Clipboard) == 0 {
		metrics.IncProtocolError("missing_fields")
		h.sendError(c, missingFieldsMessage([]string{"clipboard"}))
		return
	}

	snap, ok := h.store.Get(env.SessionID, h.now())
	if !ok {
		metrics.IncProtocolError("invalid_code")
		h.sendError(c, "Invalid session code")
		return
	}
	n := h.fanToSession(snap, env.DeviceID, protocol.TypeClipboardSync, protocol.ClipboardPayload{Clipboard: p.Clipboard})

	h.log.Debug().
		Str(log.FieldSessionID, env.SessionID).
		Str(log.FieldDeviceID, env.DeviceID).
		Int(log.FieldDelivered, n).
		Msg("clipboard broadcast")
}

// handleStatusUpdate merges the provided fields into the sender's
// membership and fans the updated record to the other members. Absent
// fields keep their current values.
func (h *Hub) handleStatusUpdate(c Conn, env *protocol.Envelope) {
	if env.SessionID == "" || env.DeviceID == "" {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	var p protocol.StatusUpdatePayload
	if err := env.ParsePayload(&p); err != nil {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}

	now := h.now()
	var updated model.DeviceMembership
	err := h.store.Update(env.SessionID, now, func(s *model.Session) error {
		m, ok := s.Devices[env.DeviceID]
		if !ok {
			return store.ErrUnknownMember
		}
		if p.Online != nil {
			m.Online = *p.Online
		}
		if p.Permissions != nil {
			m.Permissions = *p.Permissions
		}
		m.LastSeen = now.UnixMilli()
		updated = *m
		return nil
	})
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		metrics.IncProtocolError("invalid_code")
		h.sendError(c, "Invalid session code")
		return
	case errors.Is(err, store.ErrUnknownMember):
		metrics.IncProtocolError("not_found")
		h.sendError(c, "Target device not connected")
		return
	case err != nil:
		h.log.Error().Err(err).Str(log.FieldSessionID, env.SessionID).Msg("status update failed")
		return
	}

	if snap, ok := h.store.Get(env.SessionID, now); ok {
		h.fanToSession(snap, env.DeviceID, protocol.TypeDeviceStatusUpdate, protocol.StatusUpdateEventPayload{
			DeviceID: env.DeviceID,
			Device:   updated,
		})
	}
}

// findMember looks a device up in a session snapshot.
func findMember(snap model.SessionSnapshot, deviceID string) (model.DeviceMembership, bool) {
	for _, m := range snap.Devices {
		if m.ID == deviceID {
			return m, true
		}
	}
	return model.DeviceMembership{}, false
}
