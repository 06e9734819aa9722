// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package hub

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/flowlink/flowlink/internal/domain/session/model"
	"github.com/flowlink/flowlink/internal/domain/session/store"
	"github.com/flowlink/flowlink/internal/log"
	"github.com/flowlink/flowlink/internal/metrics"
	"github.com/flowlink/flowlink/internal/protocol"
)

func (h *Hub) handleGroupCreate(c Conn, env *protocol.Envelope) {
	if env.SessionID == "" || env.DeviceID == "" {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	var p protocol.GroupCreatePayload
	if err := env.ParsePayload(&p); err != nil {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	var missing []string
	if p.Name == "" {
		missing = append(missing, "name")
	}
	if len(p.DeviceIDs) == 0 {
		missing = append(missing, "deviceIds")
	}
	if len(missing) > 0 {
		metrics.IncProtocolError("missing_fields")
		h.sendError(c, missingFieldsMessage(missing))
		return
	}

	now := h.now()
	color := p.Color
	if color == "" {
		color = model.NextGroupColor(h.store.GroupCount(env.SessionID))
	}
	group := model.Group{
		ID:        model.NewGroupID(),
		Name:      p.Name,
		CreatedBy: env.DeviceID,
		CreatedAt: now.UnixMilli(),
		Color:     color,
		DeviceIDs: append([]string(nil), p.DeviceIDs...),
	}

	if !h.putGroup(c, env.SessionID, group, now) {
		return
	}

	// Everyone in the session learns about the group, the creator included.
	if snap, ok := h.store.Get(env.SessionID, now); ok {
		h.fanToSession(snap, "", protocol.TypeGroupCreated, protocol.GroupPayload{Group: group})
	}

	h.log.Info().
		Str(log.FieldSessionID, env.SessionID).
		Str(log.FieldGroupID, group.ID).
		Str(log.FieldDeviceID, env.DeviceID).
		Int("members", len(group.DeviceIDs)).
		Msg("group created")
}

func (h *Hub) handleGroupUpdate(c Conn, env *protocol.Envelope) {
	if env.SessionID == "" || env.DeviceID == "" {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	var p protocol.GroupUpdatePayload
	if err := env.ParsePayload(&p); err != nil {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	if p.GroupID == "" {
		metrics.IncProtocolError("missing_fields")
		h.sendError(c, missingFieldsMessage([]string{"groupId"}))
		return
	}

	now := h.now()
	group, ok := h.lookupGroup(c, env.SessionID, p.GroupID, now)
	if !ok {
		return
	}
	if p.Name != nil {
		group.Name = *p.Name
	}
	if p.DeviceIDs != nil {
		group.DeviceIDs = append([]string(nil), (*p.DeviceIDs)...)
	}
	if p.Color != nil {
		group.Color = *p.Color
	}

	if !h.putGroup(c, env.SessionID, group, now) {
		return
	}

	if snap, ok := h.store.Get(env.SessionID, now); ok {
		h.fanToSession(snap, "", protocol.TypeGroupUpdated, protocol.GroupPayload{Group: group})
	}
}

func (h *Hub) handleGroupDelete(c Conn, env *protocol.Envelope) {
	if env.SessionID == "" || env.DeviceID == "" {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	var p protocol.GroupDeletePayload
	if err := env.ParsePayload(&p); err != nil {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	if p.GroupID == "" {
		metrics.IncProtocolError("missing_fields")
		h.sendError(c, missingFieldsMessage([]string{"groupId"}))
		return
	}

	now := h.now()
	err := h.store.DeleteGroup(env.SessionID, p.GroupID, now)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		metrics.IncProtocolError("invalid_code")
		h.sendError(c, "Invalid session code")
		return
	case errors.Is(err, store.ErrGroupNotFound):
		metrics.IncProtocolError("not_found")
		h.sendError(c, "Group not found")
		return
	case err != nil:
		h.log.Error().Err(err).Str(log.FieldSessionID, env.SessionID).Msg("group delete failed")
		return
	}

	if snap, ok := h.store.Get(env.SessionID, now); ok {
		h.fanToSession(snap, "", protocol.TypeGroupDeleted, protocol.GroupDeletedPayload{GroupID: p.GroupID})
	}

	h.log.Info().
		Str(log.FieldSessionID, env.SessionID).
		Str(log.FieldGroupID, p.GroupID).
		Msg("group deleted")
}

// handleGroupBroadcast delivers an intent to every online group member
// except the sender, with the intent's target_device rewritten per
// recipient. The sender only gets the delivery summary.
func (h *Hub) handleGroupBroadcast(c Conn, env *protocol.Envelope) {
	if env.SessionID == "" || env.DeviceID == "" {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	var p protocol.GroupBroadcastPayload
	if err := env.ParsePayload(&p); err != nil {
		metrics.IncProtocolError("invalid_format")
		h.sendError(c, "Invalid message format")
		return
	}
	var missing []string
	if p.GroupID == "" {
		missing = append(missing, "groupId")
	}
	if len(p.Intent) == 0 {
		missing = append(missing, "intent")
	}
	if len(missing) > 0 {
		metrics.IncProtocolError("missing_fields")
		h.sendError(c, missingFieldsMessage(missing))
		return
	}

	now := h.now()
	snap, ok := h.store.Get(env.SessionID, now)
	if !ok {
		metrics.IncProtocolError("invalid_code")
		h.sendError(c, "Invalid session code")
		return
	}
	group, ok := h.lookupGroup(c, env.SessionID, p.GroupID, now)
	if !ok {
		return
	}

	reached, skipped := 0, 0
	for _, deviceID := range group.DeviceIDs {
		if deviceID == env.DeviceID {
			continue
		}
		m, ok := findMember(snap, deviceID)
		if !ok || !m.Online {
			skipped++
			continue
		}
		frame, ok := h.encode(protocol.TypeIntentReceived, protocol.IntentReceivedPayload{
			Intent:       rewriteTarget(p.Intent, deviceID),
			SourceDevice: env.DeviceID,
		}, env.SessionID, "")
		if !ok {
			skipped++
			continue
		}
		if h.deliverFrame(deviceID, frame, protocol.TypeIntentReceived) {
			reached++
		} else {
			skipped++
		}
	}
	metrics.AddFanout("group", reached, skipped)

	h.send(c, protocol.TypeGroupBroadcastSent, protocol.GroupBroadcastSentPayload{
		GroupID:        p.GroupID,
		DevicesReached: reached,
		TotalDevices:   len(group.DeviceIDs),
	}, env.SessionID)

	h.log.Info().
		Str(log.FieldSessionID, env.SessionID).
		Str(log.FieldGroupID, p.GroupID).
		Int(log.FieldDelivered, reached).
		Int(log.FieldSkipped, skipped).
		Msg("group broadcast")
}

// lookupGroup fetches a group, reporting the appropriate client error
// when the session or the group is gone.
func (h *Hub) lookupGroup(c Conn, sessionID, groupID string, now time.Time) (model.Group, bool) {
	if _, ok := h.store.Get(sessionID, now); !ok {
		metrics.IncProtocolError("invalid_code")
		h.sendError(c, "Invalid session code")
		return model.Group{}, false
	}
	group, ok := h.store.GetGroup(sessionID, groupID, now)
	if !ok {
		metrics.IncProtocolError("not_found")
		h.sendError(c, "Group not found")
		return model.Group{}, false
	}
	return group, true
}

// putGroup writes a group back, translating store errors into client
// replies. Reports whether the write succeeded.
func (h *Hub) putGroup(c Conn, sessionID string, group model.Group, now time.Time) bool {
	err := h.store.PutGroup(sessionID, group, now)
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		metrics.IncProtocolError("invalid_code")
		h.sendError(c, "Invalid session code")
		return false
	case errors.Is(err, store.ErrUnknownMember):
		metrics.IncProtocolError("not_found")
		h.sendError(c, "Device not in session")
		return false
	case err != nil:
		h.log.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("group write failed")
		return false
	}
	return true
}

// rewriteTarget points a group intent at one concrete recipient. Intents
// that are not JSON objects are forwarded untouched.
func rewriteTarget(intent json.RawMessage, deviceID string) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(intent, &obj); err != nil || obj == nil {
		return intent
	}
	id, err := json.Marshal(deviceID)
	if err != nil {
		return intent
	}
	obj["target_device"] = id
	out, err := json.Marshal(obj)
	if err != nil {
		return intent
	}
	return out
}
