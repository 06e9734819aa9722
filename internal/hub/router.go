// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package hub

import (
	"github.com/flowlink/flowlink/internal/domain/session/model"
	"github.com/flowlink/flowlink/internal/metrics"
	"github.com/flowlink/flowlink/internal/protocol"
)

// deliverFrame sends a prebuilt frame to any one open connection of the
// device. When no connection accepts it, the directory entry is flagged
// offline and the delivery is reported as failed; fan-out callers skip
// and continue.
func (h *Hub) deliverFrame(deviceID string, frame []byte, msgType string) bool {
	for _, connID := range h.dir.ConnIDs(deviceID) {
		c, ok := h.conns[connID]
		if !ok {
			continue
		}
		if c.TrySend(frame) {
			metrics.IncFrameOut(msgType)
			return true
		}
	}
	h.dir.MarkOffline(deviceID, h.now())
	return false
}

// hasOpenConn reports whether the device has at least one registered
// connection right now.
func (h *Hub) hasOpenConn(deviceID string) bool {
	for _, connID := range h.dir.ConnIDs(deviceID) {
		if _, ok := h.conns[connID]; ok {
			return true
		}
	}
	return false
}

// fanToSession delivers one message to every online member except
// exclude, best effort. It returns how many members got the frame.
func (h *Hub) fanToSession(snap model.SessionSnapshot, exclude, msgType string, payload any) int {
	frame, ok := h.encode(msgType, payload, snap.ID, "")
	if !ok {
		return 0
	}
	delivered, skipped := 0, 0
	for _, m := range snap.Devices {
		if m.ID == exclude || !m.Online {
			continue
		}
		if h.deliverFrame(m.ID, frame, msgType) {
			delivered++
		} else {
			skipped++
		}
	}
	metrics.AddFanout("session", delivered, skipped)
	return delivered
}

// nearbyPayload builds the discovery announcement for a session.
func nearbyPayload(snap model.SessionSnapshot) protocol.NearbyBroadcastPayload {
	ns := protocol.NearbySession{
		SessionID:   snap.ID,
		SessionCode: snap.Code,
		DeviceCount: len(snap.Devices),
	}
	for _, m := range snap.Devices {
		if m.ID == snap.CreatedBy {
			ns.CreatorUsername = m.Username
			ns.CreatorDeviceName = m.Name
			break
		}
	}
	return protocol.NearbyBroadcastPayload{NearbySession: ns}
}

// fanToNearby announces the session to every online device that is
// neither the sender nor already a member. It returns the number of
// devices notified.
func (h *Hub) fanToNearby(snap model.SessionSnapshot, sender string) int {
	frame, ok := h.encode(protocol.TypeNearbySessionBroadcast, nearbyPayload(snap), snap.ID, "")
	if !ok {
		return 0
	}
	members := make(map[string]struct{}, len(snap.Devices))
	for _, m := range snap.Devices {
		members[m.ID] = struct{}{}
	}
	delivered, skipped := 0, 0
	for _, e := range h.dir.All() {
		if !e.Online || e.DeviceID == sender {
			continue
		}
		if _, isMember := members[e.DeviceID]; isMember {
			continue
		}
		if h.deliverFrame(e.DeviceID, frame, protocol.TypeNearbySessionBroadcast) {
			delivered++
		} else {
			skipped++
		}
	}
	metrics.AddFanout("nearby", delivered, skipped)
	return delivered
}
