// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package protocol defines the JSON wire envelope exchanged between clients
// and the hub, the authoritative message-type list and the typed payloads the
// hub parses. Opaque payload fields (intents, clipboard contents, WebRTC
// signalling data, invitations) stay json.RawMessage end to end.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types, client to server unless noted.
const (
	TypeDeviceRegister   = "device_register"
	TypeDeviceRegistered = "device_registered" // server to client

	TypeSessionCreate  = "session_create"
	TypeSessionCreated = "session_created" // server to client
	TypeSessionJoin    = "session_join"
	TypeSessionJoined  = "session_joined" // server to client
	TypeSessionLeave   = "session_leave"
	TypeSessionExpired = "session_expired" // server to client

	TypeDeviceConnected    = "device_connected"    // server to client
	TypeDeviceDisconnected = "device_disconnected" // server to client
	TypeDeviceStatusUpdate = "device_status_update" // both directions

	TypeIntentSend     = "intent_send"
	TypeIntentReceived = "intent_received" // server to client
	TypeIntentSent     = "intent_sent"     // server to client

	TypeClipboardBroadcast = "clipboard_broadcast"
	TypeClipboardSync      = "clipboard_sync" // server to client

	TypeWebRTCOffer        = "webrtc_offer"         // both directions
	TypeWebRTCAnswer       = "webrtc_answer"        // both directions
	TypeWebRTCICECandidate = "webrtc_ice_candidate" // both directions

	TypeGroupCreate        = "group_create"
	TypeGroupCreated       = "group_created" // server to client
	TypeGroupUpdate        = "group_update"
	TypeGroupUpdated       = "group_updated" // server to client
	TypeGroupDelete        = "group_delete"
	TypeGroupDeleted       = "group_deleted" // server to client
	TypeGroupBroadcast     = "group_broadcast"
	TypeGroupBroadcastSent = "group_broadcast_sent" // server to client

	TypeSessionInvitation  = "session_invitation"  // both directions
	TypeInvitationSent     = "invitation_sent"     // server to client
	TypeInvitationResponse = "invitation_response" // both directions

	TypeNearbySessionBroadcast = "nearby_session_broadcast" // both directions
	TypeNearbyBroadcastSent    = "nearby_broadcast_sent"    // server to client

	TypeError = "error" // server to client
)

var knownTypes = map[string]struct{}{
	TypeDeviceRegister: {}, TypeDeviceRegistered: {},
	TypeSessionCreate: {}, TypeSessionCreated: {},
	TypeSessionJoin: {}, TypeSessionJoined: {},
	TypeSessionLeave: {}, TypeSessionExpired: {},
	TypeDeviceConnected: {}, TypeDeviceDisconnected: {}, TypeDeviceStatusUpdate: {},
	TypeIntentSend: {}, TypeIntentReceived: {}, TypeIntentSent: {},
	TypeClipboardBroadcast: {}, TypeClipboardSync: {},
	TypeWebRTCOffer: {}, TypeWebRTCAnswer: {}, TypeWebRTCICECandidate: {},
	TypeGroupCreate: {}, TypeGroupCreated: {},
	TypeGroupUpdate: {}, TypeGroupUpdated: {},
	TypeGroupDelete: {}, TypeGroupDeleted: {},
	TypeGroupBroadcast: {}, TypeGroupBroadcastSent: {},
	TypeSessionInvitation: {}, TypeInvitationSent: {}, TypeInvitationResponse: {},
	TypeNearbySessionBroadcast: {}, TypeNearbyBroadcastSent: {},
	TypeError: {},
}

// KnownType reports whether t is part of the protocol. Metric labels and
// similar bounded sets should map unknown types to a fixed bucket.
func KnownType(t string) bool {
	_, ok := knownTypes[t]
	return ok
}

// Envelope is the outer frame every message uses. Timestamp is integer
// milliseconds since the Unix epoch.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	DeviceID  string          `json:"deviceId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Decode parses a raw frame into an envelope. A frame that is not a JSON
// object with a non-empty type is malformed.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode envelope: missing type")
	}
	return &env, nil
}

// NewEnvelope builds a server-originated envelope with the payload marshalled
// in place. Marshal failures indicate a programming error and are returned to
// the caller rather than silently swallowed.
func NewEnvelope(msgType string, payload any, now time.Time) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return &Envelope{
		Type:      msgType,
		Payload:   raw,
		Timestamp: now.UnixMilli(),
	}, nil
}

// Encode marshals the envelope into a single JSON frame.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", e.Type, err)
	}
	return data, nil
}

// ParsePayload unmarshals the envelope payload into dst.
func (e *Envelope) ParsePayload(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("parse %s payload: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("parse %s payload: %w", e.Type, err)
	}
	return nil
}
