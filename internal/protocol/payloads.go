// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package protocol

import (
	"encoding/json"

	"github.com/flowlink/flowlink/internal/domain/session/model"
)

// RegisterPayload carries the identity for device_register and
// session_create. session_join adds the code.
type RegisterPayload struct {
	DeviceID   string           `json:"deviceId"`
	DeviceName string           `json:"deviceName"`
	DeviceType model.DeviceType `json:"deviceType"`
	Username   string           `json:"username"`
}

// Info converts the payload into the domain identity record.
func (p RegisterPayload) Info() model.DeviceInfo {
	return model.DeviceInfo{
		DeviceID:   p.DeviceID,
		DeviceName: p.DeviceName,
		DeviceType: p.DeviceType,
		Username:   p.Username,
	}
}

// MissingFields lists required identity fields that are absent.
func (p RegisterPayload) MissingFields() []string {
	var missing []string
	if p.DeviceID == "" {
		missing = append(missing, "deviceId")
	}
	if p.DeviceName == "" {
		missing = append(missing, "deviceName")
	}
	if p.DeviceType == "" {
		missing = append(missing, "deviceType")
	}
	if p.Username == "" {
		missing = append(missing, "username")
	}
	return missing
}

// DeviceRegisteredPayload acknowledges a device_register.
type DeviceRegisteredPayload struct {
	DeviceID   string `json:"deviceId"`
	Username   string `json:"username"`
	Registered bool   `json:"registered"`
}

// SessionCreatedPayload acknowledges a session_create.
type SessionCreatedPayload struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
	ExpiresAt int64  `json:"expiresAt"`
}

// JoinPayload is the session_join request.
type JoinPayload struct {
	Code string `json:"code"`
	RegisterPayload
}

// SessionJoinedPayload answers a successful session_join with the full
// session state.
type SessionJoinedPayload struct {
	SessionID string                   `json:"sessionId"`
	Devices   []model.DeviceMembership `json:"devices"`
	Groups    []model.Group            `json:"groups"`
}

// DeviceConnectedPayload announces a joiner to the other members.
type DeviceConnectedPayload struct {
	Device model.DeviceMembership `json:"device"`
}

// DeviceDisconnectedPayload announces a member going offline.
type DeviceDisconnectedPayload struct {
	DeviceID string `json:"deviceId"`
}

// StatusUpdatePayload is the client-sent partial membership update. Absent
// fields leave the membership untouched.
type StatusUpdatePayload struct {
	Online      *bool              `json:"online,omitempty"`
	Permissions *model.Permissions `json:"permissions,omitempty"`
}

// StatusUpdateEventPayload is the fan-out form of a status update.
type StatusUpdateEventPayload struct {
	DeviceID string                 `json:"deviceId"`
	Device   model.DeviceMembership `json:"device"`
}

// IntentSendPayload targets one in-session device with an opaque intent.
type IntentSendPayload struct {
	TargetDevice string          `json:"targetDevice"`
	Intent       json.RawMessage `json:"intent"`
}

// IntentReceivedPayload delivers an intent to its target.
type IntentReceivedPayload struct {
	Intent       json.RawMessage `json:"intent"`
	SourceDevice string          `json:"sourceDevice"`
}

// IntentSentPayload acknowledges an intent_send to the sender.
type IntentSentPayload struct {
	TargetDevice string `json:"targetDevice"`
}

// ClipboardPayload carries opaque clipboard contents, both directions.
type ClipboardPayload struct {
	Clipboard json.RawMessage `json:"clipboard"`
}

// SignalPayload is the inbound webrtc_offer/answer/ice_candidate shape.
// Data is relayed byte-for-byte.
type SignalPayload struct {
	ToDevice string          `json:"toDevice"`
	Data     json.RawMessage `json:"data"`
}

// SignalRelayPayload is the outbound relay shape.
type SignalRelayPayload struct {
	FromDevice string          `json:"fromDevice"`
	ToDevice   string          `json:"toDevice"`
	Data       json.RawMessage `json:"data"`
}

// GroupCreatePayload creates a device group inside a session.
type GroupCreatePayload struct {
	Name      string   `json:"name"`
	DeviceIDs []string `json:"deviceIds"`
	Color     string   `json:"color,omitempty"`
}

// GroupUpdatePayload partially updates a group. Nil fields stay untouched.
type GroupUpdatePayload struct {
	GroupID   string    `json:"groupId"`
	Name      *string   `json:"name,omitempty"`
	DeviceIDs *[]string `json:"deviceIds,omitempty"`
	Color     *string   `json:"color,omitempty"`
}

// GroupPayload carries a full group snapshot (group_created/group_updated).
type GroupPayload struct {
	Group model.Group `json:"group"`
}

// GroupDeletePayload identifies the group to delete; GroupDeletedPayload
// mirrors it on the fan-out.
type GroupDeletePayload struct {
	GroupID string `json:"groupId"`
}

// GroupDeletedPayload announces a deleted group to the session.
type GroupDeletedPayload struct {
	GroupID string `json:"groupId"`
}

// GroupBroadcastPayload fans an opaque intent out to a group.
type GroupBroadcastPayload struct {
	GroupID string          `json:"groupId"`
	Intent  json.RawMessage `json:"intent"`
}

// GroupBroadcastSentPayload acknowledges a group_broadcast to the sender.
type GroupBroadcastSentPayload struct {
	GroupID        string `json:"groupId"`
	DevicesReached int    `json:"devicesReached"`
	TotalDevices   int    `json:"totalDevices"`
}

// InvitationSendPayload asks the hub to deliver an opaque invitation to a
// username or literal device id.
type InvitationSendPayload struct {
	TargetIdentifier string          `json:"targetIdentifier"`
	Invitation       json.RawMessage `json:"invitation"`
}

// InvitationDeliverPayload is the server-to-client invitation delivery.
type InvitationDeliverPayload struct {
	Invitation json.RawMessage `json:"invitation"`
}

// InvitationSentPayload acknowledges an invitation to its sender.
type InvitationSentPayload struct {
	TargetIdentifier string `json:"targetIdentifier"`
	TargetUsername   string `json:"targetUsername"`
	TargetDeviceName string `json:"targetDeviceName"`
}

// InvitationResponsePayload is forwarded verbatim to the session owner.
type InvitationResponsePayload struct {
	Accepted          bool   `json:"accepted"`
	InviteeUsername   string `json:"inviteeUsername"`
	InviteeDeviceName string `json:"inviteeDeviceName"`
}

// NearbySession describes a discoverable session in a nearby broadcast.
type NearbySession struct {
	SessionID         string `json:"sessionId"`
	SessionCode       string `json:"sessionCode"`
	CreatorUsername   string `json:"creatorUsername"`
	CreatorDeviceName string `json:"creatorDeviceName"`
	DeviceCount       int    `json:"deviceCount"`
}

// NearbyBroadcastPayload is the server-to-client nearby announcement.
type NearbyBroadcastPayload struct {
	NearbySession NearbySession `json:"nearbySession"`
}

// NearbyBroadcastSentPayload acknowledges a nearby broadcast to its trigger.
type NearbyBroadcastSentPayload struct {
	NotificationsSent int `json:"notificationsSent"`
}

// ErrorPayload carries a human-readable failure message.
type ErrorPayload struct {
	Message string `json:"message"`
}
