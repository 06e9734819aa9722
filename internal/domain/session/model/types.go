// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package model defines the hub's domain records: sessions, per-session
// device memberships, device groups and the global device directory entries.
// All timestamps are integer milliseconds since the Unix epoch, matching the
// wire protocol.
package model

import (
	"sort"
	"time"
)

// DeviceType is the client-reported device class. Unknown values are carried
// through unchanged; the hub never rejects a type it does not recognise.
type DeviceType string

const (
	DevicePhone   DeviceType = "phone"
	DeviceLaptop  DeviceType = "laptop"
	DeviceDesktop DeviceType = "desktop"
	DeviceTablet  DeviceType = "tablet"
)

// Permissions are the per-membership capability flags.
type Permissions struct {
	Files        bool `json:"files"`
	Media        bool `json:"media"`
	Prompts      bool `json:"prompts"`
	Clipboard    bool `json:"clipboard"`
	RemoteBrowse bool `json:"remote_browse"`
}

// DefaultPermissions returns the capability set granted to a freshly joined
// device. Remote browsing stays opt-in.
func DefaultPermissions() Permissions {
	return Permissions{
		Files:        true,
		Media:        true,
		Prompts:      true,
		Clipboard:    true,
		RemoteBrowse: false,
	}
}

// DeviceMembership is a device's state within one session.
type DeviceMembership struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Username    string      `json:"username"`
	Type        DeviceType  `json:"type"`
	Online      bool        `json:"online"`
	JoinedAt    int64       `json:"joinedAt"`
	LastSeen    int64       `json:"lastSeen"`
	Permissions Permissions `json:"permissions"`
}

// Group is a named subset of a session's members.
type Group struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	CreatedBy string   `json:"createdBy"`
	CreatedAt int64    `json:"createdAt"`
	Color     string   `json:"color"`
	DeviceIDs []string `json:"deviceIds"`
}

// Clone returns a deep copy of the group.
func (g *Group) Clone() Group {
	out := *g
	out.DeviceIDs = append([]string(nil), g.DeviceIDs...)
	return out
}

// Session is a short-lived grouping of devices identified by an unguessable
// id and a shareable 6-digit code.
type Session struct {
	ID        string
	Code      string
	CreatedBy string
	CreatedAt int64
	ExpiresAt int64
	Devices   map[string]*DeviceMembership
	Groups    map[string]*Group
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return now.UnixMilli() >= s.ExpiresAt
}

// OnlineCount returns the number of members currently marked online.
func (s *Session) OnlineCount() int {
	n := 0
	for _, m := range s.Devices {
		if m.Online {
			n++
		}
	}
	return n
}

// DeviceList returns the memberships ordered by join time, then id. The
// returned slice holds copies.
func (s *Session) DeviceList() []DeviceMembership {
	out := make([]DeviceMembership, 0, len(s.Devices))
	for _, m := range s.Devices {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt != out[j].JoinedAt {
			return out[i].JoinedAt < out[j].JoinedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GroupList returns the groups ordered by creation time, then id. The
// returned slice holds deep copies.
func (s *Session) GroupList() []Group {
	out := make([]Group, 0, len(s.Groups))
	for _, g := range s.Groups {
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SessionSnapshot is the wire representation of a session used by
// session_joined replies and the debug dump.
type SessionSnapshot struct {
	ID        string             `json:"id"`
	Code      string             `json:"code"`
	CreatedBy string             `json:"createdBy"`
	CreatedAt int64              `json:"createdAt"`
	ExpiresAt int64              `json:"expiresAt"`
	Devices   []DeviceMembership `json:"devices"`
	Groups    []Group            `json:"groups"`
}

// Snapshot deep-copies the session into its wire representation.
func (s *Session) Snapshot() SessionSnapshot {
	return SessionSnapshot{
		ID:        s.ID,
		Code:      s.Code,
		CreatedBy: s.CreatedBy,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		Devices:   s.DeviceList(),
		Groups:    s.GroupList(),
	}
}

// DeviceEntry is a device's global presence, independent of any session.
// Open connections are tracked by the hub's connection registry, not here;
// Online mirrors whether at least one connection is open.
type DeviceEntry struct {
	DeviceID  string     `json:"deviceId"`
	Username  string     `json:"username"`
	Name      string     `json:"name"`
	Type      DeviceType `json:"type"`
	Online    bool       `json:"online"`
	LastSeen  int64      `json:"lastSeen"`
	SessionID string     `json:"sessionId,omitempty"`
}

// DeviceInfo is the client-supplied identity carried by device_register,
// session_create and session_join payloads.
type DeviceInfo struct {
	DeviceID   string     `json:"deviceId"`
	DeviceName string     `json:"deviceName"`
	DeviceType DeviceType `json:"deviceType"`
	Username   string     `json:"username"`
}

// NewMembership builds a membership for a joining device with default
// permissions.
func NewMembership(info DeviceInfo, now time.Time) *DeviceMembership {
	ms := now.UnixMilli()
	return &DeviceMembership{
		ID:          info.DeviceID,
		Name:        info.DeviceName,
		Username:    info.Username,
		Type:        info.DeviceType,
		Online:      true,
		JoinedAt:    ms,
		LastSeen:    ms,
		Permissions: DefaultPermissions(),
	}
}
