// SPDX-License-Identifier: MIT

package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMembershipDefaults(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	m := NewMembership(DeviceInfo{
		DeviceID:   "dev-1",
		DeviceName: "Alice's Phone",
		DeviceType: DevicePhone,
		Username:   "alice",
	}, now)

	assert.Equal(t, "dev-1", m.ID)
	assert.Equal(t, "Alice's Phone", m.Name)
	assert.Equal(t, "alice", m.Username)
	assert.Equal(t, DevicePhone, m.Type)
	assert.True(t, m.Online)
	assert.Equal(t, now.UnixMilli(), m.JoinedAt)
	assert.Equal(t, now.UnixMilli(), m.LastSeen)

	assert.True(t, m.Permissions.Files)
	assert.True(t, m.Permissions.Media)
	assert.True(t, m.Permissions.Prompts)
	assert.True(t, m.Permissions.Clipboard)
	assert.False(t, m.Permissions.RemoteBrowse, "remote browse must stay opt-in")
}

func TestPermissionsWireFormat(t *testing.T) {
	data, err := json.Marshal(DefaultPermissions())
	require.NoError(t, err)

	var keys map[string]bool
	require.NoError(t, json.Unmarshal(data, &keys))
	for _, k := range []string{"files", "media", "prompts", "clipboard", "remote_browse"} {
		_, ok := keys[k]
		assert.True(t, ok, "permissions JSON must carry key %q", k)
	}
}

func TestSessionExpired(t *testing.T) {
	created := time.UnixMilli(1_700_000_000_000)
	s := &Session{
		ID:        "s1",
		CreatedAt: created.UnixMilli(),
		ExpiresAt: created.Add(time.Hour).UnixMilli(),
	}

	assert.False(t, s.Expired(created))
	assert.False(t, s.Expired(created.Add(59*time.Minute)))
	assert.True(t, s.Expired(created.Add(time.Hour)))
	assert.True(t, s.Expired(created.Add(2*time.Hour)))
}

func TestSessionSnapshotOrdering(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	s := &Session{
		ID:      "s1",
		Code:    "123456",
		Devices: map[string]*DeviceMembership{},
		Groups:  map[string]*Group{},
	}
	s.Devices["c"] = &DeviceMembership{ID: "c", JoinedAt: now.UnixMilli() + 2}
	s.Devices["a"] = &DeviceMembership{ID: "a", JoinedAt: now.UnixMilli()}
	s.Devices["b"] = &DeviceMembership{ID: "b", JoinedAt: now.UnixMilli() + 1}
	s.Groups["g2"] = &Group{ID: "g2", CreatedAt: now.UnixMilli() + 1}
	s.Groups["g1"] = &Group{ID: "g1", CreatedAt: now.UnixMilli()}

	snap := s.Snapshot()
	require.Len(t, snap.Devices, 3)
	assert.Equal(t, "a", snap.Devices[0].ID)
	assert.Equal(t, "b", snap.Devices[1].ID)
	assert.Equal(t, "c", snap.Devices[2].ID)
	require.Len(t, snap.Groups, 2)
	assert.Equal(t, "g1", snap.Groups[0].ID)
	assert.Equal(t, "g2", snap.Groups[1].ID)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := &Session{
		ID: "s1",
		Devices: map[string]*DeviceMembership{
			"a": {ID: "a", Name: "before"},
		},
		Groups: map[string]*Group{
			"g": {ID: "g", DeviceIDs: []string{"a"}},
		},
	}

	snap := s.Snapshot()
	s.Devices["a"].Name = "after"
	s.Groups["g"].DeviceIDs[0] = "mutated"

	assert.Equal(t, "before", snap.Devices[0].Name)
	assert.Equal(t, "a", snap.Groups[0].DeviceIDs[0])
}

func TestOnlineCount(t *testing.T) {
	s := &Session{Devices: map[string]*DeviceMembership{
		"a": {ID: "a", Online: true},
		"b": {ID: "b", Online: false},
		"c": {ID: "c", Online: true},
	}}
	assert.Equal(t, 2, s.OnlineCount())
}

func TestNewSessionCodeShape(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := NewSessionCode()
		require.NoError(t, err)
		assert.True(t, IsCode(code), "code %q must be 6 decimal digits", code)
	}
}

func TestNewSessionIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		assert.False(t, seen[id], "session id %q repeated", id)
		seen[id] = true
	}
}

func TestNextGroupColor(t *testing.T) {
	first := NextGroupColor(0)
	assert.NotEmpty(t, first)
	assert.Equal(t, first, NextGroupColor(len(groupPalette)), "palette must wrap")
	assert.NotEqual(t, first, NextGroupColor(1))
	assert.NotEmpty(t, NextGroupColor(-3))
}
