// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"sort"
	"sync"
	"time"

	"github.com/flowlink/flowlink/internal/domain/session/model"
)

// entryState is a directory entry plus its open connection set. Connection
// handles are opaque ids owned by the transport registry; the directory only
// tracks membership of the set.
type entryState struct {
	entry model.DeviceEntry
	conns map[string]struct{}
}

// Directory is the global device registry, keyed by device id and indexed by
// username. A device may hold several concurrent connections; it is online
// iff at least one is open. Entries survive their last disconnect for a grace
// window so reconnecting clients keep their identity.
type Directory struct {
	mu         sync.RWMutex
	entries    map[string]*entryState
	byUsername map[string]map[string]struct{} // username -> set of device ids
}

// NewDirectory creates an empty device directory.
func NewDirectory() *Directory {
	return &Directory{
		entries:    make(map[string]*entryState),
		byUsername: make(map[string]map[string]struct{}),
	}
}

// Upsert creates or refreshes an entry from client-supplied identity. The
// entry goes online; its connection set is left untouched.
func (d *Directory) Upsert(info model.DeviceInfo, now time.Time) model.DeviceEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.entries[info.DeviceID]
	if !ok {
		st = &entryState{conns: make(map[string]struct{})}
		d.entries[info.DeviceID] = st
		st.entry.DeviceID = info.DeviceID
	}

	if st.entry.Username != info.Username {
		d.dropUsernameLocked(st.entry.Username, info.DeviceID)
		d.addUsernameLocked(info.Username, info.DeviceID)
	}

	st.entry.Username = info.Username
	st.entry.Name = info.DeviceName
	st.entry.Type = info.DeviceType
	st.entry.Online = true
	st.entry.LastSeen = now.UnixMilli()
	return st.entry
}

func (d *Directory) addUsernameLocked(username, deviceID string) {
	if username == "" {
		return
	}
	set, ok := d.byUsername[username]
	if !ok {
		set = make(map[string]struct{})
		d.byUsername[username] = set
	}
	set[deviceID] = struct{}{}
}

func (d *Directory) dropUsernameLocked(username, deviceID string) {
	if username == "" {
		return
	}
	if set, ok := d.byUsername[username]; ok {
		delete(set, deviceID)
		if len(set) == 0 {
			delete(d.byUsername, username)
		}
	}
}

// Attach adds a connection handle to the entry's set and marks it online.
// Unknown devices are ignored; register first.
func (d *Directory) Attach(deviceID, connID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.entries[deviceID]
	if !ok {
		return false
	}
	st.conns[connID] = struct{}{}
	st.entry.Online = true
	st.entry.LastSeen = now.UnixMilli()
	return true
}

// Detach removes a connection handle. When the last one goes, the entry is
// flagged offline but kept; the sweeper deletes it after the grace window.
// The remaining connection count is returned.
func (d *Directory) Detach(deviceID, connID string, now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.entries[deviceID]
	if !ok {
		return 0
	}
	delete(st.conns, connID)
	st.entry.LastSeen = now.UnixMilli()
	if len(st.conns) == 0 {
		st.entry.Online = false
	}
	return len(st.conns)
}

// ConnIDs returns the open connection handles of a device, sorted for
// deterministic delivery order.
func (d *Directory) ConnIDs(deviceID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st, ok := d.entries[deviceID]
	if !ok || len(st.conns) == 0 {
		return nil
	}
	out := make([]string, 0, len(st.conns))
	for id := range st.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Get returns a copy of one entry.
func (d *Directory) Get(deviceID string) (model.DeviceEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st, ok := d.entries[deviceID]
	if !ok {
		return model.DeviceEntry{}, false
	}
	return st.entry, true
}

// FindByUsername returns copies of every entry registered under the username,
// ordered by device id. Multiple devices per username are expected.
func (d *Directory) FindByUsername(username string) []model.DeviceEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	set, ok := d.byUsername[username]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]model.DeviceEntry, 0, len(ids))
	for _, id := range ids {
		if st, ok := d.entries[id]; ok {
			out = append(out, st.entry)
		}
	}
	return out
}

// SetSession points the entry at its current session; empty clears it.
func (d *Directory) SetSession(deviceID, sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if st, ok := d.entries[deviceID]; ok {
		st.entry.SessionID = sessionID
	}
}

// ClearSessionAll nulls the session reference on every entry pointing at the
// given session. Used when a session dies.
func (d *Directory) ClearSessionAll(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, st := range d.entries {
		if st.entry.SessionID == sessionID {
			st.entry.SessionID = ""
		}
	}
}

// MarkOffline flags an entry offline without touching its connection set.
// Delivery paths use it when every known connection turned out dead.
func (d *Directory) MarkOffline(deviceID string, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if st, ok := d.entries[deviceID]; ok {
		st.entry.Online = false
		st.entry.LastSeen = now.UnixMilli()
	}
}

// Remove deletes an entry and its username index reference.
func (d *Directory) Remove(deviceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.entries[deviceID]
	if !ok {
		return
	}
	d.dropUsernameLocked(st.entry.Username, deviceID)
	delete(d.entries, deviceID)
}

// DueEntries lists devices with zero connections whose grace window has
// passed. Only the sweeper acts on this.
func (d *Directory) DueEntries(now time.Time, grace time.Duration) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	deadline := now.Add(-grace).UnixMilli()
	var due []string
	for id, st := range d.entries {
		if len(st.conns) == 0 && st.entry.LastSeen < deadline {
			due = append(due, id)
		}
	}
	sort.Strings(due)
	return due
}

// All returns copies of every entry ordered by device id, for the debug dump
// and nearby fan-outs.
func (d *Directory) All() []model.DeviceEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]string, 0, len(d.entries))
	for id := range d.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]model.DeviceEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.entries[id].entry)
	}
	return out
}

// Count returns the number of directory entries.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
