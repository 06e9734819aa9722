// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package store owns the hub's in-memory state: the session registry with its
// code index, and the global device directory. All state is process-local;
// nothing is persisted.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowlink/flowlink/internal/domain/session/model"
)

var (
	// ErrSessionNotFound is returned for lookups of absent or expired sessions.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnknownMember is returned when a group references a device that is
	// not a member of the session.
	ErrUnknownMember = errors.New("device is not a session member")

	// ErrGroupNotFound is returned for mutations of absent groups.
	ErrGroupNotFound = errors.New("group not found")

	// ErrCodeSpaceExhausted is returned when code generation keeps colliding.
	// With a 10^6 code space this only happens when the hub holds an absurd
	// number of live sessions.
	ErrCodeSpaceExhausted = errors.New("no free session code after retry limit")
)

// maxCodeAttempts bounds collision retries during code generation.
const maxCodeAttempts = 1000

// Store is the in-memory session registry. Reads return deep copies;
// mutations go through Update so the live records never escape the lock.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	byCode   map[string]string // code -> session id, live sessions only
}

// New creates an empty session store.
func New() *Store {
	return &Store{
		sessions: make(map[string]*model.Session),
		byCode:   make(map[string]string),
	}
}

// Create registers a new session owned by the given device. The owner becomes
// the only member. Code generation retries on collision with any live code.
func (s *Store) Create(owner model.DeviceInfo, now time.Time, ttl time.Duration) (model.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.freeCodeLocked()
	if err != nil {
		return model.SessionSnapshot{}, err
	}

	member := model.NewMembership(owner, now)
	sess := &model.Session{
		ID:        model.NewSessionID(),
		Code:      code,
		CreatedBy: owner.DeviceID,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
		Devices:   map[string]*model.DeviceMembership{owner.DeviceID: member},
		Groups:    make(map[string]*model.Group),
	}

	s.sessions[sess.ID] = sess
	s.byCode[code] = sess.ID
	return sess.Snapshot(), nil
}

func (s *Store) freeCodeLocked() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := model.NewSessionCode()
		if err != nil {
			return "", err
		}
		if _, taken := s.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// Get returns a deep copy of the session. Expired sessions are reported as
// absent even before the sweeper has removed them.
func (s *Store) Get(id string, now time.Time) (model.SessionSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Expired(now) {
		return model.SessionSnapshot{}, false
	}
	return sess.Snapshot(), true
}

// FindByCode resolves a live session id by its 6-digit code. Unknown and
// expired codes are indistinguishable.
func (s *Store) FindByCode(code string, now time.Time) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[code]
	if !ok {
		return "", false
	}
	sess, ok := s.sessions[id]
	if !ok || sess.Expired(now) {
		return "", false
	}
	return id, true
}

// Update runs fn on the live session under the store lock. fn must not retain
// the pointer. Expired sessions are treated as absent.
func (s *Store) Update(id string, now time.Time, fn func(*model.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Expired(now) {
		return ErrSessionNotFound
	}
	return fn(sess)
}

// AddMember adds or revives a membership. Re-joining is idempotent: the
// existing record goes online with a fresh lastSeen and keeps its joinedAt.
func (s *Store) AddMember(id string, info model.DeviceInfo, now time.Time) (model.DeviceMembership, bool, error) {
	var member model.DeviceMembership
	wasNew := false
	err := s.Update(id, now, func(sess *model.Session) error {
		if existing, ok := sess.Devices[info.DeviceID]; ok {
			existing.Online = true
			existing.LastSeen = now.UnixMilli()
			existing.Name = info.DeviceName
			existing.Type = info.DeviceType
			existing.Username = info.Username
			member = *existing
			return nil
		}
		m := model.NewMembership(info, now)
		sess.Devices[info.DeviceID] = m
		member = *m
		wasNew = true
		return nil
	})
	return member, wasNew, err
}

// MarkOffline flags a membership offline, preserving the record so a quick
// reconnect restores state. It reports how many members remain online.
func (s *Store) MarkOffline(id, deviceID string, now time.Time) (int, bool) {
	onlineLeft := 0
	err := s.Update(id, now, func(sess *model.Session) error {
		if m, ok := sess.Devices[deviceID]; ok {
			m.Online = false
			m.LastSeen = now.UnixMilli()
		}
		onlineLeft = sess.OnlineCount()
		return nil
	})
	return onlineLeft, err == nil
}

// Remove deletes the session and its code index entry, returning a final
// snapshot for fan-outs. It also removes sessions already past expiry.
func (s *Store) Remove(id string) (model.SessionSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return model.SessionSnapshot{}, false
	}
	snap := sess.Snapshot()
	delete(s.sessions, id)
	delete(s.byCode, sess.Code)
	return snap, true
}

// PutGroup inserts or replaces a group after validating that every referenced
// device is a session member.
func (s *Store) PutGroup(id string, group model.Group, now time.Time) error {
	return s.Update(id, now, func(sess *model.Session) error {
		for _, deviceID := range group.DeviceIDs {
			if _, ok := sess.Devices[deviceID]; !ok {
				return fmt.Errorf("%w: %s", ErrUnknownMember, deviceID)
			}
		}
		g := group.Clone()
		sess.Groups[group.ID] = &g
		return nil
	})
}

// GetGroup returns a deep copy of one group.
func (s *Store) GetGroup(id, groupID string, now time.Time) (model.Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || sess.Expired(now) {
		return model.Group{}, false
	}
	g, ok := sess.Groups[groupID]
	if !ok {
		return model.Group{}, false
	}
	return g.Clone(), true
}

// DeleteGroup removes a group from the session.
func (s *Store) DeleteGroup(id, groupID string, now time.Time) error {
	return s.Update(id, now, func(sess *model.Session) error {
		if _, ok := sess.Groups[groupID]; !ok {
			return ErrGroupNotFound
		}
		delete(sess.Groups, groupID)
		return nil
	})
}

// GroupCount returns the number of groups in the session, for palette
// rotation. Absent sessions count zero.
func (s *Store) GroupCount(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.sessions[id]; ok {
		return len(sess.Groups)
	}
	return 0
}

// DueSessions lists ids of sessions past their expiry.
func (s *Store) DueSessions(now time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []string
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			due = append(due, id)
		}
	}
	sort.Strings(due)
	return due
}

// Count returns the number of stored sessions, expired-but-unswept included.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns deep copies of every stored session ordered by creation time,
// for the debug dump.
func (s *Store) List() []model.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.SessionSnapshot, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}
