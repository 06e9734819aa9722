// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package hub

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowlink/flowlink/internal/log"
	"github.com/flowlink/flowlink/internal/metrics"
)

// Sweeper is the only actor that deletes expired sessions on a timer and
// purges directory entries whose devices stayed offline past the grace
// window. Handlers never delete directory entries themselves.
type Sweeper struct {
	hub      *Hub
	interval time.Duration
	grace    time.Duration
	log      zerolog.Logger

	lastPass atomic.Int64 // unix nanos of the last completed pass
}

// NewSweeper builds a sweeper with the given cadence and offline grace.
// Non-positive values fall back to one minute and thirty seconds.
func NewSweeper(h *Hub, interval, grace time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if grace <= 0 {
		grace = 30 * time.Second
	}
	return &Sweeper{
		hub:      h,
		interval: interval,
		grace:    grace,
		log:      log.WithComponent("sweeper"),
	}
}

// Run ticks until the context ends. It always returns nil; sweep
// failures do not exist, a pass just removes whatever is due.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			expired, purged := s.SweepOnce(s.hub.now())
			if expired > 0 || purged > 0 {
				s.log.Info().
					Int("sessions_expired", expired).
					Int("devices_purged", purged).
					Msg("sweep pass")
			}
		}
	}
}

// SweepOnce runs a single pass at the given instant and reports how many
// sessions expired and how many directory entries were purged.
func (s *Sweeper) SweepOnce(now time.Time) (expired, purged int) {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range h.store.DueSessions(now) {
		h.expireSession(id)
		expired++
	}
	for _, deviceID := range h.dir.DueEntries(now, s.grace) {
		h.dir.Remove(deviceID)
		metrics.IncDirectoryPurged()
		purged++
	}
	h.syncGauges()
	s.lastPass.Store(now.UnixNano())
	return expired, purged
}

// LastPass returns when the last pass completed, or the zero time if
// none has run yet.
func (s *Sweeper) LastPass() time.Time {
	n := s.lastPass.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
