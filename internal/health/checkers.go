// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/flowlink/flowlink/internal/hub"
)

// Gate is a readiness latch. It reports unhealthy until MarkReady is
// called, which the daemon does once every listener is bound.
type Gate struct {
	name  string
	ready atomic.Bool
}

// NewGate returns a closed gate with the given check name.
func NewGate(name string) *Gate {
	return &Gate{name: name}
}

// MarkReady opens the gate. Safe to call more than once.
func (g *Gate) MarkReady() {
	g.ready.Store(true)
}

func (g *Gate) Name() string {
	return g.name
}

func (g *Gate) Check(ctx context.Context) CheckResult {
	if !g.ready.Load() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "still starting",
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "started",
	}
}

// HubChecker flips readiness once the hub begins shutting down, so load
// balancers drain before the listeners stop.
type HubChecker struct {
	hub *hub.Hub
}

// NewHubChecker builds a checker over the hub's shutdown state.
func NewHubChecker(h *hub.Hub) *HubChecker {
	return &HubChecker{hub: h}
}

func (c *HubChecker) Name() string {
	return "hub"
}

func (c *HubChecker) Check(ctx context.Context) CheckResult {
	if c.hub.Closed() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "shutting down",
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "accepting connections",
	}
}

// CodeSpaceChecker watches how crowded the six-digit session code space
// is. Creation retries on collision, so a crowded space degrades create
// latency long before it fails outright.
type CodeSpaceChecker struct {
	count func() int
	limit int
}

// NewCodeSpaceChecker builds a checker over a live session counter.
// A non-positive limit falls back to 100000, a tenth of the code space.
func NewCodeSpaceChecker(count func() int, limit int) *CodeSpaceChecker {
	if limit <= 0 {
		limit = 100000
	}
	return &CodeSpaceChecker{
		count: count,
		limit: limit,
	}
}

func (c *CodeSpaceChecker) Name() string {
	return "session_codes"
}

func (c *CodeSpaceChecker) Check(ctx context.Context) CheckResult {
	n := c.count()
	if n >= c.limit {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d live sessions, code collisions likely", n),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d live sessions", n),
	}
}

// SweepChecker verifies the expiry sweeper is still making passes. A
// wedged sweeper lets sessions outlive their TTL and dead directory
// entries pile up.
type SweepChecker struct {
	lastPass func() time.Time
	interval time.Duration
}

// NewSweepChecker builds a checker over the sweeper's last-pass clock.
func NewSweepChecker(lastPass func() time.Time, interval time.Duration) *SweepChecker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweepChecker{
		lastPass: lastPass,
		interval: interval,
	}
}

func (c *SweepChecker) Name() string {
	return "sweeper"
}

func (c *SweepChecker) Check(ctx context.Context) CheckResult {
	last := c.lastPass()
	if last.IsZero() {
		// First pass lands one interval after boot; the gate covers
		// startup, so a missing pass is not a fault yet.
		return CheckResult{
			Status:  StatusHealthy,
			Message: "no sweep pass yet",
		}
	}

	age := time.Since(last)
	if age > 3*c.interval {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("last pass %s ago", age.Round(time.Second)),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "last pass " + age.Round(time.Second).String() + " ago",
	}
}
