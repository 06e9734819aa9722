// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package health serves the liveness and readiness probes of the hub.
// The liveness reply doubles as a tiny status endpoint: it carries the
// live session, connection and device counters so operators and the
// desktop clients can poll a single URL.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/flowlink/flowlink/internal/hub"
	"github.com/flowlink/flowlink/internal/log"
)

// Status is the overall health or readiness verdict.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of a single component check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health. The counter fields mirror
// hub.Stats; uptime is whole seconds since the hub started.
type HealthResponse struct {
	Status        Status                 `json:"status"`
	Sessions      int                    `json:"sessions"`
	Connections   int                    `json:"connections"`
	GlobalDevices int                    `json:"globalDevices"`
	Uptime        int64                  `json:"uptime"`
	Version       string                 `json:"version,omitempty"`
	Checks        map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the body of GET /readyz.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// StatsSource supplies the live hub counters. *hub.Hub satisfies it.
type StatsSource interface {
	Stats() hub.Stats
}

// Checker is a named component probe.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager answers health and readiness probes.
type Manager struct {
	version  string
	stats    StatsSource
	checkers []Checker
}

// NewManager returns a manager reporting the given build version and
// the counters of stats.
func NewManager(version string, stats StatsSource) *Manager {
	return &Manager{
		version:  version,
		stats:    stats,
		checkers: make([]Checker, 0),
	}
}

// RegisterChecker adds a component probe. Not safe for concurrent use;
// register everything before serving.
func (m *Manager) RegisterChecker(checker Checker) {
	m.checkers = append(m.checkers, checker)
}

// Health reports liveness. The process being able to answer is the
// signal; component checks are only folded in when verbose is set.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	s := m.stats.Stats()
	resp := HealthResponse{
		Status:        StatusHealthy,
		Sessions:      s.Sessions,
		Connections:   s.Connections,
		GlobalDevices: s.Devices,
		Uptime:        int64(s.Uptime.Seconds()),
		Version:       m.version,
	}

	if verbose && len(m.checkers) > 0 {
		resp.Checks = make(map[string]CheckResult)
		worst := StatusHealthy
		for _, checker := range m.checkers {
			result := checker.Check(ctx)
			resp.Checks[checker.Name()] = result
			worst = worse(worst, result.Status)
		}
		resp.Status = worst
	}

	return resp
}

// Ready reports whether the hub should receive traffic. Any unhealthy
// checker makes the answer a 503.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	resp := ReadinessResponse{
		Ready:     true,
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	}
	if len(m.checkers) == 0 {
		return resp
	}

	resp.Checks = make(map[string]CheckResult)
	worst := StatusHealthy
	for _, checker := range m.checkers {
		result := checker.Check(ctx)
		resp.Checks[checker.Name()] = result
		worst = worse(worst, result.Status)
		if result.Status == StatusUnhealthy {
			resp.Ready = false
		}
	}
	resp.Status = worst
	return resp
}

// ServeHealth handles GET /health. Liveness always answers 200.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := m.Health(r.Context(), verbose)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "health.encode_error").Msg("failed to encode health response")
	}

	logger.Debug().
		Str("event", "health.checked").
		Str("status", string(resp.Status)).
		Int("sessions", resp.Sessions).
		Int("connections", resp.Connections).
		Msg("health check performed")
}

// ServeReady handles GET /readyz, answering 503 until every checker
// passes.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "readiness")

	resp := m.Ready(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str("event", "readiness.encode_error").Msg("failed to encode readiness response")
	}

	logger.Debug().
		Str("event", "readiness.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("readiness check performed")
}

// worse returns the more severe of two statuses.
func worse(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusUnhealthy:
			return 2
		case StatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
