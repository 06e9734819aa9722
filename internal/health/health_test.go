// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowlink/flowlink/internal/domain/session/store"
	"github.com/flowlink/flowlink/internal/hub"
)

// stubStats feeds fixed counters into the manager.
type stubStats struct {
	s hub.Stats
}

func (s stubStats) Stats() hub.Stats { return s.s }

func liveStats() StatsSource {
	return stubStats{s: hub.Stats{
		Sessions:    3,
		Connections: 5,
		Devices:     4,
		Uptime:      90 * time.Second,
	}}
}

func TestNewManager(t *testing.T) {
	m := NewManager("v1.2.3", liveStats())
	assert.NotNil(t, m)
	assert.Equal(t, "v1.2.3", m.version)
	assert.Empty(t, m.checkers)
}

func TestHealthReportsHubCounters(t *testing.T) {
	m := NewManager("v1.0.0", liveStats())

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, 3, resp.Sessions)
	assert.Equal(t, 5, resp.Connections)
	assert.Equal(t, 4, resp.GlobalDevices)
	assert.Equal(t, int64(90), resp.Uptime)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.Nil(t, resp.Checks)
}

func TestHealthVerboseFoldsCheckers(t *testing.T) {
	m := NewManager("v1.0.0", liveStats())
	m.RegisterChecker(&mockChecker{name: "fine", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "wobbly", status: StatusDegraded})

	// Non-verbose liveness ignores the checkers.
	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	require.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusHealthy, resp.Checks["fine"].Status)
	assert.Equal(t, StatusDegraded, resp.Checks["wobbly"].Status)
}

func TestHealthUnhealthyOutranksDegraded(t *testing.T) {
	m := NewManager("v1.0.0", liveStats())
	m.RegisterChecker(&mockChecker{name: "wobbly", status: StatusDegraded})
	m.RegisterChecker(&mockChecker{name: "broken", status: StatusUnhealthy})

	resp := m.Health(context.Background(), true)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestReadyNoCheckers(t *testing.T) {
	m := NewManager("v1.0.0", liveStats())

	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestReadyDegradedStillReady(t *testing.T) {
	m := NewManager("v1.0.0", liveStats())
	m.RegisterChecker(&mockChecker{name: "wobbly", status: StatusDegraded})

	resp := m.Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)
}

func TestReadyUnhealthyNotReady(t *testing.T) {
	m := NewManager("v1.0.0", liveStats())
	m.RegisterChecker(&mockChecker{name: "fine", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "broken", status: StatusUnhealthy})

	resp := m.Ready(context.Background())
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Len(t, resp.Checks, 2)
}

func TestServeHealthWireFormat(t *testing.T) {
	m := NewManager("", liveStats())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	m.ServeHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(3), body["sessions"])
	assert.Equal(t, float64(5), body["connections"])
	assert.Equal(t, float64(4), body["globalDevices"])
	assert.Equal(t, float64(90), body["uptime"])
	// Empty version is omitted, checks only appear with verbose.
	assert.NotContains(t, body, "version")
	assert.NotContains(t, body, "checks")
}

func TestServeHealthVerbose(t *testing.T) {
	m := NewManager("v1.0.0", liveStats())
	m.RegisterChecker(&mockChecker{name: "broken", status: StatusUnhealthy})

	req := httptest.NewRequest(http.MethodGet, "/health?verbose=true", nil)
	w := httptest.NewRecorder()
	m.ServeHealth(w, req)

	// Liveness stays 200 even when a component is unhealthy.
	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Len(t, resp.Checks, 1)
	assert.Equal(t, 3, resp.Sessions)
}

func TestServeHealthEncodingError(t *testing.T) {
	m := NewManager("v1.0.0", liveStats())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := &brokenWriter{header: make(http.Header)}

	// Must not panic when the client is gone mid-write.
	m.ServeHealth(w, req)
}

func TestServeReady(t *testing.T) {
	tests := []struct {
		name           string
		checker        Checker
		expectedStatus int
		expectedReady  bool
	}{
		{
			name:           "healthy",
			checker:        &mockChecker{name: "test", status: StatusHealthy},
			expectedStatus: http.StatusOK,
			expectedReady:  true,
		},
		{
			name:           "degraded",
			checker:        &mockChecker{name: "test", status: StatusDegraded},
			expectedStatus: http.StatusOK,
			expectedReady:  true,
		},
		{
			name:           "unhealthy",
			checker:        &mockChecker{name: "test", status: StatusUnhealthy},
			expectedStatus: http.StatusServiceUnavailable,
			expectedReady:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1.0.0", liveStats())
			m.RegisterChecker(tt.checker)

			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			w := httptest.NewRecorder()
			m.ServeReady(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp ReadinessResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.expectedReady, resp.Ready)
		})
	}
}

func TestServeReadyEncodingError(t *testing.T) {
	m := NewManager("v1.0.0", liveStats())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := &brokenWriter{header: make(http.Header)}

	m.ServeReady(w, req)
}

func TestGateOpensOnce(t *testing.T) {
	g := NewGate("listeners")
	assert.Equal(t, "listeners", g.Name())

	res := g.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)

	g.MarkReady()
	g.MarkReady() // idempotent

	res = g.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
}

func TestGateGatesReadiness(t *testing.T) {
	m := NewManager("v1.0.0", liveStats())
	g := NewGate("listeners")
	m.RegisterChecker(g)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	m.ServeReady(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	g.MarkReady()

	w = httptest.NewRecorder()
	m.ServeReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCodeSpaceChecker(t *testing.T) {
	count := 10
	c := NewCodeSpaceChecker(func() int { return count }, 0)
	assert.Equal(t, "session_codes", c.Name())

	res := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Contains(t, res.Message, "10 live sessions")

	count = 100000
	res = c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
}

func TestCodeSpaceCheckerCustomLimit(t *testing.T) {
	c := NewCodeSpaceChecker(func() int { return 50 }, 50)

	res := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
}

func TestHubCheckerTracksShutdown(t *testing.T) {
	h := hub.New(store.New(), store.NewDirectory(), hub.Config{SessionTTL: time.Hour})
	c := NewHubChecker(h)
	assert.Equal(t, "hub", c.Name())

	res := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)

	require.NoError(t, h.Shutdown(context.Background()))

	res = c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "shutting down", res.Message)
}

func TestSweepChecker(t *testing.T) {
	last := time.Time{}
	c := NewSweepChecker(func() time.Time { return last }, time.Minute)
	assert.Equal(t, "sweeper", c.Name())

	// No pass yet is fine, the first tick is still pending.
	res := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "no sweep pass yet", res.Message)

	last = time.Now().Add(-30 * time.Second)
	res = c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)

	last = time.Now().Add(-5 * time.Minute)
	res = c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Contains(t, res.Message, "last pass")
}

// mockChecker returns a fixed result.
type mockChecker struct {
	name    string
	status  Status
	message string
	err     string
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(_ context.Context) CheckResult {
	return CheckResult{
		Status:  m.status,
		Message: m.message,
		Error:   m.err,
	}
}

// brokenWriter always fails to write.
type brokenWriter struct {
	header http.Header
}

func (w *brokenWriter) Header() http.Header {
	return w.header
}

func (w *brokenWriter) Write([]byte) (int, error) {
	return 0, assert.AnError
}

func (w *brokenWriter) WriteHeader(statusCode int) {}
