// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api exposes the hub's HTTP surface: the websocket endpoint,
// health and readiness probes, and the development state dump.
package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/flowlink/flowlink/internal/api/middleware"
	"github.com/flowlink/flowlink/internal/config"
	"github.com/flowlink/flowlink/internal/health"
	"github.com/flowlink/flowlink/internal/hub"
	"github.com/flowlink/flowlink/internal/log"
)

// Server owns the control-plane routes. The prometheus handler is NOT
// mounted here; it runs on the dedicated metrics listener.
type Server struct {
	cfg    config.Config
	hub    *hub.Hub
	health *health.Manager
	logger zerolog.Logger
}

// New creates the HTTP server facade around the hub.
func New(cfg config.Config, h *hub.Hub, hm *health.Manager) *Server {
	return &Server{
		cfg:    cfg,
		hub:    h,
		health: hm,
		logger: log.WithComponent("api"),
	}
}

// Handler builds the chi router with the canonical middleware stack.
func (s *Server) Handler() http.Handler {
	tracingService := ""
	if s.cfg.Telemetry.Enabled {
		tracingService = "flowlink-hub"
	}

	r := middleware.NewRouter(middleware.StackConfig{
		TracingService: tracingService,
		EnableLogging:  true,
	})

	r.Get("/ws", s.handleWS)
	r.Get("/health", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	if s.cfg.IsDevelopment() {
		r.Get("/debug", s.handleDebug)
	}

	return r
}
