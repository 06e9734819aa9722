// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config resolves the hub runtime configuration with the
// precedence ENV > file > defaults.
package config

import (
	"fmt"
	"time"
)

// Environment labels recognised by the hub.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the fully resolved runtime configuration of the hub daemon.
type Config struct {
	// Listen is the address the combined control-plane and websocket
	// listener binds to (e.g. ":8080").
	Listen string

	// Environment is an informational deployment label. The /debug
	// endpoint is only served in development.
	Environment string

	// LogLevel sets the global zerolog level.
	LogLevel string

	// MetricsListen enables a dedicated Prometheus listener when non-empty.
	MetricsListen string

	// SessionTTL is the session lifetime from creation to expiry.
	SessionTTL time.Duration

	// SweepInterval is the cadence of the expiry sweeper.
	SweepInterval time.Duration

	// EntryGrace is how long a disconnected device entry survives before
	// the sweeper purges it.
	EntryGrace time.Duration

	// PingInterval is the websocket heartbeat cadence. A connection is
	// closed after two missed heartbeats.
	PingInterval time.Duration

	// SendBuffer is the per-connection outbound queue capacity. A slow
	// consumer whose queue overflows is disconnected.
	SendBuffer int

	// NearbyDelay is the pause between session creation and the automatic
	// nearby discovery broadcast.
	NearbyDelay time.Duration

	Server    ServerConfig
	Telemetry TelemetryConfig

	// Version is the build version stamped into the binary.
	Version string
}

// TelemetryConfig holds OpenTelemetry trace export settings.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string // "grpc" or "http"
	Endpoint     string
	SamplingRate float64
}

// Default returns the built-in configuration before file and env overrides.
func Default() Config {
	return Config{
		Listen:        ":8080",
		Environment:   EnvDevelopment,
		LogLevel:      "info",
		MetricsListen: "",
		SessionTTL:    time.Hour,
		SweepInterval: time.Minute,
		EntryGrace:    30 * time.Second,
		PingInterval:  30 * time.Second,
		SendBuffer:    64,
		NearbyDelay:   time.Second,
		Server:        defaultServerConfig(),
		Telemetry: TelemetryConfig{
			Enabled:      false,
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// IsDevelopment reports whether the deployment label is development.
func (c Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// Validate rejects configurations the hub cannot run with.
func Validate(cfg Config) error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if cfg.Environment != EnvDevelopment && cfg.Environment != EnvProduction {
		return fmt.Errorf("unknown environment %q (want %q or %q)", cfg.Environment, EnvDevelopment, EnvProduction)
	}
	if cfg.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive, got %s", cfg.SessionTTL)
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", cfg.SweepInterval)
	}
	if cfg.EntryGrace < 0 {
		return fmt.Errorf("entry grace must not be negative, got %s", cfg.EntryGrace)
	}
	if cfg.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive, got %s", cfg.PingInterval)
	}
	if cfg.SendBuffer <= 0 {
		return fmt.Errorf("send buffer must be positive, got %d", cfg.SendBuffer)
	}
	if cfg.NearbyDelay < 0 {
		return fmt.Errorf("nearby delay must not be negative, got %s", cfg.NearbyDelay)
	}
	switch cfg.Telemetry.Exporter {
	case "grpc", "http":
	default:
		return fmt.Errorf("unknown telemetry exporter %q (want grpc or http)", cfg.Telemetry.Exporter)
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be within [0,1], got %g", cfg.Telemetry.SamplingRate)
	}
	return nil
}
