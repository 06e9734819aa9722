// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowlink/flowlink/internal/api"
	"github.com/flowlink/flowlink/internal/config"
	"github.com/flowlink/flowlink/internal/daemon"
	"github.com/flowlink/flowlink/internal/domain/session/store"
	"github.com/flowlink/flowlink/internal/health"
	"github.com/flowlink/flowlink/internal/hub"
	fllog "github.com/flowlink/flowlink/internal/log"
	"github.com/flowlink/flowlink/internal/telemetry"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	fllog.Configure(fllog.Config{
		Level:   "info",
		Service: "flowlink-hub",
		Version: version,
	})

	logger := fllog.WithComponent("daemon")

	// Create a context that listens for the interrupt signal from the OS
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration with precedence: ENV > File > Defaults
	configFile := strings.TrimSpace(*configPath)
	loader := config.NewLoader(configFile, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", configFile).
			Msg("failed to load configuration")
	}

	// Apply the configured level now that config is loaded
	if cfg.LogLevel != "" {
		if err := fllog.SetLevel(cfg.LogLevel); err != nil {
			logger.Warn().
				Err(err).
				Str("level", cfg.LogLevel).
				Msg("invalid log level, keeping defaults")
		}
	}

	if configFile != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", configFile).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	// -------------------------------------------------------------------------
	// Pre-flight Checks (Fail Fast)
	// -------------------------------------------------------------------------
	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
	}

	// Tracing is a noop unless enabled.
	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "flowlink-hub",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "telemetry.init_failed").
			Msg("failed to initialise telemetry")
	}

	// Hub core: session store, device directory, dispatcher, sweeper.
	h := hub.New(store.New(), store.NewDirectory(), hub.Config{
		SessionTTL:  cfg.SessionTTL,
		NearbyDelay: cfg.NearbyDelay,
	})
	sweeper := hub.NewSweeper(h, cfg.SweepInterval, cfg.EntryGrace)

	gate := health.NewGate("startup")
	hm := health.NewManager(cfg.Version, h)
	hm.RegisterChecker(gate)
	hm.RegisterChecker(health.NewHubChecker(h))
	hm.RegisterChecker(health.NewSweepChecker(sweeper.LastPass, cfg.SweepInterval))
	hm.RegisterChecker(health.NewCodeSpaceChecker(func() int { return h.Stats().Sessions }, 0))

	srv := api.New(cfg, h, hm)

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.Listen).
		Msg("starting flowlink hub")

	logger.Info().Msgf("→ Session TTL: %s (sweep every %s)", cfg.SessionTTL, cfg.SweepInterval)
	logger.Info().Msgf("→ Directory grace: %s", cfg.EntryGrace)
	logger.Info().Msgf("→ Websocket heartbeat: %s (send queue %d)", cfg.PingInterval, cfg.SendBuffer)
	if cfg.MetricsListen != "" {
		logger.Info().Msgf("→ Metrics: %s", cfg.MetricsListen)
	} else {
		logger.Info().Msg("→ Metrics: disabled")
	}
	if cfg.Telemetry.Enabled {
		logger.Info().Msgf("→ Tracing: %s via %s", cfg.Telemetry.Endpoint, cfg.Telemetry.Exporter)
	}
	if cfg.IsDevelopment() {
		logger.Warn().Msg("→ /debug: enabled (development mode)")
	}

	deps := daemon.Deps{
		Logger:     logger,
		APIHandler: srv.Handler(),
		OnReady:    gate.MarkReady,
	}
	if cfg.MetricsListen != "" {
		deps.MetricsHandler = promhttp.Handler()
	}

	mgr, err := daemon.NewManager(cfg, deps)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.creation.failed").
			Msg("failed to create daemon manager")
	}

	// LIFO: the hub drains connections before telemetry flushes its spans.
	mgr.RegisterShutdownHook("telemetry", provider.Shutdown)
	mgr.RegisterShutdownHook("hub", h.Shutdown)

	// Start daemon app (blocks until shutdown)
	app := daemon.NewApp(logger, mgr, sweeper)
	if err := app.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "manager.failed").
			Msg("daemon app failed")
	}

	logger.Info().Msg("server exiting")
}
