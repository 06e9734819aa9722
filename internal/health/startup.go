// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/flowlink/flowlink/internal/config"
	"github.com/flowlink/flowlink/internal/log"
)

// PerformStartupChecks validates the runtime environment before the
// daemon binds any listener. config.Validate has already vetted the
// semantic values; this pass catches what only the host can answer.
func PerformStartupChecks(ctx context.Context, cfg config.Config) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	if err := checkListenAddr(logger, "listen address", cfg.Listen); err != nil {
		return err
	}

	if cfg.MetricsListen != "" {
		if err := checkListenAddr(logger, "metrics listen address", cfg.MetricsListen); err != nil {
			return err
		}
		if samePort(cfg.Listen, cfg.MetricsListen) {
			return fmt.Errorf("metrics listen address %q collides with the main listener %q", cfg.MetricsListen, cfg.Listen)
		}
	}

	if cfg.Telemetry.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Telemetry.Endpoint); err != nil {
			return fmt.Errorf("invalid telemetry endpoint %q: %w", cfg.Telemetry.Endpoint, err)
		}
		logger.Info().Str("endpoint", cfg.Telemetry.Endpoint).Msg("✓ Telemetry endpoint is valid")
	}

	if cfg.IsDevelopment() {
		logger.Warn().Msg("development mode: /debug exposes full session state without authentication")
	}
	if !cfg.IsDevelopment() && cfg.NearbyDelay == 0 {
		logger.Warn().Msg("nearby delay is zero; discovery broadcasts fire inline with session creation")
	}

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func checkListenAddr(logger zerolog.Logger, what, addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", what, addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid port %q in %s %q", port, what, addr)
	}
	logger.Info().Str("addr", addr).Msgf("✓ %s is valid", what)
	return nil
}

// samePort reports whether two listen addresses would contend for the
// same port. Host parts are ignored; ":8080" and "0.0.0.0:8080" clash.
func samePort(a, b string) bool {
	_, pa, errA := net.SplitHostPort(a)
	_, pb, errB := net.SplitHostPort(b)
	return errA == nil && errB == nil && pa == pb
}
