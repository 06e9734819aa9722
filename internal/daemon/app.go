// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/flowlink/flowlink/internal/hub"
)

// App owns the long-lived runtime lifecycle (expiry sweeper) and
// delegates server management to Manager.
type App struct {
	logger  zerolog.Logger
	manager Manager
	sweeper *hub.Sweeper
}

// NewApp creates a new App orchestrator.
func NewApp(logger zerolog.Logger, manager Manager, sweeper *hub.Sweeper) *App {
	return &App{
		logger:  logger,
		manager: manager,
		sweeper: sweeper,
	}
}

// Run starts all owned background subsystems and blocks until ctx is
// cancelled or a fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, ctx := errgroup.WithContext(ctx)

	// Expiry sweeper (stops via ctx).
	if a.sweeper != nil {
		g.Go(func() error {
			return a.sweeper.Run(ctx)
		})
	}

	// Main server lifecycle.
	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}
