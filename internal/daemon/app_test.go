// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/flowlink/flowlink/internal/config"
	"github.com/flowlink/flowlink/internal/domain/session/store"
	"github.com/flowlink/flowlink/internal/hub"
	"github.com/flowlink/flowlink/internal/log"
)

func TestAppRun_MissingManager(t *testing.T) {
	app := NewApp(log.WithComponent("test"), nil, nil)
	err := app.Run(context.Background())
	if !errors.Is(err, ErrMissingManager) {
		t.Errorf("Run() error = %v, want %v", err, ErrMissingManager)
	}
}

func TestAppRun_StopsSweeperAndManagerOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig(t)
	deps := Deps{
		Logger:     log.WithComponent("test"),
		APIHandler: okHandler(),
	}
	mgr, err := NewManager(cfg, deps)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	h := hub.New(store.New(), store.NewDirectory(), hub.Config{})
	sweeper := hub.NewSweeper(h, 10*time.Millisecond, time.Second)
	mgr.RegisterShutdownHook("hub", h.Shutdown)

	app := NewApp(log.WithComponent("test"), mgr, sweeper)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Run(ctx)
	}()

	if err := waitForListen(cfg.Listen, 2*time.Second); err != nil {
		t.Fatalf("API server never came up: %v", err)
	}
	// Let the sweeper take at least one pass.
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}

	if !h.Closed() {
		t.Error("hub shutdown hook never ran")
	}
}

func TestAppRun_PropagatesManagerError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen error = %v", err)
	}
	defer ln.Close()

	cfg := config.Default()
	cfg.Listen = ln.Addr().String()
	cfg.Server.ShutdownTimeout = time.Second

	deps := Deps{
		Logger:     log.WithComponent("test"),
		APIHandler: http.NotFoundHandler(),
	}
	mgr, err := NewManager(cfg, deps)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	h := hub.New(store.New(), store.NewDirectory(), hub.Config{})
	sweeper := hub.NewSweeper(h, time.Minute, time.Second)

	app := NewApp(log.WithComponent("test"), mgr, sweeper)
	err = app.Run(context.Background())
	if err == nil {
		t.Fatal("Run() expected bind error, got nil")
	}
}
