// SPDX-License-Identifier: MIT

package daemon

import (
	"net/http"

	"github.com/rs/zerolog"
)

// Deps contains dependencies required by the daemon Manager.
// This allows for clean dependency injection and easier testing.
type Deps struct {
	// Logger is the structured logger for the daemon
	Logger zerolog.Logger

	// APIHandler serves the control plane and the websocket endpoint
	APIHandler http.Handler

	// MetricsHandler serves Prometheus metrics on the dedicated listener
	// (ignored when the metrics listen address is empty)
	MetricsHandler http.Handler

	// OnReady is called once the listeners are launched; the daemon uses
	// it to open the readiness gate
	OnReady func()
}

// Validate checks if the dependencies are valid.
func (d *Deps) Validate() error {
	if d.Logger.GetLevel() == zerolog.Disabled {
		return ErrMissingLogger
	}
	if d.APIHandler == nil {
		return ErrMissingAPIHandler
	}
	return nil
}
