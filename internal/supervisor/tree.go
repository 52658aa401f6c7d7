// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns production-ready defaults.
// These values match suture's built-in defaults per pkg.go.dev documentation.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// SupervisorTree manages the hierarchical supervisor structure.
//
// The tree is organized into three layers:
//   - ingest: watchlist acquisition and the status reconciler
//   - routing: the rate governor and approval/quota maintenance
//   - scheduler: the persistent job runner and the progress bus
//
// This structure provides failure isolation - a crash in ingestion
// won't stop the scheduler from running quota maintenance.
type SupervisorTree struct {
	root      *suture.Supervisor
	ingest    *suture.Supervisor
	routing   *suture.Supervisor
	scheduler *suture.Supervisor
	logger    *slog.Logger
	config    TreeConfig
}

// NewSupervisorTree creates a new supervisor tree with the given configuration.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	// IMPORTANT: the correct API is (&Handler{Logger: logger}).MustHook() —
	// sutureslog.EventHook(logger) does not exist in v1.
	handler := &sutureslog.Handler{Logger: logger}
	eventHook := handler.MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("pulsarr", rootSpec)
	ingest := suture.New("ingest-layer", childSpec)
	routing := suture.New("routing-layer", childSpec)
	scheduler := suture.New("scheduler-layer", childSpec)

	root.Add(ingest)
	root.Add(routing)
	root.Add(scheduler)

	return &SupervisorTree{
		root:      root,
		ingest:    ingest,
		routing:   routing,
		scheduler: scheduler,
		logger:    logger,
		config:    config,
	}, nil
}

// Root returns the root supervisor for direct access if needed.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// AddIngestService adds a service to the ingestion layer supervisor.
// Use this for the watchlist ingester and the status reconciler.
func (t *SupervisorTree) AddIngestService(svc suture.Service) suture.ServiceToken {
	return t.ingest.Add(svc)
}

// AddRoutingService adds a service to the routing layer supervisor.
// Use this for the rate governor and approval/quota maintenance jobs.
func (t *SupervisorTree) AddRoutingService(svc suture.Service) suture.ServiceToken {
	return t.routing.Add(svc)
}

// AddSchedulerService adds a service to the scheduler layer supervisor.
// Use this for the persistent job runner and the progress bus.
func (t *SupervisorTree) AddSchedulerService(svc suture.Service) suture.ServiceToken {
	return t.scheduler.Add(svc)
}

// RemoveIngestService removes a service from the ingestion layer supervisor.
func (t *SupervisorTree) RemoveIngestService(token suture.ServiceToken) error {
	return t.ingest.Remove(token)
}

// Serve starts the supervisor tree and blocks until the context is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the supervisor tree in a background goroutine.
// Returns a channel that receives the error (or nil) when the supervisor stops.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport returns information about services that failed to stop
// within the configured shutdown timeout. Useful for debugging shutdown issues.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// Remove removes a service from the tree by its token.
func (t *SupervisorTree) Remove(token suture.ServiceToken) error {
	return t.root.Remove(token)
}

// RemoveAndWait removes a service and waits for it to fully stop.
func (t *SupervisorTree) RemoveAndWait(token suture.ServiceToken, timeout time.Duration) error {
	return t.root.RemoveAndWait(token, timeout)
}
