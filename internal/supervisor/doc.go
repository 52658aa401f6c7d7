// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package supervisor provides process supervision using suture v4.

This package implements a hierarchical supervisor tree for the
application's long-running services. The server adds one service to it:
the job scheduler, in the scheduler layer. Ingestion, reconciliation and
maintenance run as scheduler jobs; the rate governor and the progress bus
are plain objects and are not tree services.

# Overview

The supervisor tree offers three layers for failure isolation; the
services below show what each layer is for, and only JobSchedulerService
is added by the server today:

	RootSupervisor ("pulsarr")
	├── IngestSupervisor ("ingest-layer")
	│   ├── WatchlistIngestService (polling + RSS)
	│   └── ReconcilerService (status processor)
	├── RoutingSupervisor ("routing-layer")
	│   ├── RateGovernorService
	│   └── ApprovalMaintenanceService (quota/expiry housekeeping)
	└── SchedulerSupervisor ("scheduler-layer")
	    ├── JobSchedulerService
	    └── ProgressBusService

This hierarchy ensures that:
  - A crash in the ingestion loop doesn't take down the scheduler
  - Rate governor failures don't stop in-flight reconciliation
  - Each layer restarts independently with its own failure budget

# Key Features

Automatic restart with a fixed FailureBackoff pause once a supervisor's
failure threshold is exceeded, failure isolation per
layer, graceful shutdown on context cancellation, and an
UnstoppedServiceReport for diagnosing hangs — all provided by
thejerf/suture/v4 exactly as upstream documents it.

# Usage Example

	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    log.Fatal(err)
	}
	tree.AddIngestService(ingestService)
	tree.AddRoutingService(rateGovernorService)
	tree.AddSchedulerService(jobSchedulerService)

	if err := tree.Serve(ctx); err != nil {
	    log.Printf("supervisor stopped: %v", err)
	}

# What Is Not Supervised

The persistence facade is not supervised: it is an embedded library
(DuckDB via database/sql), not a long-running service. Downstream
manager HTTP clients are supervised indirectly — their failures are
isolated by the circuit breaker inside the rate-limited client
(internal/ratelimit), not by a dedicated suture service.
*/
package supervisor
