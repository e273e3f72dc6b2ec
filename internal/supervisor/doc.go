// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

/*
Package supervisor provides process supervision for auditwal using suture v4.

# Overview

	RootSupervisor ("auditwal")
	├── DataSupervisor ("data-layer")
	│   ├── LifecycleService "wal-flush-loop"   (absent when cadence is 0)
	│   ├── LifecycleService "pending-sweeper"
	│   └── UptimeService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A crashed service is restarted with suture's decaying failure counter and
backoff. Each layer counts failures on its own, so a flapping listener does
not push the flush loop into backoff.

# What Is NOT Supervised

The WAL engine and the journal. main creates them before the tree starts
and calls Engine.Stop after the tree returns. That ordering guarantees the
final flush sees every entry the HTTP server accepted.

# Events

Supervisor events are logged through sutureslog (an slog handler backed by
the zerolog logger) and counted in auditwal_supervisor_events_total.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	if err != nil {
	    logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	tree.AddDataService(services.NewLifecycleService("wal-flush-loop", engine.Loop()))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	errCh := tree.ServeBackground(ctx)
	<-ctx.Done()
	<-errCh

	if report, _ := tree.UnstoppedServiceReport(); len(report) > 0 {
	    logging.Warn().Int("count", len(report)).Msg("Services did not stop in time")
	}
*/
package supervisor
