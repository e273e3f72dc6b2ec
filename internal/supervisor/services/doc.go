// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

/*
Package services provides suture.Service wrappers for auditwal components.

Each wrapper translates a component's own lifecycle into suture's
context-aware Serve:

	type Service interface {
	    Serve(ctx context.Context) error
	}

# Available Services

LifecycleService:
  - Wraps any Start/Stop/IsRunning component
  - Used for the WAL flush loop and the pending-half sweeper

HTTPServerService:
  - Wraps *http.Server with graceful shutdown

UptimeService:
  - Refreshes auditwal_app_uptime_seconds

Wrappers return ctx.Err() on a requested shutdown and a wrapped error on
failure, so suture can tell the two apart and only restart failures.
*/
package services
