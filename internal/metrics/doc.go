// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

/*
Package metrics holds the process-level Prometheus metrics.

Everything is registered with promauto on the default registry and exposed
at GET /metrics:

	curl http://localhost:8088/metrics

# Available Metrics

HTTP:
  - auditwal_api_requests_total{method,route,status_code}
  - auditwal_api_request_duration_seconds{method,route}
  - auditwal_api_active_requests
  - auditwal_api_rate_limit_hits_total{route}

Ingest:
  - auditwal_ingest_entries_total{result}
  - auditwal_ingest_body_bytes

Process:
  - auditwal_supervisor_events_total{event}
  - auditwal_app_info{version,go_version,writer_mode}
  - auditwal_app_uptime_seconds

The durability pipeline exports its own families from internal/wal,
internal/journal, internal/writer and internal/replay.
*/
package metrics
