// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

/*
Package api provides the HTTP surface of the audit service.

Services post begin and end entries; the handlers validate them and hand
them to the WAL engine, which merges, queues, journals and delivers the
resulting records. Operators can force a flush and read engine statistics.

# Endpoints

	GET  /api/v1/health/live     process is up
	GET  /api/v1/health/ready    boot replay done, engine open, checks pass
	POST /api/v1/audit/entries   ingest one entry, {"entries": [...]} or [...]
	POST /api/v1/audit/flush     flush now (409 while another flush runs)
	GET  /api/v1/audit/stats     wal.Stats snapshot
	GET  /api/v1/audit/stream    WebSocket feed of flush and replay events
	GET  /metrics                Prometheus exposition
	GET  /swagger/*              OpenAPI UI

# Ingest Semantics

A 202 means every entry was either taken by the engine or reported back in
IngestResult.Errors as invalid or dropped. Invalid entries are never
retried by a well-behaved client. A 503 means at least one entry hit an
engine failure (usually shutdown) and must be resent; entries listed as
accepted in the same response must not be resent.

A single-entry request that fails validation is answered with 400 and a
VALIDATION_ERROR instead of an IngestResult.

Bodies may be gzip-compressed (Content-Encoding: gzip). The size limit
applies to the decompressed body.

# Response Format

Every response uses the APIResponse envelope:

	{
	  "success": true,
	  "data": {...},
	  "meta": {"request_id": "...", "timestamp": "...", "duration_ms": 1}
	}

# Middleware

Request ID, real IP, panic recovery, CORS and Prometheus metrics apply to
every route. Audit routes are rate limited per client IP with httprate,
flush has its own tighter budget. When API keys are configured the audit
routes also require X-API-Key (see package authz); health, metrics and
swagger stay open.
*/
package api
