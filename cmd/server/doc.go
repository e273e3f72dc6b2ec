// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

/*
Package main is the entry point for the auditwal server.

auditwal accepts begin and end audit entries over HTTP, merges them by
correlation id into records and delivers the records to an HTTP ingest
service, a database or NATS JetStream. Records that cannot be delivered are
journaled to NDJSON files and replayed later, so an accepted record is never
lost.

# Startup Order

 1. Configuration (koanf v2); any error is fatal
 2. Journal, pending-half store and correlator
 3. Writer for AUDIT_WRITER_MODE
 4. WAL engine
 5. Boot replay of journal files left by a previous run
 6. Supervisor tree: flush loop, sweeper, uptime, HTTP server

# Supervision

	RootSupervisor ("auditwal")
	├── DataSupervisor ("data-layer")
	│   ├── wal-flush-loop
	│   ├── pending-sweeper
	│   └── uptime
	└── APISupervisor ("api-layer")
	    └── http-server

# Signal Handling

SIGINT and SIGTERM cancel the tree. The HTTP server drains in-flight
requests, the loops stop, and then the engine runs its final flush: queued
records are delivered or journaled, never discarded.

# Example Usage

	export AUDIT_JOURNAL_DIR=/var/lib/auditwal/journal
	export AUDIT_WRITER_MODE=http
	export AUDIT_HTTP_URL=https://audit.internal/api/v1/records
	export AUDIT_HTTP_CREDENTIAL=primary-key
	export AUDIT_HTTP_SECONDARY_CREDENTIAL=standby-key
	./auditwal

Local development without a destination:

	AUDIT_JOURNAL_DIR=./data/journal AUDIT_WRITER_MODE=memory LOG_FORMAT=console ./auditwal
*/
package main
