// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

// Package journal is the local, append-only, crash-durable log of audit
// records that have not been delivered yet.
//
// # Layout
//
// One directory per service. Within it, one file per channel per calendar day:
//
//	audit-2026-03-01.log      first audit segment of the day
//	error-2026-03-01.log      first error segment of the day
//	audit-2026-03-01.1.log    next audit segment after a Seal
//	audit-2026-02-28.log.consumed
//
// Every line is one JSON object (NDJSON) holding one audit.Record.
//
// # Active and sealed segments
//
// A segment is either active (open for appends by Persist) or sealed (closed,
// drainable by ScanAll/ReadLines/MarkConsumed), never both. Seal closes the
// active segments; the next Persist opens a fresh segment with a higher
// sequence number instead of reopening a sealed file. That split is the only
// locking discipline the directory needs.
//
// # Durability
//
// Persist writes a whole batch with one write call and fsyncs before
// returning. A crash mid-write can leave at most one torn trailing line, which
// readers report as malformed and skip.
//
// # Replay
//
// Replay is cursorless: there is no stored offset. ScanAll returns every
// sealed, non-consumed file in chronological order and callers redeliver each
// file in full, relying on idempotent writers.
package journal
