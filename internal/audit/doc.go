// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

// Package audit defines the audit entry and record model for cross-service
// request auditing.
//
// # Overview
//
// Every audited request produces two lifecycle entries that share a
// correlation ID:
//
//   - begin: emitted when the request starts
//   - end: emitted when the request finishes, carrying status and/or HTTP code
//
// The two halves are merged into a single immutable Record, which is the unit
// persisted downstream. Records are append-only; nothing updates them after
// construction.
//
// # Normalization
//
// An end entry without a status is normalized from its HTTP code:
//
//	httpCode >= 400  -> status "error"
//	httpCode <  400  -> status "ok"
//
// An end entry carrying neither is invalid. Merge returns ErrUnnormalizable
// and the entry is dropped by the caller with a counted skip.
//
// # Correlation
//
// The Correlator tracks the first half seen for each correlation ID in a
// PendingStore and emits a Record once the second half arrives. Halves that
// never find a partner are evicted after PendingTTL and emitted as synthetic
// records with Outcome "abandoned":
//
//	begin only -> Reason "end_timeout"
//	end only   -> Reason "begin_missing"
//
// Two PendingStore implementations are provided:
//
//   - MemoryPendingStore: map-backed, lost on restart (drained as
//     "shutdown" abandoned records by the engine on Stop)
//   - BadgerPendingStore: BadgerDB-backed, survives restarts so a begin
//     seen before a reboot can still merge with its end afterwards
//
// # Usage
//
//	c := audit.NewCorrelator(audit.NewMemoryPendingStore(), audit.CorrelatorConfig{
//	    PendingTTL: 10 * time.Minute,
//	})
//
//	rec, err := c.Observe(entry)
//	switch {
//	case errors.Is(err, audit.ErrUnnormalizable):
//	    // counted and dropped
//	case rec != nil:
//	    // merged record ready for delivery
//	}
package audit
