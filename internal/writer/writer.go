// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

// Package writer delivers batches of audit records to their final destination.
//
// Every implementation honors one contract: WriteBatch returns nil only when
// the whole batch is durably delivered. Any error means "nothing delivered"
// and the caller retries the whole batch later, so destinations must be
// idempotent by correlation ID:
//
//   - HTTPWriter: remote ingest endpoint, bounded retries, credential rotation
//   - DBWriter: DuckDB or Postgres insert with ON CONFLICT DO NOTHING
//   - NATSWriter: JetStream publish with Nats-Msg-Id deduplication
//   - MemoryWriter: in-process map, used by tests and local development
package writer

import (
	"context"
	"errors"

	"github.com/tomtom215/auditwal/internal/audit"
)

// Writer delivers a batch of records.
type Writer interface {
	WriteBatch(ctx context.Context, records []audit.Record) error
}

// Func adapts a function to the Writer interface.
type Func func(ctx context.Context, records []audit.Record) error

// WriteBatch calls f.
func (f Func) WriteBatch(ctx context.Context, records []audit.Record) error {
	return f(ctx, records)
}

// Closer is implemented by writers holding connections.
type Closer interface {
	Close() error
}

// Sentinel errors.
var (
	// ErrUnauthorized is returned when every available credential was rejected.
	ErrUnauthorized = errors.New("writer: credentials rejected")

	// ErrRejected is returned for a non-retryable client error from the destination.
	ErrRejected = errors.New("writer: batch rejected by destination")

	// ErrCircuitOpen is returned while the circuit breaker short-circuits delivery.
	ErrCircuitOpen = errors.New("writer: circuit breaker open")

	// ErrInjected is the failure produced by MemoryWriter failure injection.
	ErrInjected = errors.New("writer: injected failure")
)
