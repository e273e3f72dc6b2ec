// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

// Package replay drains journaled audit records to a writer.
//
// A replay pass lists sealed journal segments oldest first and streams each
// one in bounded batches:
//
//   - Malformed lines are skipped and counted, never fatal.
//   - A batch failure stops the current file. The file stays on disk for the
//     next pass and the replayer moves on to the next file (or aborts when
//     StopOnFailure is set).
//   - A file is marked consumed only after every batch it produced was
//     accepted by the writer.
//
// Because a file that failed mid-way is replayed from the start next time,
// writers must be idempotent by correlation ID.
//
// The same Replayer runs once at boot and, with StopOnFailure, inside every
// engine flush to deliver the backlog after in-memory records.
package replay
