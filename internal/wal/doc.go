// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

// Package wal provides the audit WAL Engine: the single entry point producers
// call to record audit entries.
//
// The engine guarantees that an accepted entry is never lost. Append returns
// once the entry is durably queued, not once it is delivered:
//
//	Append(entry) → Correlator → in-memory queue ──flush──→ Writer
//	                                  │ (full)              │ (failure)
//	                                  ▼                     ▼
//	                               Journal ◀────────────────┘
//	                                  │
//	                                  └──flush / boot replay──→ Writer → MarkConsumed
//
// # Components
//
//   - Engine: bounded queue with spill-to-journal, Flush, Replay, Stop
//   - FlushLoop: background ticker calling Flush every cadence
//   - Config: tuning with fail-fast validation (ConfigError)
//
// # Flush ordering
//
// Flush delivers in-memory records first, in batches of MaxBatchSize. A batch
// that fails is journaled and the remaining in-memory records go straight to
// the journal without further attempts. Only when the in-memory phase fully
// succeeded does Flush seal the journal and drain the backlog through a
// replay.Replayer that stops at the first failure.
//
// Only one Flush runs at a time. A concurrent call returns
// ErrFlushInProgress, which the ticker treats as a skipped tick.
//
// # Usage
//
//	eng, err := wal.NewEngine(cfg, j, w, correlator)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := eng.Replay(ctx); err != nil {
//	    logging.Warn().Err(err).Msg("boot replay incomplete")
//	}
//	eng.Start(ctx)
//	defer eng.Stop(context.Background())
//
//	res, err := eng.Append(entry)
package wal
