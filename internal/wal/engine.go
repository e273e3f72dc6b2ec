// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package wal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/auditwal/internal/audit"
	"github.com/tomtom215/auditwal/internal/logging"
	"github.com/tomtom215/auditwal/internal/replay"
	"github.com/tomtom215/auditwal/internal/writer"
)

var (
	// ErrEngineClosed is returned by Append after Stop.
	ErrEngineClosed = errors.New("wal: engine is closed")

	// ErrFlushInProgress is returned when Flush is called while another
	// flush is running.
	ErrFlushInProgress = errors.New("wal: flush already in progress")
)

// Journal is the durable store the engine spills to and drains from.
type Journal interface {
	replay.Source
	Persist(records []audit.Record) error
	Seal() error
	Close() error
}

// AppendResult describes what happened to one entry.
type AppendResult struct {
	// Accepted is true when the entry was taken by the engine: queued,
	// spilled, or held as a pending half.
	Accepted bool `json:"accepted"`

	// Spilled is true when the append overflowed the queue into the journal.
	Spilled bool `json:"spilled,omitempty"`

	// Dropped is true when the entry was discarded as invalid,
	// unnormalizable, or a duplicate half.
	Dropped bool `json:"dropped,omitempty"`

	// Reason explains a drop.
	Reason string `json:"reason,omitempty"`

	// Record is the merged record when the entry completed a pair.
	Record *audit.Record `json:"record,omitempty"`
}

// FlushResult summarizes one flush.
type FlushResult struct {
	// Accepted counts records the writer confirmed, memory and backlog.
	Accepted int `json:"accepted"`

	// Journaled counts in-memory records written to the journal because
	// delivery failed.
	Journaled int `json:"journaled"`

	// Backlog is the journal drain pass, zero when it did not run. Only
	// records of files the pass consumed count toward Accepted.
	Backlog replay.Stats `json:"backlog"`

	Duration time.Duration `json:"duration"`
}

// Stats is a point-in-time view of the engine.
//
// Records always equals Delivered + Journaled + QueueDepth + InFlight.
type Stats struct {
	Running bool `json:"running"`
	Closed  bool `json:"closed"`

	Accepted int64 `json:"accepted"`
	Spills   int64 `json:"spills"`
	Dropped  int64 `json:"dropped"`

	Records          int64 `json:"records"`
	Delivered        int64 `json:"delivered"`
	Journaled        int64 `json:"journaled"`
	BacklogDelivered int64 `json:"backlog_delivered"`

	QueueDepth int `json:"queue_depth"`
	InFlight   int `json:"in_flight"`

	Flushes       int64        `json:"flushes"`
	FlushFailures int64        `json:"flush_failures"`
	LastFlush     FlushResult  `json:"last_flush"`
	LastFlushAt   time.Time    `json:"last_flush_at,omitempty"`
	LastReplay    replay.Stats `json:"last_replay"`

	Correlator audit.CorrelatorStats `json:"correlator"`
}

// Observer is told when a flush or replay finishes. Calls come from the
// flushing goroutine and must not block.
type Observer interface {
	FlushFinished(res FlushResult, result string, err error)
	ReplayFinished(stats replay.Stats, err error)
}

// Engine accepts audit entries, merges them into records and delivers the
// records through a Writer, falling back to the Journal when delivery fails
// or the queue is full.
type Engine struct {
	cfg        Config
	journal    Journal
	writer     writer.Writer
	correlator *audit.Correlator

	boot  *replay.Replayer
	drain *replay.Replayer
	loop  *FlushLoop

	// flightMu admits one flush (or replay) at a time.
	flightMu sync.Mutex

	// appendMu is read-held for the whole of Append. Stop takes it for
	// writing after closing, so every admitted append has placed its record
	// before the final flush starts.
	appendMu sync.RWMutex

	// mu guards the queue and every counter below.
	mu       sync.Mutex
	queue    []audit.Record
	inflight int
	closed   bool

	accepted         int64
	spills           int64
	dropped          int64
	records          int64
	delivered        int64
	journaled        int64
	backlogDelivered int64
	flushes          int64
	flushFailures    int64
	lastFlush        FlushResult
	lastFlushAt      time.Time
	lastReplay       replay.Stats
	observer         Observer
}

// NewEngine creates an engine. The journal and writer stay owned by the
// caller except that Stop closes the journal.
func NewEngine(cfg Config, j Journal, w writer.Writer, c *audit.Correlator) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if j == nil {
		return nil, errors.New("wal: journal is required")
	}
	if w == nil {
		return nil, errors.New("wal: writer is required")
	}
	if c == nil {
		return nil, errors.New("wal: correlator is required")
	}

	e := &Engine{
		cfg:        cfg,
		journal:    j,
		writer:     w,
		correlator: c,
		queue:      make([]audit.Record, 0, cfg.QueueCapacity),
		boot: replay.New(j, w, replay.Options{
			BatchSize:    cfg.ReplayBatchSize,
			WriteTimeout: cfg.WriteTimeout,
		}),
		drain: replay.New(j, w, replay.Options{
			BatchSize:     cfg.MaxBatchSize,
			WriteTimeout:  cfg.WriteTimeout,
			StopOnFailure: true,
		}),
	}
	e.loop = NewFlushLoop(e, cfg.Cadence())
	return e, nil
}

// SetObserver registers o for flush and replay notifications. Nil removes it.
func (e *Engine) SetObserver(o Observer) {
	e.mu.Lock()
	e.observer = o
	e.mu.Unlock()
}

// Append hands one entry to the engine. It never waits on the writer.
//
// Entries the correlator rejects are reported as Dropped with a nil error.
// A non-nil error means the entry could not be made durable and the caller
// still owns it.
func (e *Engine) Append(entry audit.Entry) (AppendResult, error) {
	e.appendMu.RLock()
	defer e.appendMu.RUnlock()

	if e.isClosed() {
		RecordAppend("rejected")
		return AppendResult{}, ErrEngineClosed
	}

	rec, err := e.correlator.Observe(entry)
	if err != nil {
		if reason, ok := dropReason(err); ok {
			e.mu.Lock()
			e.dropped++
			e.mu.Unlock()
			RecordAppend("dropped")
			logging.Debug().
				Err(err).
				Str("correlation_id", entry.CorrelationID).
				Str("phase", string(entry.Phase)).
				Msg("Audit entry dropped")
			return AppendResult{Dropped: true, Reason: reason}, nil
		}
		RecordAppend("rejected")
		return AppendResult{}, err
	}

	if rec == nil {
		e.mu.Lock()
		e.accepted++
		e.mu.Unlock()
		RecordAppend("accepted")
		return AppendResult{Accepted: true}, nil
	}

	e.mu.Lock()
	spilled, err := e.enqueueLocked([]audit.Record{*rec})
	if err != nil {
		// The pending half is already consumed, so the record must not be
		// lost: hold it past capacity until a flush or Stop can place it.
		e.queue = append(e.queue, *rec)
		e.records++
		UpdateQueueDepth(len(e.queue))
	}
	e.accepted++
	depth := len(e.queue)
	e.mu.Unlock()
	if err != nil {
		logging.Error().
			Err(err).
			Int("queue_depth", depth).
			Int("capacity", e.cfg.QueueCapacity).
			Msg("Journal spill failed, holding record in memory over capacity")
		RecordAppend("overflow")
		return AppendResult{Accepted: true, Record: rec}, nil
	}

	if spilled {
		RecordAppend("spilled")
	} else {
		RecordAppend("accepted")
	}
	return AppendResult{Accepted: true, Spilled: spilled, Record: rec}, nil
}

func dropReason(err error) (string, bool) {
	switch {
	case errors.Is(err, audit.ErrUnnormalizable):
		return "unnormalizable", true
	case errors.Is(err, audit.ErrInvalidEntry):
		return "invalid", true
	case errors.Is(err, audit.ErrDuplicateHalf):
		return "duplicate", true
	case errors.Is(err, audit.ErrPhaseMismatch), errors.Is(err, audit.ErrCorrelationMismatch):
		return "unmergeable", true
	}
	return "", false
}

// Enqueue adds already merged records, such as abandoned records from the
// sweeper. After Stop the records go straight to the journal.
func (e *Engine) Enqueue(records ...audit.Record) error {
	if len(records) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		if err := e.journal.Persist(records); err != nil {
			return fmt.Errorf("journal records after close: %w", err)
		}
		e.records += int64(len(records))
		e.journaled += int64(len(records))
		RecordJournaled(len(records))
		return nil
	}

	_, err := e.enqueueLocked(records)
	return err
}

// SweepSink adapts Enqueue to audit.RecordSink.
func (e *Engine) SweepSink() audit.RecordSink {
	return func(records []audit.Record) {
		if err := e.Enqueue(records...); err != nil {
			logging.Error().Err(err).Int("records", len(records)).Msg("Failed to enqueue abandoned audit records")
		}
	}
}

// enqueueLocked appends records, spilling the whole queue to the journal when
// they do not fit. On a spill failure the queue is left untouched.
func (e *Engine) enqueueLocked(records []audit.Record) (bool, error) {
	if len(e.queue)+len(records) <= e.cfg.QueueCapacity {
		e.queue = append(e.queue, records...)
		e.records += int64(len(records))
		UpdateQueueDepth(len(e.queue))
		return false, nil
	}

	spill := make([]audit.Record, 0, len(e.queue)+len(records))
	spill = append(spill, e.queue...)
	spill = append(spill, records...)
	if err := e.journal.Persist(spill); err != nil {
		return false, fmt.Errorf("spill to journal: %w", err)
	}

	e.queue = make([]audit.Record, 0, e.cfg.QueueCapacity)
	e.records += int64(len(records))
	e.journaled += int64(len(spill))
	e.spills++
	RecordSpill()
	RecordJournaled(len(spill))
	UpdateQueueDepth(0)

	logging.Warn().
		Int("records", len(spill)).
		Int("capacity", e.cfg.QueueCapacity).
		Msg("WAL queue full, spilled to journal")
	return true, nil
}

// Flush delivers queued records, then drains the journal backlog. Only one
// flush runs at a time; a concurrent call returns ErrFlushInProgress.
//
// Writer failures are not returned: the affected records are journaled and
// picked up by a later flush. An error means the journal itself failed.
func (e *Engine) Flush(ctx context.Context) (FlushResult, error) {
	if e.isClosed() {
		return FlushResult{}, ErrEngineClosed
	}
	if !e.flightMu.TryLock() {
		RecordFlush("skipped", 0)
		return FlushResult{}, ErrFlushInProgress
	}
	defer e.flightMu.Unlock()
	return e.flushLocked(ctx)
}

func (e *Engine) flushLocked(ctx context.Context) (FlushResult, error) {
	start := time.Now()
	var res FlushResult

	e.mu.Lock()
	pending := e.queue
	e.queue = make([]audit.Record, 0, e.cfg.QueueCapacity)
	e.inflight = len(pending)
	e.mu.Unlock()
	UpdateQueueDepth(0)

	var undelivered []audit.Record
	for i := 0; i < len(pending); i += e.cfg.MaxBatchSize {
		end := i + e.cfg.MaxBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[i:end]

		if err := e.write(ctx, batch); err != nil {
			RecordWriteFailure()
			logging.Warn().
				Err(err).
				Int("batch", len(batch)).
				Int("remaining", len(pending)-i).
				Msg("WAL delivery failed, journaling undelivered records")
			undelivered = pending[i:]
			break
		}

		res.Accepted += len(batch)
		RecordDelivered("memory", len(batch))
		e.mu.Lock()
		e.delivered += int64(len(batch))
		e.inflight -= len(batch)
		e.mu.Unlock()
	}

	if len(undelivered) > 0 {
		if err := e.journal.Persist(undelivered); err != nil {
			e.mu.Lock()
			e.queue = append(undelivered[:len(undelivered):len(undelivered)], e.queue...)
			e.inflight = 0
			depth := len(e.queue)
			e.mu.Unlock()
			UpdateQueueDepth(depth)
			return e.finishFlush(start, res, "error", fmt.Errorf("journal undelivered records: %w", err))
		}

		res.Journaled = len(undelivered)
		RecordJournaled(len(undelivered))
		e.mu.Lock()
		e.journaled += int64(len(undelivered))
		e.inflight = 0
		e.mu.Unlock()
		return e.finishFlush(start, res, "partial", nil)
	}

	// Memory is clear; now the backlog, oldest file first.
	if err := e.journal.Seal(); err != nil {
		return e.finishFlush(start, res, "error", fmt.Errorf("seal journal: %w", err))
	}

	stats, err := e.drain.Run(ctx)
	res.Backlog = stats
	res.Accepted += stats.RecordsReplayed
	RecordDelivered("journal", stats.RecordsReplayed)
	e.mu.Lock()
	e.backlogDelivered += int64(stats.RecordsReplayed)
	e.mu.Unlock()

	switch {
	case err == nil && stats.FilesFailed > 0:
		// Rejected or unreadable files stay in the journal; newer files
		// were still drained.
		logging.Warn().Int("files_failed", stats.FilesFailed).Msg("WAL backlog files left in journal, will retry on next flush")
		return e.finishFlush(start, res, "partial", nil)
	case err == nil:
		return e.finishFlush(start, res, "ok", nil)
	case errors.Is(err, replay.ErrAborted):
		logging.Warn().Err(err).Msg("WAL backlog drain stopped, will retry on next flush")
		return e.finishFlush(start, res, "partial", nil)
	case ctx.Err() != nil:
		return e.finishFlush(start, res, "partial", nil)
	default:
		return e.finishFlush(start, res, "error", fmt.Errorf("drain journal: %w", err))
	}
}

func (e *Engine) finishFlush(start time.Time, res FlushResult, result string, err error) (FlushResult, error) {
	res.Duration = time.Since(start)
	RecordFlush(result, res.Duration.Seconds())

	e.mu.Lock()
	e.flushes++
	if result != "ok" {
		e.flushFailures++
	}
	e.lastFlush = res
	e.lastFlushAt = time.Now()
	obs := e.observer
	e.mu.Unlock()

	if obs != nil {
		obs.FlushFinished(res, result, err)
	}
	return res, err
}

func (e *Engine) write(ctx context.Context, batch []audit.Record) error {
	wctx, cancel := context.WithTimeout(ctx, e.cfg.WriteTimeout)
	defer cancel()
	return e.writer.WriteBatch(wctx, batch)
}

// Replay drains every journal file left by a previous run. Call it once at
// boot before Start. Failed files are counted and left for the next flush.
func (e *Engine) Replay(ctx context.Context) (replay.Stats, error) {
	e.flightMu.Lock()
	defer e.flightMu.Unlock()

	stats, err := e.boot.Run(ctx)
	e.mu.Lock()
	e.lastReplay = stats
	e.backlogDelivered += int64(stats.RecordsReplayed)
	obs := e.observer
	e.mu.Unlock()
	RecordDelivered("journal", stats.RecordsReplayed)

	if obs != nil {
		obs.ReplayFinished(stats, err)
	}

	logging.Info().
		Int("files", stats.FilesScanned).
		Int("consumed", stats.FilesConsumed).
		Int("failed", stats.FilesFailed).
		Int("records", stats.RecordsReplayed).
		Int("malformed", stats.Malformed).
		Msg("Boot replay finished")
	return stats, err
}

// Start launches the flush loop. It does nothing when the cadence is 0.
func (e *Engine) Start(ctx context.Context) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	return e.loop.Start(ctx)
}

// Loop exposes the cadence loop so a supervisor can own its lifecycle.
// Stopping it does not close the engine.
func (e *Engine) Loop() *FlushLoop {
	return e.loop
}

// IsRunning reports whether the flush loop is active.
func (e *Engine) IsRunning() bool {
	return e.loop.IsRunning()
}

// Stop rejects further appends, stops the loop and runs a final flush.
// Records that still cannot be delivered are left in the journal. The
// journal is closed on return. Safe to call twice.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	// Wait out appends that passed the closed check.
	e.appendMu.Lock()
	e.appendMu.Unlock() //nolint:staticcheck // barrier only

	e.loop.Stop()

	e.flightMu.Lock()
	defer e.flightMu.Unlock()

	var errs []error

	// A volatile pending store would lose held halves on exit.
	if !e.correlator.Durable() {
		abandoned, err := e.correlator.Drain(audit.ReasonShutdown)
		if err != nil {
			errs = append(errs, err)
		}
		if len(abandoned) > 0 {
			e.mu.Lock()
			e.queue = append(e.queue, abandoned...)
			e.records += int64(len(abandoned))
			e.mu.Unlock()
			logging.Info().Int("records", len(abandoned)).Msg("Emitting pending halves as abandoned on shutdown")
		}
	}

	res, err := e.flushLocked(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	e.mu.Lock()
	rest := e.queue
	e.queue = nil
	if len(rest) > 0 {
		if perr := e.journal.Persist(rest); perr != nil {
			errs = append(errs, fmt.Errorf("journal remaining %d records: %w", len(rest), perr))
			e.queue = rest
		} else {
			e.journaled += int64(len(rest))
			RecordJournaled(len(rest))
		}
	}
	e.mu.Unlock()

	if err := e.journal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close journal: %w", err))
	}

	logging.Info().
		Int("accepted", res.Accepted).
		Int("journaled", res.Journaled).
		Msg("WAL engine stopped")
	return errors.Join(errs...)
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Stats returns a consistent snapshot.
func (e *Engine) Stats() Stats {
	cs := e.correlator.Stats()
	running := e.loop.IsRunning()

	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Running:          running,
		Closed:           e.closed,
		Accepted:         e.accepted,
		Spills:           e.spills,
		Dropped:          e.dropped,
		Records:          e.records,
		Delivered:        e.delivered,
		Journaled:        e.journaled,
		BacklogDelivered: e.backlogDelivered,
		QueueDepth:       len(e.queue),
		InFlight:         e.inflight,
		Flushes:          e.flushes,
		FlushFailures:    e.flushFailures,
		LastFlush:        e.lastFlush,
		LastFlushAt:      e.lastFlushAt,
		LastReplay:       e.lastReplay,
		Correlator:       cs,
	}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}
