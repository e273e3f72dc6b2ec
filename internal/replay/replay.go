// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package replay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/auditwal/internal/audit"
	"github.com/tomtom215/auditwal/internal/journal"
	"github.com/tomtom215/auditwal/internal/logging"
	"github.com/tomtom215/auditwal/internal/writer"
)

// Defaults.
const (
	DefaultBatchSize    = 500
	DefaultWriteTimeout = 10 * time.Second
)

// ErrAborted is returned when StopOnFailure ended a pass early.
var ErrAborted = errors.New("replay: aborted after batch failure")

// errWrite marks a failed WriteBatch, as opposed to a read or consume failure.
var errWrite = errors.New("write batch")

// Source is the subset of the journal a replay pass needs.
type Source interface {
	ScanAll() ([]journal.File, error)
	ReadLines(f journal.File, fn func(line []byte) error) error
	MarkConsumed(f journal.File) error
}

// Options tunes a Replayer.
type Options struct {
	// BatchSize bounds records per WriteBatch call. Default: 500
	BatchSize int

	// StopOnFailure ends the pass when a batch fails in a way that would
	// fail for every file too: a transient writer error or an open breaker.
	// A batch the destination rejects (writer.ErrRejected), an unreadable
	// file, or a consume failure only fails that file.
	StopOnFailure bool

	// WriteTimeout bounds each WriteBatch call. Default: 10s
	WriteTimeout time.Duration
}

// Stats summarizes one replay pass.
//
// RecordsReplayed counts records of consumed files only. Batches from a file
// that later failed are redelivered with the whole file next pass and are
// counted then.
type Stats struct {
	FilesScanned    int           `json:"files_scanned"`
	FilesConsumed   int           `json:"files_consumed"`
	FilesFailed     int           `json:"files_failed"`
	LinesScanned    int           `json:"lines_scanned"`
	Malformed       int           `json:"malformed"`
	BatchesEmitted  int           `json:"batches_emitted"`
	RecordsReplayed int           `json:"records_replayed"`
	Aborted         bool          `json:"aborted"`
	Duration        time.Duration `json:"duration"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.FilesScanned += o.FilesScanned
	s.FilesConsumed += o.FilesConsumed
	s.FilesFailed += o.FilesFailed
	s.LinesScanned += o.LinesScanned
	s.Malformed += o.Malformed
	s.BatchesEmitted += o.BatchesEmitted
	s.RecordsReplayed += o.RecordsReplayed
	s.Aborted = s.Aborted || o.Aborted
	s.Duration += o.Duration
}

// Replayer drains journal files through a writer. Passes are serialized.
type Replayer struct {
	src  Source
	w    writer.Writer
	opts Options

	mu sync.Mutex // serializes passes

	lastMu sync.Mutex
	last   Stats
}

// New creates a Replayer.
func New(src Source, w writer.Writer, opts Options) *Replayer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	return &Replayer{src: src, w: w, opts: opts}
}

// Run performs one pass over every drainable file. The returned error is
// non-nil only when the journal could not be listed, the context ended, or
// StopOnFailure aborted the pass. Per-file failures are reported in Stats.
func (r *Replayer) Run(ctx context.Context) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	var stats Stats

	files, err := r.src.ScanAll()
	if err != nil {
		return stats, fmt.Errorf("scan journal: %w", err)
	}

	var runErr error
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		stats.FilesScanned++
		ok, err := r.replayFile(ctx, f, &stats)
		if ok {
			continue
		}

		stats.FilesFailed++
		RecordFile("failed")
		logging.Warn().
			Err(err).
			Str("file", f.Name).
			Msg("Replay stopped file after failure, will retry on next pass")

		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		if r.opts.StopOnFailure && abortsPass(err) {
			stats.Aborted = true
			runErr = fmt.Errorf("%w: %s: %v", ErrAborted, f.Name, err)
			break
		}
	}

	stats.Duration = time.Since(start)
	RecordRun(&stats)
	r.lastMu.Lock()
	r.last = stats
	r.lastMu.Unlock()

	if stats.FilesScanned > 0 {
		logging.Info().
			Int("files_scanned", stats.FilesScanned).
			Int("files_consumed", stats.FilesConsumed).
			Int("files_failed", stats.FilesFailed).
			Int("lines", stats.LinesScanned).
			Int("malformed", stats.Malformed).
			Int("batches", stats.BatchesEmitted).
			Int("records", stats.RecordsReplayed).
			Dur("duration", stats.Duration).
			Msg("Journal replay pass complete")
	}

	return stats, runErr
}

// abortsPass reports whether err would fail every remaining file too.
func abortsPass(err error) bool {
	return errors.Is(err, errWrite) && !errors.Is(err, writer.ErrRejected)
}

// replayFile streams one file. It reports true when the file was fully
// delivered and marked consumed.
func (r *Replayer) replayFile(ctx context.Context, f journal.File, stats *Stats) (bool, error) {
	batch := make([]audit.Record, 0, r.opts.BatchSize)
	written := 0
	malformed := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.write(ctx, batch); err != nil {
			return fmt.Errorf("%w: %w", errWrite, err)
		}
		stats.BatchesEmitted++
		written += len(batch)
		batch = make([]audit.Record, 0, r.opts.BatchSize)
		return nil
	}

	lineNo := 0
	err := r.src.ReadLines(f, func(line []byte) error {
		lineNo++
		stats.LinesScanned++
		rec, err := journal.DecodeRecord(line)
		if err != nil {
			stats.Malformed++
			malformed++
			RecordMalformed()
			logging.Debug().Err(err).Str("file", f.Name).Int("line", lineNo).Msg("Skipping malformed journal line")
			return nil
		}
		batch = append(batch, rec)
		if len(batch) >= r.opts.BatchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if malformed > 0 {
		logging.Warn().
			Str("file", f.Name).
			Int("malformed", malformed).
			Int("lines", lineNo).
			Msg("Skipped malformed journal lines")
	}
	if err != nil {
		return false, err
	}

	if err := r.src.MarkConsumed(f); err != nil {
		return false, fmt.Errorf("mark consumed: %w", err)
	}
	stats.RecordsReplayed += written
	RecordReplayed(written)
	stats.FilesConsumed++
	RecordFile("consumed")
	return true, nil
}

func (r *Replayer) write(ctx context.Context, batch []audit.Record) error {
	wctx, cancel := context.WithTimeout(ctx, r.opts.WriteTimeout)
	defer cancel()
	return r.w.WriteBatch(wctx, batch)
}

// Last returns the stats of the most recent pass.
func (r *Replayer) Last() Stats {
	r.lastMu.Lock()
	defer r.lastMu.Unlock()
	return r.last
}
