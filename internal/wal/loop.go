// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package wal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/auditwal/internal/logging"
)

// Flusher is the part of the Engine the loop drives.
type Flusher interface {
	Flush(ctx context.Context) (FlushResult, error)
}

// FlushLoop calls Flush on a fixed cadence.
type FlushLoop struct {
	flusher  Flusher
	interval time.Duration
	ticks    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	// State - all protected by mu
	mu       sync.Mutex
	running  bool
	stopping bool
	stopDone chan struct{}
}

// NewFlushLoop creates a loop. An interval <= 0 yields a loop that never starts.
func NewFlushLoop(f Flusher, interval time.Duration) *FlushLoop {
	return &FlushLoop{
		flusher:  f,
		interval: interval,
	}
}

// Start begins the background loop. It is a no-op when already running or
// when the interval is zero.
func (l *FlushLoop) Start(ctx context.Context) error {
	if l.interval <= 0 {
		logging.Info().Msg("WAL flush timer disabled, flushes run on demand and at shutdown")
		return nil
	}

	l.mu.Lock()

	// Wait for a previous Stop to finish so two run goroutines never overlap.
	for l.stopping {
		stopDone := l.stopDone
		l.mu.Unlock()
		<-stopDone
		l.mu.Lock()
	}

	if l.running {
		l.mu.Unlock()
		return nil
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.running = true
	l.stopDone = make(chan struct{})

	loopCtx := l.ctx
	done := l.stopDone

	l.mu.Unlock()

	go l.run(loopCtx, done)

	logging.Info().Dur("interval", l.interval).Msg("WAL flush loop started")
	return nil
}

// Stop halts the loop and waits for an in-progress tick to return.
func (l *FlushLoop) Stop() {
	l.mu.Lock()
	if !l.running || l.stopping {
		l.mu.Unlock()
		return
	}

	l.cancel()
	l.running = false
	l.stopping = true
	stopDone := l.stopDone
	l.mu.Unlock()

	<-stopDone

	l.mu.Lock()
	l.stopping = false
	l.mu.Unlock()

	logging.Info().Int64("ticks", l.ticks.Load()).Msg("WAL flush loop stopped")
}

// IsRunning returns whether the loop is active.
func (l *FlushLoop) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Ticks returns how many ticks have fired.
func (l *FlushLoop) Ticks() int64 {
	return l.ticks.Load()
}

func (l *FlushLoop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *FlushLoop) tick(ctx context.Context) {
	l.ticks.Add(1)
	res, err := l.flusher.Flush(ctx)
	switch {
	case errors.Is(err, ErrFlushInProgress):
		logging.Debug().Msg("WAL flush tick skipped, previous flush still running")
	case errors.Is(err, ErrEngineClosed):
		logging.Debug().Msg("WAL flush tick after engine stop ignored")
	case err != nil:
		logging.Warn().Err(err).Msg("WAL flush tick failed")
	case res.Accepted > 0 || res.Journaled > 0:
		logging.Debug().
			Int("accepted", res.Accepted).
			Int("journaled", res.Journaled).
			Dur("duration", res.Duration).
			Msg("WAL flush tick complete")
	}
}
