// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/auditwal/internal/logging"
)

// RecordSink receives abandoned records produced by a sweep.
type RecordSink func(records []Record)

// Sweeper periodically evicts expired halves from a Correlator.
type Sweeper struct {
	correlator *Correlator
	sink       RecordSink
	interval   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// State - all protected by mu
	mu       sync.Mutex
	running  bool
	stopping bool
	stopDone chan struct{}
}

// NewSweeper creates a sweeper. Abandoned records are handed to sink.
func NewSweeper(c *Correlator, interval time.Duration, sink RecordSink) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		correlator: c,
		sink:       sink,
		interval:   interval,
	}
}

// Start begins the sweep loop. It is a no-op if already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()

	for s.stopping {
		stopDone := s.stopDone
		s.mu.Unlock()
		<-stopDone
		s.mu.Lock()
	}

	if s.running {
		s.mu.Unlock()
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.stopDone = make(chan struct{})

	loopCtx := s.ctx
	done := s.stopDone

	s.mu.Unlock()

	go s.run(loopCtx, done)

	logging.Info().Dur("interval", s.interval).Msg("Audit correlator sweeper started")
	return nil
}

// Stop halts the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running || s.stopping {
		s.mu.Unlock()
		return
	}

	s.cancel()
	s.running = false
	s.stopping = true
	stopDone := s.stopDone
	s.mu.Unlock()

	<-stopDone

	s.mu.Lock()
	s.stopping = false
	s.mu.Unlock()

	logging.Info().Msg("Audit correlator sweeper stopped")
}

// IsRunning returns whether the loop is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce runs a single sweep and forwards any abandoned records.
func (s *Sweeper) SweepOnce() int {
	records, err := s.correlator.Sweep()
	if err != nil {
		logging.Error().Err(err).Msg("Audit correlator sweep failed")
		return 0
	}
	if len(records) == 0 {
		return 0
	}

	logging.Warn().Int("abandoned", len(records)).Msg("Emitting abandoned audit records for unmatched halves")
	if s.sink != nil {
		s.sink(records)
	}
	return len(records)
}
