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
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/auditwal/internal/audit"
	"github.com/tomtom215/auditwal/internal/journal"
	"github.com/tomtom215/auditwal/internal/replay"
	"github.com/tomtom215/auditwal/internal/writer"
)

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func beginEntry(id string) audit.Entry {
	return audit.Entry{
		Phase:         audit.PhaseBegin,
		EventID:       "b-" + id,
		CorrelationID: id,
		Service:       "orders",
		Timestamp:     testStart,
	}
}

func endEntry(id string, code int) audit.Entry {
	return audit.Entry{
		Phase:         audit.PhaseEnd,
		EventID:       "e-" + id,
		CorrelationID: id,
		Service:       "orders",
		Timestamp:     testStart.Add(25 * time.Millisecond),
		HTTPCode:      intPtr(code),
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.CadenceMs = 0
	cfg.WriteTimeout = time.Second
	return cfg
}

type harness struct {
	engine  *Engine
	journal *journal.Journal
	writer  *writer.MemoryWriter
	dir     string
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	return newHarnessAt(t, cfg, t.TempDir(), writer.NewMemoryWriter())
}

func newHarnessAt(t *testing.T, cfg Config, dir string, w *writer.MemoryWriter) *harness {
	t.Helper()
	j, err := journal.Open(journal.Config{Dir: dir})
	if err != nil {
		t.Fatalf("journal.Open() error = %v", err)
	}
	c := audit.NewCorrelator(audit.NewMemoryPendingStore(), audit.CorrelatorConfig{})
	e, err := NewEngine(cfg, j, w, c)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	t.Cleanup(func() {
		_ = e.Stop(context.Background())
		_ = c.Close()
	})
	return &harness{engine: e, journal: j, writer: w, dir: dir}
}

// pair appends a begin and an end for id and returns the end's result.
func (h *harness) pair(t *testing.T, id string, code int) AppendResult {
	t.Helper()
	if _, err := h.engine.Append(beginEntry(id)); err != nil {
		t.Fatalf("Append(begin %s) error = %v", id, err)
	}
	res, err := h.engine.Append(endEntry(id, code))
	if err != nil {
		t.Fatalf("Append(end %s) error = %v", id, err)
	}
	return res
}

func assertBalanced(t *testing.T, s Stats) {
	t.Helper()
	if got := s.Delivered + s.Journaled + int64(s.QueueDepth) + int64(s.InFlight); got != s.Records {
		t.Errorf("records = %d but delivered+journaled+queued+inflight = %d (%+v)", s.Records, got, s)
	}
}

func TestEngine_HappyPath(t *testing.T) {
	h := newHarness(t, testConfig())

	res := h.pair(t, "c1", 201)
	if !res.Accepted || res.Record == nil {
		t.Fatalf("Append(end) = %+v, want accepted merged record", res)
	}
	if res.Record.Status != audit.StatusOK || res.Record.DurationMs != 25 {
		t.Errorf("record = %+v", res.Record)
	}

	fr, err := h.engine.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if fr.Accepted != 1 || fr.Journaled != 0 {
		t.Errorf("Flush() = %+v, want accepted 1", fr)
	}

	batches := h.writer.Batches()
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("batches = %v, want one batch of one", batches)
	}
	if got := batches[0][0]; got.CorrelationID != "c1" || got.Status != audit.StatusOK {
		t.Errorf("delivered %+v", got)
	}

	// Nothing left: a second flush is a no-op.
	fr, err = h.engine.Flush(context.Background())
	if err != nil || fr.Accepted != 0 {
		t.Errorf("second Flush() = %+v, %v", fr, err)
	}
	assertBalanced(t, h.engine.Stats())
}

func TestEngine_ErrorStatusFromHTTPCode(t *testing.T) {
	h := newHarness(t, testConfig())
	res := h.pair(t, "c1", 503)
	if res.Record == nil || res.Record.Status != audit.StatusError {
		t.Fatalf("record = %+v, want status error", res.Record)
	}
}

func TestEngine_DropsUnnormalizableEnd(t *testing.T) {
	h := newHarness(t, testConfig())

	if _, err := h.engine.Append(beginEntry("c1")); err != nil {
		t.Fatal(err)
	}
	bad := endEntry("c1", 200)
	bad.HTTPCode = nil

	res, err := h.engine.Append(bad)
	if err != nil {
		t.Fatalf("Append() error = %v, want nil for a dropped entry", err)
	}
	if !res.Dropped || res.Accepted || res.Reason != "unnormalizable" {
		t.Errorf("Append() = %+v, want dropped", res)
	}

	s := h.engine.Stats()
	if s.Dropped != 1 || s.Records != 0 {
		t.Errorf("stats = %+v", s)
	}
	if s.Correlator.Pending != 1 {
		t.Errorf("begin was consumed by a dropped end, pending = %d", s.Correlator.Pending)
	}

	// The begin still pairs with a good end.
	if res := h.end(t, "c1"); res.Record == nil {
		t.Error("begin did not merge after the bad end was dropped")
	}
}

// end appends only the end half.
func (h *harness) end(t *testing.T, id string) AppendResult {
	t.Helper()
	res, err := h.engine.Append(endEntry(id, 200))
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func TestEngine_DropsInvalidAndDuplicate(t *testing.T) {
	h := newHarness(t, testConfig())

	res, err := h.engine.Append(audit.Entry{Phase: audit.PhaseBegin, EventID: "x"})
	if err != nil || !res.Dropped || res.Reason != "invalid" {
		t.Errorf("missing correlation id: %+v, %v", res, err)
	}

	if _, err := h.engine.Append(beginEntry("c1")); err != nil {
		t.Fatal(err)
	}
	res, err = h.engine.Append(beginEntry("c1"))
	if err != nil || !res.Dropped || res.Reason != "duplicate" {
		t.Errorf("duplicate begin: %+v, %v", res, err)
	}
}

func TestEngine_OutageThenRecovery(t *testing.T) {
	h := newHarness(t, testConfig())
	h.writer.SetFailing(true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h.pair(t, fmt.Sprintf("c%d", i), 200)
		fr, err := h.engine.Flush(ctx)
		if err != nil {
			t.Fatalf("Flush() during outage error = %v", err)
		}
		if fr.Accepted != 0 || fr.Journaled != 1 {
			t.Errorf("outage flush %d = %+v, want journaled 1", i, fr)
		}
	}
	if h.writer.Len() != 0 {
		t.Fatalf("writer stored %d during outage", h.writer.Len())
	}

	h.writer.SetFailing(false)
	fr, err := h.engine.Flush(ctx)
	if err != nil {
		t.Fatalf("recovery Flush() error = %v", err)
	}
	if fr.Accepted != 3 || fr.Backlog.RecordsReplayed != 3 {
		t.Errorf("recovery flush = %+v, want 3 from backlog", fr)
	}
	if h.writer.Len() != 3 {
		t.Errorf("writer stored %d, want 3", h.writer.Len())
	}

	files, err := h.journal.ScanAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("backlog files remaining = %d, want 0", len(files))
	}

	s := h.engine.Stats()
	if s.BacklogDelivered != 3 || s.Journaled != 3 || s.FlushFailures != 3 {
		t.Errorf("stats = %+v", s)
	}
	assertBalanced(t, s)
}

func TestEngine_MemoryBeforeBacklog(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	h.writer.SetFailing(true)
	h.pair(t, "old", 200)
	if _, err := h.engine.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	h.writer.SetFailing(false)

	h.pair(t, "new", 200)
	if _, err := h.engine.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	got := h.writer.Delivered()
	if len(got) != 2 || got[0].CorrelationID != "new" || got[1].CorrelationID != "old" {
		t.Errorf("delivery order = %v, want in-memory record before backlog", h.writer.IDs())
	}
}

func TestEngine_BackpressureSpills(t *testing.T) {
	cfg := testConfig()
	cfg.QueueCapacity = 2
	h := newHarness(t, cfg)

	if res := h.pair(t, "c1", 200); res.Spilled {
		t.Error("first record spilled")
	}
	if res := h.pair(t, "c2", 200); res.Spilled {
		t.Error("second record spilled")
	}
	res := h.pair(t, "c3", 200)
	if !res.Spilled || !res.Accepted {
		t.Fatalf("third record = %+v, want accepted and spilled", res)
	}

	s := h.engine.Stats()
	if s.QueueDepth != 0 || s.Journaled != 3 || s.Spills != 1 {
		t.Errorf("after spill stats = %+v", s)
	}
	assertBalanced(t, s)

	h.pair(t, "c4", 200)
	s = h.engine.Stats()
	if s.QueueDepth != 1 || s.Records != 4 {
		t.Errorf("after fourth stats = %+v", s)
	}
	assertBalanced(t, s)

	fr, err := h.engine.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if fr.Accepted != 4 {
		t.Errorf("Flush() accepted = %d, want 4", fr.Accepted)
	}
	if h.writer.Len() != 4 {
		t.Errorf("writer stored %d, want 4", h.writer.Len())
	}
}

// brokenJournal fails Persist while broken is set.
type brokenJournal struct {
	*journal.Journal
	broken bool
}

func (b *brokenJournal) Persist(records []audit.Record) error {
	if b.broken {
		return errors.New("disk full")
	}
	return b.Journal.Persist(records)
}

func TestEngine_SpillFailureHoldsRecord(t *testing.T) {
	j, err := journal.Open(journal.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	bj := &brokenJournal{Journal: j, broken: true}
	w := writer.NewMemoryWriter()
	c := audit.NewCorrelator(audit.NewMemoryPendingStore(), audit.CorrelatorConfig{})
	cfg := testConfig()
	cfg.QueueCapacity = 1
	e, err := NewEngine(cfg, bj, w, c)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = e.Stop(context.Background())
		_ = c.Close()
	})
	h := &harness{engine: e, journal: j, writer: w}

	h.pair(t, "c1", 200)
	res := h.pair(t, "c2", 200)
	if !res.Accepted || res.Spilled || res.Record == nil {
		t.Fatalf("overflow append = %+v, want accepted and held", res)
	}

	s := e.Stats()
	if s.QueueDepth != 2 || s.Journaled != 0 {
		t.Errorf("stats = %+v, want both records held in memory", s)
	}
	assertBalanced(t, s)

	bj.broken = false
	if _, err := e.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if w.Len() != 2 {
		t.Errorf("delivered %d, want 2", w.Len())
	}
}

func TestEngine_BatchesBounded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBatchSize = 2
	h := newHarness(t, cfg)
	for i := 0; i < 5; i++ {
		h.pair(t, fmt.Sprintf("c%d", i), 200)
	}

	if _, err := h.engine.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	batches := h.writer.Batches()
	if len(batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(batches))
	}
	for i, want := range []int{2, 2, 1} {
		if len(batches[i]) != want {
			t.Errorf("batch %d = %d records, want %d", i, len(batches[i]), want)
		}
	}
}

func TestEngine_FailedBatchJournalsRemainder(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBatchSize = 2
	h := newHarness(t, cfg)
	for i := 0; i < 5; i++ {
		h.pair(t, fmt.Sprintf("c%d", i), 200)
	}

	h.writer.FailNext(1)
	fr, err := h.engine.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if fr.Accepted != 0 || fr.Journaled != 5 {
		t.Errorf("Flush() = %+v, want all 5 journaled", fr)
	}
	if h.writer.Calls() != 1 {
		t.Errorf("writer calls = %d, want 1 (no attempts after the first failure)", h.writer.Calls())
	}
	assertBalanced(t, h.engine.Stats())
}

func TestEngine_WriteTimeoutJournals(t *testing.T) {
	cfg := testConfig()
	cfg.WriteTimeout = 20 * time.Millisecond
	h := newHarness(t, cfg)
	h.writer.SetDelay(time.Minute)
	h.pair(t, "c1", 200)

	start := time.Now()
	fr, err := h.engine.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if fr.Journaled != 1 {
		t.Errorf("Flush() = %+v, want journaled 1", fr)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("write timeout not enforced, flush took %v", time.Since(start))
	}
}

func TestEngine_CrashDurability(t *testing.T) {
	dir := t.TempDir()
	failing := writer.NewMemoryWriter()
	failing.SetFailing(true)

	first := newHarnessAt(t, testConfig(), dir, failing)
	first.pair(t, "c1", 200)
	first.pair(t, "c2", 500)
	if _, err := first.engine.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	// No Stop: the process dies here with an open segment.

	w := writer.NewMemoryWriter()
	second := newHarnessAt(t, testConfig(), dir, w)
	stats, err := second.engine.Replay(context.Background())
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if stats.RecordsReplayed != 2 {
		t.Errorf("Replay() = %+v, want 2 records", stats)
	}
	if _, ok := w.Get("c2"); !ok {
		t.Error("error-channel record not replayed")
	}
	if second.engine.Stats().LastReplay.RecordsReplayed != 2 {
		t.Error("LastReplay not recorded")
	}
}

func TestEngine_ReplayIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := writer.NewMemoryWriter()

	failing := writer.NewMemoryWriter()
	failing.SetFailing(true)
	first := newHarnessAt(t, testConfig(), dir, failing)
	first.pair(t, "c1", 200)
	if _, err := first.engine.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The destination already holds c1 from a delivery whose ack was lost.
	if err := w.WriteBatch(context.Background(), []audit.Record{{CorrelationID: "c1", Status: audit.StatusOK}}); err != nil {
		t.Fatal(err)
	}

	second := newHarnessAt(t, testConfig(), dir, w)
	if _, err := second.engine.Replay(context.Background()); err != nil {
		t.Fatal(err)
	}
	if w.Len() != 1 {
		t.Errorf("stored = %d, want 1", w.Len())
	}
	if len(w.Delivered()) != 2 {
		t.Errorf("deliveries = %d, want 2", len(w.Delivered()))
	}
}

func TestEngine_StopFlushesAndAbandonsPending(t *testing.T) {
	h := newHarness(t, testConfig())
	h.pair(t, "done", 200)
	if _, err := h.engine.Append(beginEntry("open")); err != nil {
		t.Fatal(err)
	}

	if err := h.engine.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if h.writer.Len() != 2 {
		t.Fatalf("writer stored %d, want 2", h.writer.Len())
	}
	rec, ok := h.writer.Get("open")
	if !ok {
		t.Fatal("pending half not emitted on stop")
	}
	if rec.Outcome != audit.OutcomeAbandoned || rec.Reason != audit.ReasonShutdown || rec.Status != audit.StatusError {
		t.Errorf("abandoned record = %+v", rec)
	}

	if _, err := h.engine.Append(beginEntry("late")); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Append() after Stop error = %v, want ErrEngineClosed", err)
	}
	if _, err := h.engine.Flush(context.Background()); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Flush() after Stop error = %v, want ErrEngineClosed", err)
	}
	if err := h.engine.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestEngine_StopNeverDiscards(t *testing.T) {
	dir := t.TempDir()
	failing := writer.NewMemoryWriter()
	failing.SetFailing(true)

	h := newHarnessAt(t, testConfig(), dir, failing)
	h.pair(t, "c1", 200)
	if err := h.engine.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s := h.engine.Stats(); s.Journaled != 1 {
		t.Errorf("Journaled = %d, want 1", s.Journaled)
	}

	w := writer.NewMemoryWriter()
	next := newHarnessAt(t, testConfig(), dir, w)
	if _, err := next.engine.Replay(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := w.Get("c1"); !ok {
		t.Error("record journaled at shutdown was not replayed")
	}
}

// gatedStore is a durable pending store whose next Take blocks until gate
// is closed, holding an Append inside the correlator.
type gatedStore struct {
	*audit.MemoryPendingStore
	armed   atomic.Bool
	entered chan struct{}
	gate    chan struct{}
}

func (s *gatedStore) Take(correlationID string) (audit.PendingHalf, bool, error) {
	if s.armed.CompareAndSwap(true, false) {
		close(s.entered)
		<-s.gate
	}
	return s.MemoryPendingStore.Take(correlationID)
}

func (s *gatedStore) Durable() bool { return true }

func TestEngine_StopWaitsForInFlightAppend(t *testing.T) {
	store := &gatedStore{
		MemoryPendingStore: audit.NewMemoryPendingStore(),
		entered:            make(chan struct{}),
		gate:               make(chan struct{}),
	}
	j, err := journal.Open(journal.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	w := writer.NewMemoryWriter()
	c := audit.NewCorrelator(store, audit.CorrelatorConfig{})
	e, err := NewEngine(testConfig(), j, w, c)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = e.Stop(context.Background())
		_ = c.Close()
	})

	if _, err := e.Append(beginEntry("c1")); err != nil {
		t.Fatal(err)
	}

	store.armed.Store(true)
	appended := make(chan AppendResult, 1)
	go func() {
		res, err := e.Append(endEntry("c1", 200))
		if err != nil {
			t.Errorf("Append(end) error = %v", err)
		}
		appended <- res
	}()
	<-store.entered

	stopped := make(chan error, 1)
	go func() { stopped <- e.Stop(context.Background()) }()

	select {
	case err := <-stopped:
		t.Fatalf("Stop() returned (%v) while an append was still inside the correlator", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(store.gate)

	res := <-appended
	if err := <-stopped; err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !res.Accepted || res.Record == nil {
		t.Fatalf("Append(end) = %+v, want accepted merged record", res)
	}
	if _, ok := w.Get("c1"); !ok {
		t.Error("record accepted while Stop ran was not delivered by the final flush")
	}

	s := e.Stats()
	if s.QueueDepth != 0 || s.Records != 1 || s.Delivered != 1 {
		t.Errorf("stats = %+v, want the record delivered and nothing queued", s)
	}
	assertBalanced(t, s)
}

func TestEngine_ConcurrentAppendsNeverLoseRecords(t *testing.T) {
	cfg := testConfig()
	cfg.CadenceMs = 2
	cfg.QueueCapacity = 2
	cfg.MaxBatchSize = 2
	h := newHarness(t, cfg)
	h.writer.FailNext(5)

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for g := 0; g < workers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := fmt.Sprintf("w%d-%d", g, i)
				if _, err := h.engine.Append(beginEntry(id)); err != nil {
					t.Errorf("Append(begin %s) error = %v", id, err)
					return
				}
				res, err := h.engine.Append(endEntry(id, 200))
				if err != nil || !res.Accepted || res.Record == nil {
					t.Errorf("Append(end %s) = %+v, %v", id, res, err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	if err := h.engine.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	s := h.engine.Stats()
	want := workers * perWorker
	if s.Records != int64(want) {
		t.Errorf("Records = %d, want %d", s.Records, want)
	}
	if s.QueueDepth != 0 || s.InFlight != 0 {
		t.Errorf("after Stop queue=%d inflight=%d, want 0", s.QueueDepth, s.InFlight)
	}
	if s.Delivered+s.Journaled != int64(want) {
		t.Errorf("delivered %d + journaled %d != %d", s.Delivered, s.Journaled, want)
	}
	assertBalanced(t, s)

	// Every record is either at the destination or in the journal.
	seen := make(map[string]bool, want)
	for _, id := range h.writer.IDs() {
		seen[id] = true
	}
	j, err := journal.Open(journal.Config{Dir: h.dir})
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	files, err := j.ScanAll()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		err := j.ReadLines(f, func(line []byte) error {
			rec, err := journal.DecodeRecord(line)
			if err != nil {
				return err
			}
			seen[rec.CorrelationID] = true
			return nil
		})
		if err != nil {
			t.Fatalf("ReadLines(%s) error = %v", f.Name, err)
		}
	}
	if len(seen) != want {
		t.Errorf("records found at destination or in journal = %d, want %d", len(seen), want)
	}
}

func TestEngine_RejectedBacklogFileDoesNotBlockNewer(t *testing.T) {
	j, err := journal.Open(journal.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	store := writer.NewMemoryWriter()
	var down atomic.Bool
	w := writer.Func(func(ctx context.Context, records []audit.Record) error {
		if down.Load() {
			return errors.New("destination unreachable")
		}
		for i := range records {
			if records[i].CorrelationID == "poison" {
				return fmt.Errorf("%w: status 400", writer.ErrRejected)
			}
		}
		return store.WriteBatch(ctx, records)
	})
	c := audit.NewCorrelator(audit.NewMemoryPendingStore(), audit.CorrelatorConfig{})
	e, err := NewEngine(testConfig(), j, w, c)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = e.Stop(context.Background())
		_ = c.Close()
	})
	ctx := context.Background()

	appendPair := func(id string) {
		t.Helper()
		if _, err := e.Append(beginEntry(id)); err != nil {
			t.Fatal(err)
		}
		if _, err := e.Append(endEntry(id, 200)); err != nil {
			t.Fatal(err)
		}
	}

	// The oldest sealed file holds a record the destination always rejects.
	appendPair("poison")
	if fr, err := e.Flush(ctx); err != nil || fr.Journaled != 1 {
		t.Fatalf("Flush() = %+v, %v, want the rejected record journaled", fr, err)
	}
	// Seals the segment holding it; the drain fails only that file.
	if fr, err := e.Flush(ctx); err != nil || fr.Backlog.FilesFailed != 1 || fr.Backlog.Aborted {
		t.Fatalf("Flush() = %+v, %v, want one failed file and no abort", fr, err)
	}
	down.Store(true)
	for _, id := range []string{"g1", "g2", "g3"} {
		appendPair(id)
	}
	if fr, err := e.Flush(ctx); err != nil || fr.Journaled != 3 {
		t.Fatalf("outage Flush() = %+v, %v, want 3 journaled", fr, err)
	}
	down.Store(false)

	fr, err := e.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if fr.Accepted != 3 || fr.Backlog.Aborted || fr.Backlog.FilesFailed != 1 {
		t.Errorf("Flush() = %+v, want 3 delivered past the rejected file", fr)
	}
	for _, id := range []string{"g1", "g2", "g3"} {
		if _, ok := store.Get(id); !ok {
			t.Errorf("%s stuck behind the rejected file", id)
		}
	}

	files, err := j.ScanAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("remaining files = %+v, want only the rejected one", files)
	}
	if s := e.Stats(); s.BacklogDelivered != 3 {
		t.Errorf("BacklogDelivered = %d, want 3", s.BacklogDelivered)
	}
}

func TestEngine_ConcurrentFlushRejected(t *testing.T) {
	h := newHarness(t, testConfig())
	h.writer.SetDelay(300 * time.Millisecond)
	h.pair(t, "c1", 200)

	done := make(chan error, 1)
	go func() {
		_, err := h.engine.Flush(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for h.engine.Stats().InFlight == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first flush never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := h.engine.Flush(context.Background()); !errors.Is(err, ErrFlushInProgress) {
		t.Errorf("concurrent Flush() error = %v, want ErrFlushInProgress", err)
	}
	if err := <-done; err != nil {
		t.Errorf("first Flush() error = %v", err)
	}
	if h.writer.Len() != 1 {
		t.Errorf("stored = %d, want 1", h.writer.Len())
	}
}

func TestEngine_CadenceZeroNeverTicks(t *testing.T) {
	h := newHarness(t, testConfig())
	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.engine.IsRunning() {
		t.Error("loop running with cadence 0")
	}
	h.pair(t, "c1", 200)
	time.Sleep(50 * time.Millisecond)
	if h.writer.Calls() != 0 {
		t.Errorf("writer called %d times without a flush", h.writer.Calls())
	}
}

func TestEngine_CadenceFlushes(t *testing.T) {
	cfg := testConfig()
	cfg.CadenceMs = 10
	h := newHarness(t, cfg)

	if err := h.engine.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !h.engine.IsRunning() {
		t.Fatal("loop not running")
	}
	h.pair(t, "c1", 200)

	deadline := time.Now().Add(2 * time.Second)
	for h.writer.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timer never flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := h.engine.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.engine.IsRunning() {
		t.Error("loop still running after Stop")
	}
}

func TestEngine_SweepSinkEnqueues(t *testing.T) {
	h := newHarness(t, testConfig())
	rec := audit.Abandon(&audit.Entry{
		Phase: audit.PhaseBegin, EventID: "b", CorrelationID: "swept", Service: "orders", Timestamp: testStart,
	}, audit.ReasonEndTimeout, testStart.Add(time.Hour))

	h.engine.SweepSink()([]audit.Record{rec})
	if s := h.engine.Stats(); s.QueueDepth != 1 || s.Records != 1 {
		t.Errorf("stats = %+v", s)
	}
	if _, err := h.engine.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got, ok := h.writer.Get("swept"); !ok || got.Reason != audit.ReasonEndTimeout {
		t.Errorf("swept record = %+v, %v", got, ok)
	}
}

func TestNewEngine_Validation(t *testing.T) {
	j, err := journal.Open(journal.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	c := audit.NewCorrelator(audit.NewMemoryPendingStore(), audit.CorrelatorConfig{})
	w := writer.NewMemoryWriter()

	bad := testConfig()
	bad.QueueCapacity = 0
	if _, err := NewEngine(bad, j, w, c); err == nil {
		t.Error("invalid config accepted")
	}
	if _, err := NewEngine(testConfig(), nil, w, c); err == nil {
		t.Error("nil journal accepted")
	}
	if _, err := NewEngine(testConfig(), j, nil, c); err == nil {
		t.Error("nil writer accepted")
	}
	if _, err := NewEngine(testConfig(), j, w, nil); err == nil {
		t.Error("nil correlator accepted")
	}
}

type recordingObserver struct {
	flushes []string
	replays int
}

func (o *recordingObserver) FlushFinished(_ FlushResult, result string, _ error) {
	o.flushes = append(o.flushes, result)
}

func (o *recordingObserver) ReplayFinished(replay.Stats, error) {
	o.replays++
}

func TestEngine_ObserverNotified(t *testing.T) {
	h := newHarness(t, testConfig())
	obs := &recordingObserver{}
	h.engine.SetObserver(obs)

	if _, err := h.engine.Replay(context.Background()); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	h.pair(t, "c1", 200)
	if _, err := h.engine.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if obs.replays != 1 {
		t.Errorf("replays = %d, want 1", obs.replays)
	}
	if len(obs.flushes) != 1 || obs.flushes[0] != "ok" {
		t.Errorf("flushes = %v, want [ok]", obs.flushes)
	}

	h.engine.SetObserver(nil)
	if _, err := h.engine.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(obs.flushes) != 1 {
		t.Errorf("observer called after removal: %v", obs.flushes)
	}
}
