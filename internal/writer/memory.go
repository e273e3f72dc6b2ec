// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package writer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/auditwal/internal/audit"
)

const modeMemory = "memory"

// MemoryWriter stores records in memory keyed by correlation ID.
// Failures can be injected to simulate a destination outage.
type MemoryWriter struct {
	mu      sync.Mutex
	records map[string]audit.Record
	batches [][]audit.Record
	calls   int

	failNext int
	failAll  bool
	delay    time.Duration
}

// NewMemoryWriter creates an empty writer.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{records: make(map[string]audit.Record)}
}

// WriteBatch stores the batch unless a failure is injected.
func (m *MemoryWriter) WriteBatch(ctx context.Context, records []audit.Record) error {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	start := time.Now()
	if m.failAll {
		RecordBatch(modeMemory, len(records), 0, ErrInjected)
		return ErrInjected
	}
	if m.failNext > 0 {
		m.failNext--
		RecordBatch(modeMemory, len(records), 0, ErrInjected)
		return ErrInjected
	}

	batch := make([]audit.Record, len(records))
	copy(batch, records)
	m.batches = append(m.batches, batch)

	dups := 0
	for _, r := range records {
		if _, ok := m.records[r.CorrelationID]; ok {
			dups++
			continue
		}
		m.records[r.CorrelationID] = r
	}
	RecordDuplicates(modeMemory, dups)
	RecordBatch(modeMemory, len(records), time.Since(start).Seconds(), nil)
	return nil
}

// FailNext makes the next n calls fail.
func (m *MemoryWriter) FailNext(n int) {
	m.mu.Lock()
	m.failNext = n
	m.mu.Unlock()
}

// SetFailing toggles a persistent outage.
func (m *MemoryWriter) SetFailing(failing bool) {
	m.mu.Lock()
	m.failAll = failing
	m.mu.Unlock()
}

// SetDelay makes every call block for d or until its context ends.
func (m *MemoryWriter) SetDelay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

// Len returns the number of distinct records stored.
func (m *MemoryWriter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Calls returns the number of WriteBatch invocations.
func (m *MemoryWriter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Batches returns a copy of every successful batch in arrival order.
func (m *MemoryWriter) Batches() [][]audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]audit.Record, len(m.batches))
	copy(out, m.batches)
	return out
}

// Delivered returns successful deliveries in arrival order, including
// duplicates.
func (m *MemoryWriter) Delivered() []audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Record
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

// Get returns the stored record for a correlation ID.
func (m *MemoryWriter) Get(correlationID string) (audit.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[correlationID]
	return r, ok
}

// IDs returns the stored correlation IDs, sorted.
func (m *MemoryWriter) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
