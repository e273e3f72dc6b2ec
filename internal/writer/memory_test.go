// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package writer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/auditwal/internal/audit"
)

func TestMemoryWriter_IdempotentByCorrelationID(t *testing.T) {
	m := NewMemoryWriter()
	ctx := context.Background()

	if err := m.WriteBatch(ctx, testRecords("a", "b")); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	if err := m.WriteBatch(ctx, testRecords("b", "c")); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}

	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}
	if len(m.Delivered()) != 4 {
		t.Errorf("Delivered() = %d, want 4 including the duplicate", len(m.Delivered()))
	}
	if got := m.IDs(); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("IDs() = %v", got)
	}
}

func TestMemoryWriter_FailureInjection(t *testing.T) {
	m := NewMemoryWriter()
	ctx := context.Background()

	m.FailNext(2)
	for i := 0; i < 2; i++ {
		if err := m.WriteBatch(ctx, testRecords("a")); !errors.Is(err, ErrInjected) {
			t.Fatalf("call %d error = %v, want ErrInjected", i, err)
		}
	}
	if err := m.WriteBatch(ctx, testRecords("a")); err != nil {
		t.Fatalf("third call error = %v", err)
	}

	m.SetFailing(true)
	if err := m.WriteBatch(ctx, testRecords("b")); !errors.Is(err, ErrInjected) {
		t.Fatalf("outage error = %v, want ErrInjected", err)
	}
	m.SetFailing(false)

	if m.Calls() != 4 {
		t.Errorf("Calls() = %d, want 4", m.Calls())
	}
	if _, ok := m.Get("b"); ok {
		t.Error("record b stored despite failure")
	}
	if len(m.Batches()) != 1 {
		t.Errorf("Batches() = %d, want 1", len(m.Batches()))
	}
}

func TestMemoryWriter_DelayHonorsContext(t *testing.T) {
	m := NewMemoryWriter()
	m.SetDelay(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.WriteBatch(ctx, testRecords("a"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WriteBatch() error = %v, want deadline exceeded", err)
	}
	if m.Len() != 0 {
		t.Error("record stored after timeout")
	}
}

func TestFunc_Adapter(t *testing.T) {
	var got int
	var w Writer = Func(func(_ context.Context, records []audit.Record) error {
		got = len(records)
		return nil
	})
	if err := w.WriteBatch(context.Background(), testRecords("a", "b")); err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("got %d records, want 2", got)
	}
}
