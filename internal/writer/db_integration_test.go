// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

//go:build integration

package writer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/auditwal/internal/testinfra"
)

// exerciseDBWriter runs the shared idempotency checks against any driver.
func exerciseDBWriter(t *testing.T, w *DBWriter) {
	t.Helper()
	ctx := context.Background()

	recs := testRecords("c1", "c2", "c3")
	code := 503
	recs[2].Status = "error"
	recs[2].HTTPCode = &code
	recs[2].BeginPayload = []byte(`{"path":"/v1/pay"}`)

	if err := w.WriteBatch(ctx, recs); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	n, err := w.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("Count() = %d, want 3", n)
	}

	// Replaying an overlapping batch succeeds and adds only the new row.
	if err := w.WriteBatch(ctx, testRecords("c2", "c3", "c4")); err != nil {
		t.Fatalf("replayed WriteBatch() error = %v", err)
	}
	n, err = w.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 4 {
		t.Errorf("Count() after replay = %d, want 4", n)
	}

	// Duplicates inside a single batch also collapse.
	if err := w.WriteBatch(ctx, testRecords("c5", "c5")); err != nil {
		t.Fatalf("duplicate-in-batch WriteBatch() error = %v", err)
	}
	n, _ = w.Count(ctx)
	if n != 5 {
		t.Errorf("Count() = %d, want 5", n)
	}
}

func TestDBWriter_DuckDBMemory(t *testing.T) {
	w, err := NewDBWriter(context.Background(), DBConfig{Driver: DriverDuckDB})
	if err != nil {
		t.Fatalf("NewDBWriter() error = %v", err)
	}
	defer w.Close()

	exerciseDBWriter(t, w)
}

func TestDBWriter_DuckDBFileSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.duckdb")
	ctx := context.Background()

	w, err := NewDBWriter(ctx, DBConfig{Driver: DriverDuckDB, DSN: path})
	if err != nil {
		t.Fatalf("NewDBWriter() error = %v", err)
	}
	if err := w.WriteBatch(ctx, testRecords("a", "b")); err != nil {
		t.Fatalf("WriteBatch() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	w, err = NewDBWriter(ctx, DBConfig{Driver: DriverDuckDB, DSN: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer w.Close()

	if err := w.WriteBatch(ctx, testRecords("b", "c")); err != nil {
		t.Fatalf("WriteBatch() after reopen error = %v", err)
	}
	if n, _ := w.Count(ctx); n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}

func TestDBWriter_Postgres(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg, err := testinfra.NewPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	defer testinfra.CleanupContainer(t, context.Background(), pg)

	w, err := NewDBWriter(ctx, DBConfig{Driver: DriverPostgres, DSN: pg.DSN})
	if err != nil {
		t.Fatalf("NewDBWriter() error = %v", err)
	}
	defer w.Close()

	if err := w.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	exerciseDBWriter(t, w)
}
