// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package writer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"postgres unique", &pq.Error{Code: "23505"}, true},
		{"postgres wrapped", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), true},
		{"postgres other", &pq.Error{Code: "23503"}, false},
		{"duckdb primary key", errors.New(`Constraint Error: Duplicate key "correlation_id: c1" violates primary key constraint`), true},
		{"generic", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewDBWriter_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewDBWriter(ctx, DBConfig{Driver: "mysql"}); err == nil {
		t.Error("unsupported driver accepted")
	}
	if _, err := NewDBWriter(ctx, DBConfig{Driver: DriverPostgres}); err == nil {
		t.Error("postgres without dsn accepted")
	}
	if _, err := NewDBWriter(ctx, DBConfig{Driver: DriverDuckDB, Table: "records; DROP TABLE x"}); err == nil {
		t.Error("unsafe table name accepted")
	}
}

func TestInsertSQL_IsIdempotent(t *testing.T) {
	q := insertSQL("audit_records")
	for _, want := range []string{"INSERT INTO audit_records", "ON CONFLICT (correlation_id) DO NOTHING", "$14"} {
		if !strings.Contains(q, want) {
			t.Errorf("insert statement missing %q", want)
		}
	}
}
