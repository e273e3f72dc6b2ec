// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package writer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/lib/pq"

	"github.com/tomtom215/auditwal/internal/audit"
	"github.com/tomtom215/auditwal/internal/logging"
)

// Database drivers supported by DBWriter.
const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"

	defaultTable = "audit_records"
)

var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DBConfig configures a DBWriter.
type DBConfig struct {
	// Driver is duckdb or postgres.
	Driver string

	// DSN is a DuckDB file path (empty = in-memory) or a Postgres URL.
	DSN string

	// Table defaults to audit_records.
	Table string

	// MaxOpenConns bounds the pool. Default: 4 (DuckDB forces 1).
	MaxOpenConns int
}

// DBWriter inserts records idempotently into a SQL table keyed by
// correlation ID. A record that already exists counts as delivered.
type DBWriter struct {
	db     *sql.DB
	driver string
	table  string
	insert string
}

// NewDBWriter opens the database and ensures the schema exists.
func NewDBWriter(ctx context.Context, cfg DBConfig) (*DBWriter, error) {
	if cfg.Table == "" {
		cfg.Table = defaultTable
	}
	if !tableNameRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("db writer: invalid table name %q", cfg.Table)
	}

	var (
		conn *sql.DB
		err  error
	)
	switch cfg.Driver {
	case DriverDuckDB:
		conn, err = openDuckDB(cfg.DSN)
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("db writer: postgres requires a dsn")
		}
		conn, err = sql.Open("postgres", cfg.DSN)
		if err == nil {
			maxOpen := cfg.MaxOpenConns
			if maxOpen <= 0 {
				maxOpen = 4
			}
			conn.SetMaxOpenConns(maxOpen)
			conn.SetMaxIdleConns(maxOpen)
			conn.SetConnMaxLifetime(30 * time.Minute)
		}
	default:
		return nil, fmt.Errorf("db writer: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	w := &DBWriter{
		db:     conn,
		driver: cfg.Driver,
		table:  cfg.Table,
		insert: insertSQL(cfg.Table),
	}

	if err := w.EnsureSchema(ctx); err != nil {
		closeQuietly(conn)
		return nil, err
	}

	logging.Info().
		Str("driver", cfg.Driver).
		Str("table", cfg.Table).
		Msg("Audit database writer ready")

	return w, nil
}

func openDuckDB(path string) (*sql.DB, error) {
	if path != "" && path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	} else {
		path = ""
	}

	connStr := path + "?access_mode=read_write&autoinstall_known_extensions=false&autoload_known_extensions=false"
	if path == "" {
		connStr = ":memory:?autoinstall_known_extensions=false&autoload_known_extensions=false"
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, err
	}
	// A single connection keeps an in-memory database shared across calls.
	conn.SetMaxOpenConns(1)
	return conn, nil
}

func closeQuietly(db *sql.DB) {
	if err := db.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close database connection")
	}
}

// EnsureSchema creates the records table if missing.
func (w *DBWriter) EnsureSchema(ctx context.Context) error {
	payloadType := "TEXT"
	if w.driver == DriverPostgres {
		payloadType = "JSONB"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		correlation_id VARCHAR PRIMARY KEY,
		event_id VARCHAR,
		end_event_id VARCHAR,
		request_id VARCHAR,
		service VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		http_code INTEGER,
		outcome VARCHAR NOT NULL,
		reason VARCHAR,
		started_at TIMESTAMP,
		ended_at TIMESTAMP,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		begin_payload %s,
		end_payload %s,
		delivered_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, w.table, payloadType, payloadType)

	if _, err := w.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s table: %w", w.table, err)
	}
	return nil
}

func insertSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (
		correlation_id, event_id, end_event_id, request_id, service, status,
		http_code, outcome, reason, started_at, ended_at, duration_ms,
		begin_payload, end_payload
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (correlation_id) DO NOTHING`, table)
}

// WriteBatch inserts every record in one transaction.
func (w *DBWriter) WriteBatch(ctx context.Context, records []audit.Record) error {
	if len(records) == 0 {
		return nil
	}
	start := time.Now()
	dups, err := w.writeTx(ctx, records)
	RecordDuplicates(w.driver, dups)
	RecordBatch(w.driver, len(records), time.Since(start).Seconds(), err)
	return err
}

func (w *DBWriter) writeTx(ctx context.Context, records []audit.Record) (dups int, err error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logging.Warn().Err(rbErr).Msg("Failed to roll back audit batch")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, w.insert)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	seen := make(map[string]struct{}, len(records))
	for i := range records {
		r := &records[i]
		if _, ok := seen[r.CorrelationID]; ok {
			dups++
			continue
		}
		seen[r.CorrelationID] = struct{}{}

		res, execErr := stmt.ExecContext(ctx, w.args(r)...)
		if execErr != nil {
			if isUniqueViolation(execErr) {
				dups++
				continue
			}
			return dups, fmt.Errorf("insert record %s: %w", r.CorrelationID, execErr)
		}
		if n, raErr := res.RowsAffected(); raErr == nil && n == 0 {
			dups++
		}
	}

	if err = tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			// Raced with another writer; every row is present.
			return len(records), nil
		}
		return dups, fmt.Errorf("commit audit batch: %w", err)
	}
	return dups, nil
}

func (w *DBWriter) args(r *audit.Record) []any {
	var code any
	if r.HTTPCode != nil {
		code = *r.HTTPCode
	}
	return []any{
		r.CorrelationID,
		nullString(r.EventID),
		nullString(r.EndEventID),
		nullString(r.RequestID),
		r.Service,
		string(r.Status),
		code,
		string(r.Outcome),
		nullString(r.Reason),
		nullTime(r.StartedAt),
		nullTime(r.EndedAt),
		r.DurationMs,
		nullString(string(r.BeginPayload)),
		nullString(string(r.EndPayload)),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

// isUniqueViolation reports whether err is a primary key or unique
// constraint failure from either driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		(strings.Contains(msg, "constraint error") && strings.Contains(msg, "primary key"))
}

// Count returns the number of stored records.
func (w *DBWriter) Count(ctx context.Context) (int, error) {
	var n int
	if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+w.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", w.table, err)
	}
	return n, nil
}

// Ping checks connectivity.
func (w *DBWriter) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

// Close closes the database.
func (w *DBWriter) Close() error {
	return w.db.Close()
}
