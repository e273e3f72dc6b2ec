// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package config

import (
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any setting
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load configuration")
//	}
type Config struct {
	Journal    JournalConfig    `koanf:"journal"`
	WAL        WALConfig        `koanf:"wal"`
	Replay     ReplayConfig     `koanf:"replay"`
	Correlator CorrelatorConfig `koanf:"correlator"`
	Writer     WriterConfig     `koanf:"writer"`
	Server     ServerConfig     `koanf:"server"`
	Auth       AuthConfig       `koanf:"auth"`
	Logging    LoggingConfig    `koanf:"logging"`

	// SecretKey decrypts "enc:" prefixed credentials. Set it through
	// AUDIT_SECRET_KEY rather than the config file.
	SecretKey string `koanf:"secret_key"`
}

// JournalConfig configures the on-disk journal.
//
// Environment Variables:
//   - AUDIT_JOURNAL_DIR: Journal directory (required)
//   - AUDIT_JOURNAL_CONSUME_MODE: "rename" (default) or "delete"
type JournalConfig struct {
	Dir         string `koanf:"dir"`
	ConsumeMode string `koanf:"consume_mode"`
}

// WALConfig tunes the engine.
//
// Environment Variables:
//   - AUDIT_FLUSH_CADENCE_MS: Flush interval in ms, 0 disables (default: 5000)
//   - AUDIT_QUEUE_CAPACITY: In-memory queue bound (default: 1000)
//   - AUDIT_MAX_BATCH_SIZE: Records per write (default: 100)
//   - AUDIT_WRITE_TIMEOUT: Per-write timeout (default: 10s)
type WALConfig struct {
	CadenceMs     int           `koanf:"cadence_ms"`
	QueueCapacity int           `koanf:"queue_capacity"`
	MaxBatchSize  int           `koanf:"max_batch_size"`
	WriteTimeout  time.Duration `koanf:"write_timeout"`
}

// ReplayConfig controls the boot replay.
//
// Environment Variables:
//   - AUDIT_REPLAY_ON_BOOT: Replay leftover journal files at startup (default: true)
//   - AUDIT_REPLAY_ASYNC: Serve traffic while the boot replay runs (default: false)
//   - AUDIT_REPLAY_BATCH_SIZE: Records per replayed write (default: 100)
type ReplayConfig struct {
	OnBoot    bool `koanf:"on_boot"`
	Async     bool `koanf:"async"`
	BatchSize int  `koanf:"batch_size"`
}

// CorrelatorConfig configures begin/end pairing.
//
// Environment Variables:
//   - AUDIT_PENDING_TTL: How long an unmatched half is held (default: 10m)
//   - AUDIT_SWEEP_INTERVAL: How often expired halves are swept (default: 1m)
//   - AUDIT_PENDING_STORE: "memory" (default) or "badger"
//   - AUDIT_PENDING_PATH: Badger directory (required for badger)
//   - AUDIT_COMPLETED_CAPACITY: Merged IDs remembered to reject retried halves (default: 10000)
type CorrelatorConfig struct {
	PendingTTL        time.Duration `koanf:"pending_ttl"`
	SweepInterval     time.Duration `koanf:"sweep_interval"`
	Store             string        `koanf:"store"`
	Path              string        `koanf:"path"`
	CompletedCapacity int           `koanf:"completed_capacity"`
}

// WriterConfig selects and configures the delivery destination.
//
// Environment Variables:
//   - AUDIT_WRITER_MODE: "http" (default), "db", "nats" or "memory"
type WriterConfig struct {
	Mode string           `koanf:"mode"`
	HTTP HTTPWriterConfig `koanf:"http"`
	DB   DBWriterConfig   `koanf:"db"`
	NATS NATSWriterConfig `koanf:"nats"`
}

// HTTPWriterConfig configures the HTTP ingest writer.
//
// Environment Variables:
//   - AUDIT_HTTP_URL: Ingest endpoint
//   - AUDIT_HTTP_CREDENTIAL: Primary credential
//   - AUDIT_HTTP_SECONDARY_CREDENTIAL: Fallback credential used after a 401/403
//   - AUDIT_HTTP_AUTH_HEADER: "bearer" (default) or "internal-key"
//   - AUDIT_HTTP_SIGNING_SECRET: Mint short-lived JWTs instead of a static credential
//   - AUDIT_HTTP_TOKEN_TTL: Lifetime of minted tokens (default: 5m)
//   - AUDIT_HTTP_MAX_ATTEMPTS: Attempts per batch (default: 3)
//   - AUDIT_HTTP_BACKOFF: Base backoff (default: 200ms)
//   - AUDIT_HTTP_TIMEOUT: Request timeout (default: 10s)
//   - AUDIT_HTTP_RATE_LIMIT_RPS: Client-side request rate, 0 = unlimited
type HTTPWriterConfig struct {
	URL                 string        `koanf:"url"`
	Credential          string        `koanf:"credential"`
	SecondaryCredential string        `koanf:"secondary_credential"`
	AuthHeader          string        `koanf:"auth_header"`
	SigningSecret       string        `koanf:"signing_secret"`
	TokenTTL            time.Duration `koanf:"token_ttl"`
	MaxAttempts         int           `koanf:"max_attempts"`
	Backoff             time.Duration `koanf:"backoff"`
	Timeout             time.Duration `koanf:"timeout"`
	RateLimitRPS        float64       `koanf:"rate_limit_rps"`
}

// DBWriterConfig configures the database writer.
//
// Environment Variables:
//   - AUDIT_DB_DRIVER: "duckdb" (default) or "postgres"
//   - AUDIT_DB_DSN: Database file path (duckdb) or connection string (postgres)
//   - AUDIT_DB_TABLE: Target table (default: audit_records)
type DBWriterConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
	Table  string `koanf:"table"`
}

// NATSWriterConfig configures the JetStream writer.
//
// Environment Variables:
//   - AUDIT_NATS_URL: NATS server URL
//   - AUDIT_NATS_SUBJECT_PREFIX: Subject prefix (default: audit.records)
//   - AUDIT_NATS_STREAM: Stream name (default: AUDIT_RECORDS)
//   - AUDIT_NATS_EMBEDDED: Run an embedded JetStream server (default: false)
//   - AUDIT_NATS_STORE_DIR: Embedded server storage directory
//   - AUDIT_NATS_DUPLICATE_WINDOW: JetStream dedup window (default: 2m)
type NATSWriterConfig struct {
	URL             string        `koanf:"url"`
	SubjectPrefix   string        `koanf:"subject_prefix"`
	Stream          string        `koanf:"stream"`
	Embedded        bool          `koanf:"embedded"`
	StoreDir        string        `koanf:"store_dir"`
	DuplicateWindow time.Duration `koanf:"duplicate_window"`
}

// ServerConfig configures the HTTP API.
//
// Environment Variables:
//   - HTTP_HOST, HTTP_PORT, HTTP_TIMEOUT
//   - RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW, DISABLE_RATE_LIMIT
//   - CORS_ORIGINS: Comma-separated origins
//   - MAX_BODY_BYTES: Request body limit (default: 1MB)
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	Timeout           time.Duration `koanf:"timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes"`
}

// AuthConfig guards the audit routes.
//
// Environment Variables:
//   - AUDIT_AUTH_API_KEYS: Comma-separated "role:name:key" entries; empty disables auth
//   - AUDIT_AUTH_POLICY_PATH: Casbin policy CSV replacing the built-in one
//
// The key part may carry the "enc:" prefix.
type AuthConfig struct {
	APIKeys    []string `koanf:"api_keys"`
	PolicyPath string   `koanf:"policy_path"`
}

// LoggingConfig configures the global logger.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info (default), warn, error
//   - LOG_FORMAT: json (default) or console
//   - LOG_CALLER: Include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Writer modes.
const (
	WriterHTTP   = "http"
	WriterDB     = "db"
	WriterNATS   = "nats"
	WriterMemory = "memory"
)

// Pending store kinds.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

// Load loads configuration using Koanf with layered sources.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
