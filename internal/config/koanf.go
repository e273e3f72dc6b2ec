// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/auditwal/config.yaml",
	"/etc/auditwal/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Journal: JournalConfig{
			Dir:         "", // required
			ConsumeMode: "rename",
		},
		WAL: WALConfig{
			CadenceMs:     5000,
			QueueCapacity: 1000,
			MaxBatchSize:  100,
			WriteTimeout:  10 * time.Second,
		},
		Replay: ReplayConfig{
			OnBoot:    true,
			Async:     false,
			BatchSize: 100,
		},
		Correlator: CorrelatorConfig{
			PendingTTL:        10 * time.Minute,
			SweepInterval:     time.Minute,
			Store:             StoreMemory,
			CompletedCapacity: 10000,
		},
		Writer: WriterConfig{
			Mode: WriterHTTP,
			HTTP: HTTPWriterConfig{
				AuthHeader:  "bearer",
				TokenTTL:    5 * time.Minute,
				MaxAttempts: 3,
				Backoff:     200 * time.Millisecond,
				Timeout:     10 * time.Second,
			},
			DB: DBWriterConfig{
				Driver: "duckdb",
				Table:  "audit_records",
			},
			NATS: NATSWriterConfig{
				SubjectPrefix:   "audit.records",
				Stream:          "AUDIT_RECORDS",
				DuplicateWindow: 2 * time.Minute,
			},
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8088,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimitReqs:   1000,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{},
			MaxBodyBytes:    1 << 20,
		},
		Auth: AuthConfig{
			APIKeys: []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Credentials carrying the "enc:" prefix are decrypted before validation.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// AUDIT_JOURNAL_DIR -> journal.dir
	// AUDIT_FLUSH_CADENCE_MS -> wal.cadence_ms
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.decryptCredentials(); err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"server.cors_origins",
	"auth.api_keys",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML or defaults)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Journal
	"audit_journal_dir":          "journal.dir",
	"audit_journal_consume_mode": "journal.consume_mode",

	// Engine
	"audit_flush_cadence_ms": "wal.cadence_ms",
	"audit_queue_capacity":   "wal.queue_capacity",
	"audit_max_batch_size":   "wal.max_batch_size",
	"audit_write_timeout":    "wal.write_timeout",

	// Replay
	"audit_replay_on_boot":    "replay.on_boot",
	"audit_replay_async":      "replay.async",
	"audit_replay_batch_size": "replay.batch_size",

	// Correlator
	"audit_pending_ttl":        "correlator.pending_ttl",
	"audit_sweep_interval":     "correlator.sweep_interval",
	"audit_pending_store":      "correlator.store",
	"audit_pending_path":       "correlator.path",
	"audit_completed_capacity": "correlator.completed_capacity",

	// Writer
	"audit_writer_mode":               "writer.mode",
	"audit_http_url":                  "writer.http.url",
	"audit_http_credential":           "writer.http.credential",
	"audit_http_secondary_credential": "writer.http.secondary_credential",
	"audit_http_auth_header":          "writer.http.auth_header",
	"audit_http_signing_secret":       "writer.http.signing_secret",
	"audit_http_token_ttl":            "writer.http.token_ttl",
	"audit_http_max_attempts":         "writer.http.max_attempts",
	"audit_http_backoff":              "writer.http.backoff",
	"audit_http_timeout":              "writer.http.timeout",
	"audit_http_rate_limit_rps":       "writer.http.rate_limit_rps",
	"audit_db_driver":                 "writer.db.driver",
	"audit_db_dsn":                    "writer.db.dsn",
	"audit_db_table":                  "writer.db.table",
	"audit_nats_url":                  "writer.nats.url",
	"audit_nats_subject_prefix":       "writer.nats.subject_prefix",
	"audit_nats_stream":               "writer.nats.stream",
	"audit_nats_embedded":             "writer.nats.embedded",
	"audit_nats_store_dir":            "writer.nats.store_dir",
	"audit_nats_duplicate_window":     "writer.nats.duplicate_window",
	"audit_secret_key":                "secret_key",

	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"rate_limit_requests":   "server.rate_limit_reqs",
	"rate_limit_window":     "server.rate_limit_window",
	"disable_rate_limit":    "server.rate_limit_disabled",
	"cors_origins":          "server.cors_origins",
	"max_body_bytes":        "server.max_body_bytes",

	// Auth
	"audit_auth_api_keys":    "auth.api_keys",
	"audit_auth_policy_path": "auth.policy_path",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - AUDIT_JOURNAL_DIR -> journal.dir
//   - AUDIT_HTTP_URL -> writer.http.url
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// Unmapped keys are skipped so stray environment variables never leak
	// into the configuration.
	return ""
}
