// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Journal.Dir = "/tmp/journal"
	cfg.Writer.HTTP.URL = "https://audit.example.com/ingest"
	cfg.Writer.HTTP.Credential = "token"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid http", func(*Config) {}, ""},
		{"missing journal dir", func(c *Config) { c.Journal.Dir = "" }, "AUDIT_JOURNAL_DIR"},
		{"bad consume mode", func(c *Config) { c.Journal.ConsumeMode = "shred" }, "AUDIT_JOURNAL_CONSUME_MODE"},
		{"negative cadence", func(c *Config) { c.WAL.CadenceMs = -5 }, "AUDIT_FLUSH_CADENCE_MS"},
		{"zero cadence allowed", func(c *Config) { c.WAL.CadenceMs = 0 }, ""},
		{"zero capacity", func(c *Config) { c.WAL.QueueCapacity = 0 }, "AUDIT_QUEUE_CAPACITY"},
		{"zero batch", func(c *Config) { c.WAL.MaxBatchSize = 0 }, "AUDIT_MAX_BATCH_SIZE"},
		{"zero replay batch", func(c *Config) { c.Replay.BatchSize = 0 }, "AUDIT_REPLAY_BATCH_SIZE"},
		{"badger without path", func(c *Config) { c.Correlator.Store = StoreBadger }, "AUDIT_PENDING_PATH"},
		{"badger with path", func(c *Config) { c.Correlator.Store = StoreBadger; c.Correlator.Path = "/tmp/p" }, ""},
		{"unknown store", func(c *Config) { c.Correlator.Store = "redis" }, "AUDIT_PENDING_STORE"},
		{"zero completed capacity", func(c *Config) { c.Correlator.CompletedCapacity = 0 }, "AUDIT_COMPLETED_CAPACITY"},
		{"unknown writer", func(c *Config) { c.Writer.Mode = "smtp" }, "AUDIT_WRITER_MODE"},
		{"http without url", func(c *Config) { c.Writer.HTTP.URL = "" }, "AUDIT_HTTP_URL"},
		{"http bad scheme", func(c *Config) { c.Writer.HTTP.URL = "ftp://x" }, "AUDIT_HTTP_URL"},
		{"http url with user", func(c *Config) { c.Writer.HTTP.URL = "https://u:p@x/ingest" }, "AUDIT_HTTP_URL"},
		{"http without credential", func(c *Config) { c.Writer.HTTP.Credential = "" }, "AUDIT_HTTP_CREDENTIAL"},
		{"http signing secret only", func(c *Config) {
			c.Writer.HTTP.Credential = ""
			c.Writer.HTTP.SigningSecret = strings.Repeat("s", 32)
		}, ""},
		{"short signing secret", func(c *Config) { c.Writer.HTTP.SigningSecret = "short" }, "AUDIT_HTTP_SIGNING_SECRET"},
		{"bad auth header", func(c *Config) { c.Writer.HTTP.AuthHeader = "basic" }, "AUDIT_HTTP_AUTH_HEADER"},
		{"db duckdb no dsn", func(c *Config) { c.Writer.Mode = WriterDB }, ""},
		{"db postgres no dsn", func(c *Config) { c.Writer.Mode = WriterDB; c.Writer.DB.Driver = "postgres" }, "AUDIT_DB_DSN"},
		{"db bad driver", func(c *Config) { c.Writer.Mode = WriterDB; c.Writer.DB.Driver = "sqlite" }, "AUDIT_DB_DRIVER"},
		{"nats without url", func(c *Config) { c.Writer.Mode = WriterNATS }, "AUDIT_NATS_URL"},
		{"nats bad scheme", func(c *Config) { c.Writer.Mode = WriterNATS; c.Writer.NATS.URL = "http://x:4222" }, "AUDIT_NATS_URL"},
		{"nats ok", func(c *Config) { c.Writer.Mode = WriterNATS; c.Writer.NATS.URL = "nats://localhost:4222" }, ""},
		{"nats embedded no store", func(c *Config) { c.Writer.Mode = WriterNATS; c.Writer.NATS.Embedded = true }, "AUDIT_NATS_STORE_DIR"},
		{"nats zero dedup window", func(c *Config) {
			c.Writer.Mode = WriterNATS
			c.Writer.NATS.URL = "nats://localhost:4222"
			c.Writer.NATS.DuplicateWindow = 0
		}, "AUDIT_NATS_DUPLICATE_WINDOW"},
		{"memory writer", func(c *Config) { c.Writer.Mode = WriterMemory; c.Writer.HTTP = HTTPWriterConfig{} }, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "HTTP_PORT"},
		{"bad rate limit", func(c *Config) { c.Server.RateLimitReqs = 0 }, "RATE_LIMIT_REQUESTS"},
		{"rate limit disabled", func(c *Config) { c.Server.RateLimitReqs = 0; c.Server.RateLimitDisabled = true }, ""},
		{"api keys", func(c *Config) {
			c.Auth.APIKeys = []string{"producer:billing:0123456789abcdef", "admin:ops:fedcba9876543210"}
		}, ""},
		{"api key two parts", func(c *Config) { c.Auth.APIKeys = []string{"producer:0123456789abcdef"} }, "AUDIT_AUTH_API_KEYS"},
		{"api key unknown role", func(c *Config) { c.Auth.APIKeys = []string{"auditor:x:0123456789abcdef"} }, "AUDIT_AUTH_API_KEYS"},
		{"api key custom role with policy", func(c *Config) {
			c.Auth.APIKeys = []string{"auditor:x:0123456789abcdef"}
			c.Auth.PolicyPath = "/etc/auditwal/policy.csv"
		}, ""},
		{"api key short", func(c *Config) { c.Auth.APIKeys = []string{"producer:x:short"} }, "AUDIT_AUTH_API_KEYS"},
		{"api key duplicate name", func(c *Config) {
			c.Auth.APIKeys = []string{"producer:x:0123456789abcdef", "operator:x:fedcba9876543210"}
		}, "duplicate"},
		{"policy without keys", func(c *Config) { c.Auth.PolicyPath = "/etc/auditwal/policy.csv" }, "AUDIT_AUTH_POLICY_PATH"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to mention %s", err, tt.wantErr)
			}
		})
	}
}
