// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package config

import (
	"fmt"
	"strings"
	"time"
)

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// builtinRoles are the roles of the built-in authorization policy.
var builtinRoles = map[string]bool{
	"producer": true,
	"operator": true,
	"admin":    true,
}

// minAPIKeyLength matches the shortest key the authorizer accepts.
const minAPIKeyLength = 16

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// Validate checks that required configuration is present and valid.
// Any error is fatal at startup.
func (c *Config) Validate() error {
	if err := c.validateJournal(); err != nil {
		return err
	}
	if err := c.validateWAL(); err != nil {
		return err
	}
	if err := c.validateReplay(); err != nil {
		return err
	}
	if err := c.validateCorrelator(); err != nil {
		return err
	}
	if err := c.validateWriter(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateJournal() error {
	if c.Journal.Dir == "" {
		return fmt.Errorf("AUDIT_JOURNAL_DIR is required")
	}
	switch c.Journal.ConsumeMode {
	case "rename", "delete":
		return nil
	default:
		return fmt.Errorf("AUDIT_JOURNAL_CONSUME_MODE must be rename or delete, got %q", c.Journal.ConsumeMode)
	}
}

func (c *Config) validateWAL() error {
	if c.WAL.CadenceMs < 0 {
		return fmt.Errorf("AUDIT_FLUSH_CADENCE_MS must be >= 0 (0 disables the timer)")
	}
	if c.WAL.QueueCapacity < 1 {
		return fmt.Errorf("AUDIT_QUEUE_CAPACITY must be at least 1")
	}
	if c.WAL.MaxBatchSize < 1 {
		return fmt.Errorf("AUDIT_MAX_BATCH_SIZE must be at least 1")
	}
	if c.WAL.WriteTimeout < 10*time.Millisecond {
		return fmt.Errorf("AUDIT_WRITE_TIMEOUT must be at least 10ms")
	}
	return nil
}

func (c *Config) validateReplay() error {
	if c.Replay.BatchSize < 1 {
		return fmt.Errorf("AUDIT_REPLAY_BATCH_SIZE must be at least 1")
	}
	return nil
}

func (c *Config) validateCorrelator() error {
	if c.Correlator.PendingTTL <= 0 {
		return fmt.Errorf("AUDIT_PENDING_TTL must be positive")
	}
	if c.Correlator.SweepInterval <= 0 {
		return fmt.Errorf("AUDIT_SWEEP_INTERVAL must be positive")
	}
	if c.Correlator.CompletedCapacity < 1 {
		return fmt.Errorf("AUDIT_COMPLETED_CAPACITY must be at least 1")
	}
	switch c.Correlator.Store {
	case StoreMemory:
		return nil
	case StoreBadger:
		if c.Correlator.Path == "" {
			return fmt.Errorf("AUDIT_PENDING_PATH is required when AUDIT_PENDING_STORE=badger")
		}
		return nil
	default:
		return fmt.Errorf("AUDIT_PENDING_STORE must be memory or badger, got %q", c.Correlator.Store)
	}
}

func (c *Config) validateWriter() error {
	switch c.Writer.Mode {
	case WriterHTTP:
		return c.validateHTTPWriter()
	case WriterDB:
		return c.validateDBWriter()
	case WriterNATS:
		return c.validateNATSWriter()
	case WriterMemory:
		return nil
	default:
		return fmt.Errorf("AUDIT_WRITER_MODE must be one of: http, db, nats, memory (got %q)", c.Writer.Mode)
	}
}

func (c *Config) validateHTTPWriter() error {
	h := &c.Writer.HTTP
	if h.URL == "" {
		return fmt.Errorf("AUDIT_HTTP_URL is required when AUDIT_WRITER_MODE=http")
	}
	if err := validateEndpointURL(h.URL, "AUDIT_HTTP_URL"); err != nil {
		return err
	}
	if h.Credential == "" && h.SigningSecret == "" {
		return fmt.Errorf("AUDIT_HTTP_CREDENTIAL or AUDIT_HTTP_SIGNING_SECRET is required when AUDIT_WRITER_MODE=http")
	}
	if h.SigningSecret != "" && len(h.SigningSecret) < 32 {
		return fmt.Errorf("AUDIT_HTTP_SIGNING_SECRET must be at least 32 characters")
	}
	if h.SigningSecret != "" && h.TokenTTL <= 0 {
		return fmt.Errorf("AUDIT_HTTP_TOKEN_TTL must be positive")
	}
	if h.AuthHeader != "bearer" && h.AuthHeader != "internal-key" {
		return fmt.Errorf("AUDIT_HTTP_AUTH_HEADER must be bearer or internal-key")
	}
	if h.MaxAttempts < 1 {
		return fmt.Errorf("AUDIT_HTTP_MAX_ATTEMPTS must be at least 1")
	}
	if h.Backoff < 0 || h.Timeout <= 0 {
		return fmt.Errorf("AUDIT_HTTP_BACKOFF must be >= 0 and AUDIT_HTTP_TIMEOUT positive")
	}
	if h.RateLimitRPS < 0 {
		return fmt.Errorf("AUDIT_HTTP_RATE_LIMIT_RPS must be >= 0")
	}
	return nil
}

func (c *Config) validateDBWriter() error {
	switch c.Writer.DB.Driver {
	case "duckdb":
		return nil
	case "postgres":
		if c.Writer.DB.DSN == "" {
			return fmt.Errorf("AUDIT_DB_DSN is required when AUDIT_DB_DRIVER=postgres")
		}
		return nil
	default:
		return fmt.Errorf("AUDIT_DB_DRIVER must be duckdb or postgres, got %q", c.Writer.DB.Driver)
	}
}

func (c *Config) validateNATSWriter() error {
	n := &c.Writer.NATS
	if n.DuplicateWindow <= 0 {
		return fmt.Errorf("AUDIT_NATS_DUPLICATE_WINDOW must be positive, got %s", n.DuplicateWindow)
	}
	if n.Embedded {
		if n.StoreDir == "" {
			return fmt.Errorf("AUDIT_NATS_STORE_DIR is required when AUDIT_NATS_EMBEDDED=true")
		}
		return nil
	}
	if n.URL == "" {
		return fmt.Errorf("AUDIT_NATS_URL is required when AUDIT_WRITER_MODE=nats")
	}
	if err := validateNATSURL(n.URL); err != nil {
		return fmt.Errorf("AUDIT_NATS_URL is invalid: %w", err)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if !c.Server.RateLimitDisabled && (c.Server.RateLimitReqs < 1 || c.Server.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive unless DISABLE_RATE_LIMIT=true")
	}
	if c.Server.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	return nil
}

// validateAuth checks key format only. With a custom policy any role name
// is accepted here and checked against the policy at startup.
func (c *Config) validateAuth() error {
	seen := make(map[string]bool, len(c.Auth.APIKeys))
	for i, spec := range c.Auth.APIKeys {
		parts := strings.SplitN(spec, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("AUDIT_AUTH_API_KEYS[%d] must be role:name:key", i)
		}
		if c.Auth.PolicyPath == "" && !builtinRoles[parts[0]] {
			return fmt.Errorf("AUDIT_AUTH_API_KEYS[%d]: role must be producer, operator or admin, got %q", i, parts[0])
		}
		if len(parts[2]) < minAPIKeyLength {
			return fmt.Errorf("AUDIT_AUTH_API_KEYS[%d]: key must be at least %d characters", i, minAPIKeyLength)
		}
		if seen[parts[1]] {
			return fmt.Errorf("AUDIT_AUTH_API_KEYS: duplicate name %q", parts[1])
		}
		seen[parts[1]] = true
	}
	if c.Auth.PolicyPath != "" && len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("AUDIT_AUTH_POLICY_PATH is set but AUDIT_AUTH_API_KEYS is empty")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}
