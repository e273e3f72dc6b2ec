// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package wal

import (
	"strconv"
	"time"
)

// Config tunes the Engine.
type Config struct {
	// CadenceMs is the flush interval in milliseconds. 0 disables the
	// ticker; callers flush explicitly or rely on Stop.
	CadenceMs int

	// QueueCapacity bounds the in-memory queue. A full queue spills to the
	// journal.
	QueueCapacity int

	// MaxBatchSize bounds records per WriteBatch call during a flush.
	MaxBatchSize int

	// WriteTimeout bounds every WriteBatch call.
	WriteTimeout time.Duration

	// ReplayBatchSize bounds records per WriteBatch call during boot replay.
	ReplayBatchSize int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		CadenceMs:       5000,
		QueueCapacity:   1000,
		MaxBatchSize:    100,
		WriteTimeout:    10 * time.Second,
		ReplayBatchSize: 100,
	}
}

// Cadence returns the flush interval, 0 when disabled.
func (c *Config) Cadence() time.Duration {
	return time.Duration(c.CadenceMs) * time.Millisecond
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.CadenceMs < 0 {
		return &ConfigError{Field: "CadenceMs", Message: "must be >= 0 (0 disables the flush timer)"}
	}
	if c.QueueCapacity < 1 {
		return &ConfigError{Field: "QueueCapacity", Message: "must be at least 1"}
	}
	if c.MaxBatchSize < 1 {
		return &ConfigError{Field: "MaxBatchSize", Message: "must be at least 1"}
	}
	if c.WriteTimeout < 10*time.Millisecond {
		return &ConfigError{Field: "WriteTimeout", Message: "must be at least 10ms, got " + c.WriteTimeout.String()}
	}
	if c.ReplayBatchSize < 1 {
		return &ConfigError{Field: "ReplayBatchSize", Message: "must be at least 1, got " + strconv.Itoa(c.ReplayBatchSize)}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "WAL config error: " + e.Field + ": " + e.Message
}
