// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package wal

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
	if cfg.Cadence() != 5*time.Second {
		t.Errorf("Cadence() = %v, want 5s", cfg.Cadence())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"cadence zero allowed", func(c *Config) { c.CadenceMs = 0 }, ""},
		{"negative cadence", func(c *Config) { c.CadenceMs = -1 }, "CadenceMs"},
		{"zero capacity", func(c *Config) { c.QueueCapacity = 0 }, "QueueCapacity"},
		{"zero batch", func(c *Config) { c.MaxBatchSize = 0 }, "MaxBatchSize"},
		{"tiny timeout", func(c *Config) { c.WriteTimeout = time.Millisecond }, "WriteTimeout"},
		{"zero replay batch", func(c *Config) { c.ReplayBatchSize = 0 }, "ReplayBatchSize"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() error = %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("ConfigError.Field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}
