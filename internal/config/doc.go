// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

/*
Package config provides configuration management for the audit service.

Configuration is layered with Koanf v2:

 1. Built-in defaults (defaultConfig)
 2. Optional YAML file: CONFIG_PATH, ./config.yaml, /etc/auditwal/config.yaml
 3. Environment variables mapped explicitly in envMappings

Unmapped environment variables are ignored.

# Sections

  - journal: directory and consume mode of the NDJSON journal
  - wal: flush cadence, queue capacity, batch size, write timeout
  - replay: boot replay switch, async mode, batch size
  - correlator: pending TTL, sweep interval, memory or badger store
  - writer: mode (http, db, nats, memory) and per-mode settings
  - server: HTTP API listener, rate limiting, CORS
  - logging: level, format, caller

# Encrypted credentials

Writer credentials and the DB DSN may be stored as "enc:<base64>" values
produced by CredentialEncryptor. They are decrypted during Load with the key
derived from AUDIT_SECRET_KEY (HKDF-SHA256, AES-256-GCM).

# Validation

Validate fails fast. cmd/server treats any error as fatal:

	cfg, err := config.Load()
	if err != nil {
	    logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

Example config.yaml:

	journal:
	  dir: /var/lib/auditwal/journal
	wal:
	  cadence_ms: 2000
	  queue_capacity: 5000
	writer:
	  mode: http
	  http:
	    url: https://audit.internal/ingest
	    credential: enc:3q2+7w...
*/
package config
