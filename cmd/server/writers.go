// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/tomtom215/auditwal/internal/api"
	"github.com/tomtom215/auditwal/internal/audit"
	"github.com/tomtom215/auditwal/internal/authz"
	"github.com/tomtom215/auditwal/internal/config"
	"github.com/tomtom215/auditwal/internal/journal"
	"github.com/tomtom215/auditwal/internal/logging"
	"github.com/tomtom215/auditwal/internal/writer"
)

// jwtIssuer is the iss claim on minted writer credentials.
const jwtIssuer = "auditwal"

// initWriter builds the delivery writer for cfg.Writer.Mode. The returned
// health checks are registered on the readiness probe.
func initWriter(ctx context.Context, cfg *config.Config) (writer.Writer, []api.HealthCheck, error) {
	wc := cfg.Writer

	switch wc.Mode {
	case config.WriterHTTP:
		w, err := writer.NewHTTPWriter(httpWriterConfig(&wc.HTTP))
		if err != nil {
			return nil, nil, err
		}
		return w, nil, nil

	case config.WriterDB:
		w, err := writer.NewDBWriter(ctx, writer.DBConfig{
			Driver: wc.DB.Driver,
			DSN:    wc.DB.DSN,
			Table:  wc.DB.Table,
		})
		if err != nil {
			return nil, nil, err
		}
		return w, []api.HealthCheck{{Name: "database", Check: w.Ping}}, nil

	case config.WriterNATS:
		w, err := writer.NewNATSWriter(ctx, writer.NATSConfig{
			URL:             wc.NATS.URL,
			SubjectPrefix:   wc.NATS.SubjectPrefix,
			Stream:          wc.NATS.Stream,
			Embedded:        wc.NATS.Embedded,
			StoreDir:        wc.NATS.StoreDir,
			DuplicateWindow: wc.NATS.DuplicateWindow,
		})
		if err != nil {
			return nil, nil, err
		}
		check := func(context.Context) error {
			if !w.Connected() {
				return errors.New("not connected")
			}
			return nil
		}
		return w, []api.HealthCheck{{Name: "nats", Check: check}}, nil

	case config.WriterMemory:
		logging.Warn().Msg("Memory writer selected: delivered records are not persisted anywhere")
		return writer.NewMemoryWriter(), nil, nil
	}

	return nil, nil, fmt.Errorf("unknown writer mode %q", wc.Mode)
}

// httpWriterConfig maps configuration onto the writer. A signing secret
// takes precedence over static credentials.
func httpWriterConfig(hc *config.HTTPWriterConfig) writer.HTTPConfig {
	out := writer.HTTPConfig{
		URL:         hc.URL,
		AuthHeader:  writer.AuthHeader(hc.AuthHeader),
		MaxAttempts: hc.MaxAttempts,
		Backoff:     hc.Backoff,
		Timeout:     hc.Timeout,
		RateLimit:   hc.RateLimitRPS,
	}

	if hc.SigningSecret != "" {
		out.Primary = writer.NewJWTCredential(hc.SigningSecret, jwtIssuer, hc.URL, hc.TokenTTL)
		return out
	}

	out.Primary = writer.StaticCredential(hc.Credential)
	if hc.SecondaryCredential != "" {
		out.Secondary = writer.StaticCredential(hc.SecondaryCredential)
	}
	return out
}

// initPendingStore opens the store that holds unmatched halves.
func initPendingStore(cc *config.CorrelatorConfig) (audit.PendingStore, error) {
	switch cc.Store {
	case config.StoreBadger:
		store, err := audit.OpenBadgerPendingStore(cc.Path)
		if err != nil {
			return nil, fmt.Errorf("open badger pending store: %w", err)
		}
		return store, nil
	case config.StoreMemory, "":
		return audit.NewMemoryPendingStore(), nil
	}
	return nil, fmt.Errorf("unknown pending store %q", cc.Store)
}

// initAuthorizer builds the API key guard for the audit routes. With no
// keys configured the guard passes everything through.
func initAuthorizer(ac *config.AuthConfig) (*authz.Middleware, error) {
	enforcer, err := authz.NewEnforcer(authz.EnforcerConfig{PolicyPath: ac.PolicyPath})
	if err != nil {
		return nil, err
	}
	ring, err := authz.NewKeyRing(ac.APIKeys, enforcer)
	if err != nil {
		return nil, err
	}

	guard := authz.NewMiddleware(ring, enforcer, api.WriteError)
	if guard.Enabled() {
		logging.Info().Int("keys", ring.Len()).Str("policy", policyName(ac.PolicyPath)).Msg("API key authorization enabled")
	} else {
		logging.Warn().Msg("No API keys configured: audit routes are unauthenticated")
	}
	return guard, nil
}

func policyName(path string) string {
	if path == "" {
		return "builtin"
	}
	return path
}

// journalCheck fails when the journal directory has gone away.
func journalCheck(j *journal.Journal) api.HealthCheck {
	return api.HealthCheck{
		Name:     "journal",
		Critical: true,
		Check: func(context.Context) error {
			info, err := os.Stat(j.Dir())
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", j.Dir())
			}
			return nil
		},
	}
}

// closeWriter closes w if it holds resources.
func closeWriter(w writer.Writer) {
	c, ok := w.(writer.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logging.Error().Err(err).Msg("Error closing writer")
	}
}
