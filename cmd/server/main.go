// Auditwal - Durable Audit Journal and Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/auditwal

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/tomtom215/auditwal/docs" // swagger spec
	"github.com/tomtom215/auditwal/internal/api"
	"github.com/tomtom215/auditwal/internal/audit"
	"github.com/tomtom215/auditwal/internal/config"
	"github.com/tomtom215/auditwal/internal/journal"
	"github.com/tomtom215/auditwal/internal/logging"
	"github.com/tomtom215/auditwal/internal/metrics"
	"github.com/tomtom215/auditwal/internal/supervisor"
	"github.com/tomtom215/auditwal/internal/supervisor/services"
	"github.com/tomtom215/auditwal/internal/wal"
	"github.com/tomtom215/auditwal/internal/websocket"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// engineStopTimeout bounds the final flush on shutdown. Whatever the writer
// has not confirmed by then is journaled.
const engineStopTimeout = 30 * time.Second

//nolint:gocyclo // sequential startup
func main() {
	startTime := time.Now()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", Version).
		Str("journal_dir", cfg.Journal.Dir).
		Str("writer_mode", cfg.Writer.Mode).
		Str("pending_store", cfg.Correlator.Store).
		Int("cadence_ms", cfg.WAL.CadenceMs).
		Msg("Starting auditwal")

	metrics.SetAppInfo(Version, cfg.Writer.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === STORAGE ===

	j, err := journal.Open(journal.Config{
		Dir:         cfg.Journal.Dir,
		ConsumeMode: journal.ConsumeMode(cfg.Journal.ConsumeMode),
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open journal")
	}

	store, err := initPendingStore(&cfg.Correlator)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open pending store")
	}
	correlator := audit.NewCorrelator(store, audit.CorrelatorConfig{
		PendingTTL:        cfg.Correlator.PendingTTL,
		CompletedCapacity: cfg.Correlator.CompletedCapacity,
	})
	defer func() {
		if err := correlator.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing pending store")
		}
	}()

	w, writerChecks, err := initWriter(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Str("mode", cfg.Writer.Mode).Msg("Failed to initialize writer")
	}
	defer closeWriter(w)

	engine, err := wal.NewEngine(wal.Config{
		CadenceMs:       cfg.WAL.CadenceMs,
		QueueCapacity:   cfg.WAL.QueueCapacity,
		MaxBatchSize:    cfg.WAL.MaxBatchSize,
		WriteTimeout:    cfg.WAL.WriteTimeout,
		ReplayBatchSize: cfg.Replay.BatchSize,
	}, j, w, correlator)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create WAL engine")
	}
	// Runs after the tree has stopped, so no producer is left.
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), engineStopTimeout)
		defer stopCancel()
		if err := engine.Stop(stopCtx); err != nil {
			logging.Error().Err(err).Msg("WAL engine stopped with errors")
		}
	}()

	// === API ===

	hub := websocket.NewHub()
	engine.SetObserver(hub)

	checks := append([]api.HealthCheck{journalCheck(j)}, writerChecks...)
	handler := api.NewHandler(engine, api.HandlerConfig{MaxBodyBytes: cfg.Server.MaxBodyBytes}, checks...)

	guard, err := initAuthorizer(&cfg.Auth)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization")
	}

	router := api.NewRouter(handler, &api.ChiMiddlewareConfig{
		CORSAllowedOrigins: cfg.Server.CORSOrigins,
		CORSMaxAge:         86400,
		RateLimitRequests:  cfg.Server.RateLimitReqs,
		RateLimitWindow:    cfg.Server.RateLimitWindow,
		RateLimitDisabled:  cfg.Server.RateLimitDisabled,
	}).
		WithAuthorizer(guard.Authorize).
		WithStream(websocket.Handler(hub, cfg.Server.CORSOrigins))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadTimeout:       cfg.Server.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	// === BOOT REPLAY ===

	switch {
	case !cfg.Replay.OnBoot:
		logging.Info().Msg("Boot replay disabled (AUDIT_REPLAY_ON_BOOT=false)")
		handler.SetReady(true)
	case cfg.Replay.Async:
		go func() {
			bootReplay(ctx, engine)
			handler.SetReady(true)
		}()
	default:
		bootReplay(ctx, engine)
		handler.SetReady(true)
	}

	// === SUPERVISOR TREE ===

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if cfg.WAL.CadenceMs > 0 {
		tree.AddDataService(services.NewLifecycleService("wal-flush-loop", engine.Loop()))
	} else {
		logging.Info().Msg("Flush cadence is 0: records are delivered only on explicit flush and shutdown")
	}
	sweeper := audit.NewSweeper(correlator, cfg.Correlator.SweepInterval, engine.SweepSink())
	tree.AddDataService(services.NewLifecycleService("pending-sweeper", sweeper))
	tree.AddDataService(services.NewUptimeService(startTime, 0))

	tree.AddAPIService(hub)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
		cancel()
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Supervisor stopped, running final flush")
}

// bootReplay drains journal files left by a previous run. Failures are
// logged; the files stay on disk for the next flush or restart.
func bootReplay(ctx context.Context, engine *wal.Engine) {
	stats, err := engine.Replay(ctx)
	if err != nil {
		logging.Error().Err(err).
			Int("files_failed", stats.FilesFailed).
			Msg("Boot replay incomplete, remaining files will be retried by the flush loop")
	}
}
