// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

// Package main is the entry point for the Semel server.
//
// Semel coordinates exactly-once processing of media events: it ingests
// object-storage notifications and direct API pushes, smooths bursty
// arrival into bounded batches over NATS JetStream, and guarantees via
// an idempotency ledger that each logically-identical event reaches
// completion at most once, no matter how often it is redelivered or how
// many workers race for it.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: settings from environment variables and config files (Koanf v2)
//  2. NATS: embedded JetStream server (default) or external cluster
//  3. Stream: idempotent provisioning of the events stream (batch + DLQ subjects)
//  4. Ledger: BadgerDB (embedded) or JetStream KV backend for idempotency records
//  5. Dead-letter store: DuckDB archive behind the DLQ admin API
//  6. Coordinator: admission, checksum dedupe, pipeline dispatch, escalation
//  7. Supervisor tree: flush loop, batch consumer, DLQ archiver, retention
//     sweeper, and the HTTP server as restartable services (suture)
//  8. HTTP server: ingestion, status, push ingress, DLQ admin, health, metrics
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file (config.yaml),
// built-in defaults. See internal/config for every variable.
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP
// server stops accepting connections, the flush loop drains buffered
// events to the stream, consumers stop, and stores close. In-flight
// pipeline work that dies with the process is re-admitted later through
// the ledger's lease expiry, not lost.
//
// # Example Usage
//
// Single-binary mode with embedded NATS and the BadgerDB ledger:
//
//	export NATS_STORE_DIR=/data/nats
//	export LEDGER_BADGER_PATH=/data/ledger
//	export DLQ_STORE_PATH=/data/dlq.duckdb
//	./semel
//
// Clustered mode against external NATS with the KV ledger:
//
//	export NATS_EMBEDDED=false
//	export NATS_URL=nats://nats:4222
//	export LEDGER_BACKEND=natskv
//	./semel
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

	"github.com/tomtom215/semel/internal/api"
	"github.com/tomtom215/semel/internal/config"
	"github.com/tomtom215/semel/internal/coordinator"
	"github.com/tomtom215/semel/internal/dlq"
	"github.com/tomtom215/semel/internal/eventstream"
	"github.com/tomtom215/semel/internal/ledger"
	"github.com/tomtom215/semel/internal/logging"
	"github.com/tomtom215/semel/internal/pipeline"
	"github.com/tomtom215/semel/internal/supervisor"
)

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Semel with supervisor tree")
	logging.Info().
		Str("ledger_backend", cfg.Ledger.Backend).
		Bool("nats_embedded", cfg.NATS.EmbeddedServer).
		Str("stream", cfg.Stream.Name).
		Str("environment", cfg.Server.Environment).
		Msg("Configuration loaded")

	// Bring up transport, ledger, stores, and batcher.
	comps, err := initComponents(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize components")
	}
	defer comps.Shutdown(context.Background())

	// Ingress: batcher-backed enqueue with inline size-trigger publish.
	ingestor, err := eventstream.NewIngestor(comps.batcher, comps.publisher)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create ingestor")
	}

	// Coordinator: ledger admission around the attached pipeline, with
	// dead-letter escalation through the DLQ router.
	dlqRouter, err := dlq.NewRouter(comps.publisher, cfg.Stream.DLQSubject)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create DLQ router")
	}

	coord, err := coordinator.New(comps.ledger, attachProcessor(), dlqRouter, coordinator.Config{
		MaxAttempts: cfg.Ledger.MaxAttempts,
		Pipeline: pipeline.Config{
			Version: cfg.Pipeline.Version,
			Timeout: cfg.Pipeline.Timeout,
		},
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create coordinator")
	}

	// Supervised services around the coordinator.
	flusher, err := eventstream.NewFlushService(comps.batcher, comps.publisher, cfg.Batcher.FlushInterval)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create flush service")
	}

	consumer := comps.subscriber.NewEnvelopeHandler(cfg.Stream.BatchSubject).Handle(coord.ConsumeEvent)

	archiver, err := dlq.NewArchiver(comps.dlqSubscriber, comps.store, cfg.Stream.DLQSubject)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create DLQ archiver")
	}

	sweeper, err := dlq.NewSweeper(comps.store, cfg.DLQ.Retention, cfg.DLQ.CleanupInterval)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create retention sweeper")
	}

	requeuer, err := dlq.NewRequeuer(comps.store, comps.ledger, comps.publisher,
		cfg.DLQ.RequeueRate, cfg.DLQ.RequeueBurst)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create DLQ requeuer")
	}

	// HTTP surface.
	handler, err := api.NewHandler(ingestor, coord, api.DLQAdmin{
		Store:     comps.store,
		Requeuer:  requeuer,
		Retention: cfg.DLQ.Retention,
	}, readinessChecks(comps))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create API handler")
	}

	mwCfg := api.DefaultMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.API.CORSOrigins
	mwCfg.RateLimitRequests = cfg.API.RateLimitReqs
	mwCfg.RateLimitWindow = cfg.API.RateLimitWindow
	mwCfg.RateLimitDisabled = cfg.API.RateLimitDisabled
	router := api.NewRouter(handler, api.NewMiddleware(mwCfg))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Supervisor tree: data, messaging, and API layers restart
	// independently so a flaky consumer cannot take the API down.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	tree.AddDataService(sweeper)
	tree.AddMessagingService(flusher)
	tree.AddMessagingService(consumer)
	tree.AddMessagingService(archiver)
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Semel stopped gracefully")
}

// readinessChecks probes the dependencies a healthy instance needs:
// the NATS connection, the ledger backend, and the dead-letter store.
func readinessChecks(comps *Components) []api.ReadyCheck {
	return []api.ReadyCheck{
		{
			Name: "nats",
			Check: func(ctx context.Context) error {
				if !comps.conn.IsConnected() {
					return fmt.Errorf("nats connection down: %s", comps.conn.Status())
				}
				return nil
			},
		},
		{
			Name: "ledger",
			Check: func(ctx context.Context) error {
				_, err := comps.ledger.Get(ctx, "readiness-probe")
				if err != nil && !errors.Is(err, ledger.ErrRecordNotFound) {
					return err
				}
				return nil
			},
		},
		{
			Name: "dlq_store",
			Check: func(ctx context.Context) error {
				_, err := comps.store.Count(ctx)
				return err
			},
		},
	}
}
