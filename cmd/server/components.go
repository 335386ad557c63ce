// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/semel/internal/config"
	"github.com/tomtom215/semel/internal/dlq"
	"github.com/tomtom215/semel/internal/eventstream"
	"github.com/tomtom215/semel/internal/ledger"
	"github.com/tomtom215/semel/internal/logging"
)

// Components aggregates the stateful infrastructure the server runs on:
// the NATS transport, the idempotency ledger, the dead-letter store, and
// the ingress batcher. Supervised services (flush loop, consumers, HTTP
// server) are built on top of these in main and owned by the supervisor
// tree, not by this aggregate.
type Components struct {
	// Embedded NATS server, nil when connecting to an external one.
	embedded *eventstream.EmbeddedServer

	// Raw connection used for stream provisioning and the natskv ledger
	// backend. The watermill publisher and subscribers hold their own
	// connections internally.
	conn *natsgo.Conn

	streams       *eventstream.StreamManager
	publisher     *eventstream.Publisher
	subscriber    *eventstream.Subscriber
	dlqSubscriber *eventstream.Subscriber

	ledger  ledger.Ledger
	store   *dlq.Store
	batcher *eventstream.Batcher

	mu     sync.Mutex
	closed bool
}

// initComponents brings up the infrastructure in dependency order:
// embedded server (optional), connection, stream, publisher, subscribers,
// ledger, dead-letter store, batcher. On any failure the components
// created so far are shut down before the error is returned.
func initComponents(cfg *config.Config) (*Components, error) {
	c := &Components{}
	ctx := context.Background()

	// Step 1: embedded NATS server, or an external URL.
	var natsURL string
	if cfg.NATS.EmbeddedServer {
		serverCfg := eventstream.ServerConfig{
			Host:              "127.0.0.1",
			Port:              4222,
			StoreDir:          cfg.NATS.StoreDir,
			JetStreamMaxMem:   cfg.NATS.MaxMemory,
			JetStreamMaxStore: cfg.NATS.MaxStore,
		}

		embedded, err := eventstream.NewEmbeddedServer(&serverCfg)
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		c.embedded = embedded
		natsURL = embedded.ClientURL()
		logging.Info().Str("url", natsURL).Msg("Embedded NATS server started")
	} else {
		natsURL = cfg.NATS.URL
		logging.Info().Str("url", natsURL).Msg("Using external NATS server")
	}

	// Step 2: raw connection for provisioning and the KV ledger.
	nc, err := natsgo.Connect(natsURL,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	c.conn = nc

	// Step 3: provision the events stream before anything publishes or
	// subscribes. Both subjects live on one stream so the duplicate
	// window and retention are managed in one place.
	streams, err := eventstream.NewStreamManager(nc, streamConfig(cfg))
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("create stream manager: %w", err)
	}
	c.streams = streams

	stream, err := streams.EnsureStream(ctx)
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("ensure stream exists: %w", err)
	}
	streamInfo := stream.CachedInfo()
	logging.Info().
		Str("name", streamInfo.Config.Name).
		Strs("subjects", streamInfo.Config.Subjects).
		Dur("max_age", streamInfo.Config.MaxAge).
		Dur("duplicate_window", streamInfo.Config.Duplicates).
		Msg("JetStream stream ready")

	// Step 4: circuit-broken publisher for batch and DLQ subjects.
	publisher, err := eventstream.NewPublisher(
		eventstream.DefaultPublisherConfig(natsURL), cfg.Stream.BatchSubject, nil)
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	publisher.SetCircuitBreaker(eventstream.NewCircuitBreaker(
		eventstream.DefaultCircuitBreakerConfig("nats-publisher")))
	c.publisher = publisher
	logging.Info().Msg("NATS publisher created")

	// Step 5: one durable subscriber per consuming path, so the batch
	// consumer and the DLQ archiver keep independent delivery cursors.
	subscriber, err := eventstream.NewSubscriber(subscriberConfig(cfg, natsURL), nil)
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("create batch subscriber: %w", err)
	}
	c.subscriber = subscriber

	dlqSubscriber, err := eventstream.NewSubscriber(dlqSubscriberConfig(cfg, natsURL), nil)
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("create DLQ subscriber: %w", err)
	}
	c.dlqSubscriber = dlqSubscriber
	logging.Info().
		Str("durable", cfg.Stream.DurableName).
		Str("queue_group", cfg.Stream.QueueGroup).
		Msg("NATS subscribers created")

	// Step 6: idempotency ledger. The natskv backend shares the raw
	// connection; badger opens its own directory.
	led, err := ledger.NewLedger(ctx, ledgerConfig(cfg), nc)
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("initialize idempotency ledger: %w", err)
	}
	c.ledger = led
	logging.Info().
		Str("backend", cfg.Ledger.Backend).
		Dur("processing_ttl", cfg.Ledger.ProcessingTTL).
		Int("max_attempts", cfg.Ledger.MaxAttempts).
		Msg("Idempotency ledger ready")

	// Step 7: dead-letter inspection store.
	storeCfg := dlq.DefaultConfig().Store
	storeCfg.Path = cfg.DLQ.StorePath
	store, err := dlq.NewStore(ctx, storeCfg)
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("open dead-letter store: %w", err)
	}
	c.store = store
	logging.Info().Str("path", cfg.DLQ.StorePath).Msg("Dead-letter store ready")

	// Step 8: ingress batcher.
	batcher, err := eventstream.NewBatcher(batcherConfig(cfg))
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("create batcher: %w", err)
	}
	c.batcher = batcher

	return c, nil
}

// Shutdown stops the infrastructure. Safe to call more than once.
//
// The supervisor tree has already stopped its services when this runs,
// so the flush loop has drained the batcher. Order here:
//  1. Close subscribers (stop message intake)
//  2. Close publisher (nothing publishes after the flush drain)
//  3. Close batcher (admission already stopped with the API)
//  4. Close ledger and dead-letter store
//  5. Close the raw NATS connection
//  6. Shut down the embedded server last
func (c *Components) Shutdown(ctx context.Context) {
	if c == nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	logging.Info().Msg("Shutting down components...")

	if c.subscriber != nil {
		if err := c.subscriber.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing batch subscriber")
		}
	}
	if c.dlqSubscriber != nil {
		if err := c.dlqSubscriber.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing DLQ subscriber")
		}
	}

	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing publisher")
		}
	}

	if c.batcher != nil {
		c.batcher.Close()
	}

	if c.ledger != nil {
		if err := c.ledger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing ledger")
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing dead-letter store")
		}
	}

	if c.conn != nil {
		c.conn.Close()
	}

	if c.embedded != nil {
		if err := c.embedded.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("Error shutting down embedded NATS server")
		}
		logging.Info().Msg("Embedded NATS server stopped")
	}

	logging.Info().Msg("Components shut down")
}

// streamConfig maps application config onto the stream manager's.
func streamConfig(cfg *config.Config) *eventstream.StreamConfig {
	sc := eventstream.DefaultStreamConfig()
	sc.Name = cfg.Stream.Name
	sc.BatchSubject = cfg.Stream.BatchSubject
	sc.DlqSubject = cfg.Stream.DLQSubject
	sc.MaxAge = cfg.Stream.MaxAge
	sc.DuplicateWindow = cfg.Stream.DuplicateWindow
	return &sc
}

// subscriberConfig builds the durable batch consumer settings. MaxDeliver
// is broker-level redelivery; the ledger's attempt budget is the real
// cap on how often one key is processed.
func subscriberConfig(cfg *config.Config, natsURL string) *eventstream.SubscriberConfig {
	sc := eventstream.DefaultSubscriberConfig(natsURL)
	sc.DurableName = cfg.Stream.DurableName
	sc.QueueGroup = cfg.Stream.QueueGroup
	sc.AckWaitTimeout = cfg.Stream.AckWait
	sc.MaxDeliver = cfg.Stream.MaxDeliver
	sc.StreamName = cfg.Stream.Name
	return &sc
}

// dlqSubscriberConfig derives the archiver's consumer settings from the
// batch consumer's, under distinct durable and queue group names.
func dlqSubscriberConfig(cfg *config.Config, natsURL string) *eventstream.SubscriberConfig {
	sc := subscriberConfig(cfg, natsURL)
	sc.DurableName = cfg.Stream.DurableName + "-dlq"
	sc.QueueGroup = cfg.Stream.QueueGroup + "-dlq"
	return sc
}

// ledgerConfig maps application config onto the ledger package's.
func ledgerConfig(cfg *config.Config) ledger.Config {
	return ledger.Config{
		Backend:       cfg.Ledger.Backend,
		ProcessingTTL: cfg.Ledger.ProcessingTTL,
		MaxAttempts:   cfg.Ledger.MaxAttempts,
		Badger: ledger.BadgerConfig{
			Path:       cfg.Ledger.Badger.Path,
			SyncWrites: cfg.Ledger.Badger.SyncWrites,
			TxnRetries: cfg.Ledger.Badger.TxnRetries,
		},
		NatsKV: ledger.NatsKVConfig{
			Bucket:     cfg.Ledger.NatsKV.Bucket,
			Replicas:   cfg.Ledger.NatsKV.Replicas,
			TxnRetries: cfg.Ledger.NatsKV.TxnRetries,
		},
	}
}

// batcherConfig maps application config onto the batcher's.
func batcherConfig(cfg *config.Config) eventstream.BatcherConfig {
	return eventstream.BatcherConfig{
		MaxBatchSize:  cfg.Batcher.MaxBatchSize,
		MaxLatency:    cfg.Batcher.MaxLatency,
		MaxBacklog:    cfg.Batcher.MaxBacklog,
		FlushInterval: cfg.Batcher.FlushInterval,
	}
}
