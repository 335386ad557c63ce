// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

// Package config handles application configuration loaded via Koanf v2 with
// layered sources (highest priority wins):
//
//  1. Environment variables (see the mappings in koanf.go)
//  2. Config file (config.yaml, or CONFIG_PATH)
//  3. Built-in defaults
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access from
// multiple goroutines.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the Semel server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Ledger   LedgerConfig   `koanf:"ledger"`
	Batcher  BatcherConfig  `koanf:"batcher"`
	NATS     NATSConfig     `koanf:"nats"`
	Stream   StreamConfig   `koanf:"stream"`
	DLQ      DLQConfig      `koanf:"dlq"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_PORT: Listen port (default: 8080)
//   - HTTP_HOST: Listen host (default: 0.0.0.0)
//   - HTTP_TIMEOUT: Request timeout (default: 30s)
//   - ENVIRONMENT: "development", "staging", "production" (default: development)
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// LedgerConfig holds idempotency ledger settings.
//
// The ledger decides, per dedupe key, whether an incoming event is processed,
// skipped because another worker holds the lease, or skipped because the key
// already reached a terminal state.
//
// Environment Variables:
//   - LEDGER_BACKEND: "badger" (embedded) or "natskv" (JetStream KV) (default: badger)
//   - LEDGER_PROCESSING_TTL: Lease duration for PROCESSING records (default: 10m)
//   - LEDGER_MAX_ATTEMPTS: Attempt budget before forced dead-lettering (default: 5)
type LedgerConfig struct {
	// Backend selects the record store: "badger" or "natskv".
	Backend string `koanf:"backend"`

	// ProcessingTTL is the lease duration. A PROCESSING record older than
	// this is considered abandoned and eligible for a new attempt.
	ProcessingTTL time.Duration `koanf:"processing_ttl"`

	// MaxAttempts is the attempt budget. A recoverable failure on the final
	// attempt forces the record to DLQ with error code MAX_ATTEMPTS.
	MaxAttempts int `koanf:"max_attempts"`

	Badger BadgerConfig `koanf:"badger"`
	NatsKV NatsKVConfig `koanf:"natskv"`
}

// BadgerConfig holds settings for the embedded BadgerDB ledger backend.
//
// Environment Variables:
//   - LEDGER_BADGER_PATH: Storage directory (default: /data/ledger)
//   - LEDGER_BADGER_SYNC_WRITES: fsync each write (default: true)
//   - LEDGER_BADGER_TXN_RETRIES: Max transaction retries per Begin (default: 5)
type BadgerConfig struct {
	Path       string `koanf:"path"`
	SyncWrites bool   `koanf:"sync_writes"`
	TxnRetries int    `koanf:"txn_retries"`
}

// NatsKVConfig holds settings for the JetStream Key-Value ledger backend.
//
// Environment Variables:
//   - LEDGER_KV_BUCKET: KV bucket name (default: SEMEL_LEDGER)
//   - LEDGER_KV_REPLICAS: Bucket replica count (default: 1)
//   - LEDGER_KV_TXN_RETRIES: Max CAS retries per Begin (default: 5)
type NatsKVConfig struct {
	Bucket     string `koanf:"bucket"`
	Replicas   int    `koanf:"replicas"`
	TxnRetries int    `koanf:"txn_retries"`
}

// BatcherConfig holds stream batcher settings.
//
// Environment Variables:
//   - BATCH_MAX_SIZE: Events per batch before an immediate flush (default: 100)
//   - BATCH_MAX_LATENCY: Max time an event may wait buffered (default: 2s)
//   - BATCH_MAX_BACKLOG: Admission-control ceiling; Add() beyond this is
//     rejected with a backpressure error (default: 1000)
//   - BATCH_FLUSH_INTERVAL: Poll interval of the periodic flush task (default: 500ms)
type BatcherConfig struct {
	MaxBatchSize  int           `koanf:"max_batch_size"`
	MaxLatency    time.Duration `koanf:"max_latency"`
	MaxBacklog    int           `koanf:"max_backlog"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// NATSConfig holds NATS connection and embedded server settings.
//
// Environment Variables:
//   - NATS_URL: Server URL (default: nats://127.0.0.1:4222)
//   - NATS_EMBEDDED: Run an in-process JetStream server (default: true)
//   - NATS_STORE_DIR: JetStream storage directory for the embedded server
//   - NATS_MAX_MEMORY: JetStream max memory (default: 1GB)
//   - NATS_MAX_STORE: JetStream max disk (default: 10GB)
type NATSConfig struct {
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`
}

// StreamConfig holds JetStream stream and consumer settings for the batch bus.
//
// Environment Variables:
//   - STREAM_NAME: Stream name (default: EVENTS)
//   - STREAM_BATCH_SUBJECT: Subject for batch envelopes (default: EVENTS.batch)
//   - STREAM_DLQ_SUBJECT: Subject for dead letters (default: EVENTS.dlq)
//   - STREAM_MAX_AGE: Message retention (default: 168h)
//   - STREAM_DUPLICATE_WINDOW: JetStream dedup window (default: 2m)
//   - STREAM_DURABLE_NAME: Durable consumer name (default: semel-coordinator)
//   - STREAM_QUEUE_GROUP: Queue group for horizontal scaling (default: coordinators)
//   - STREAM_MAX_DELIVER: Max redeliveries per message (default: 5)
//   - STREAM_ACK_WAIT: Redelivery timeout (default: 30s)
type StreamConfig struct {
	Name            string        `koanf:"name"`
	BatchSubject    string        `koanf:"batch_subject"`
	DLQSubject      string        `koanf:"dlq_subject"`
	MaxAge          time.Duration `koanf:"max_age"`
	DuplicateWindow time.Duration `koanf:"duplicate_window"`
	DurableName     string        `koanf:"durable_name"`
	QueueGroup      string        `koanf:"queue_group"`
	MaxDeliver      int           `koanf:"max_deliver"`
	AckWait         time.Duration `koanf:"ack_wait"`
}

// DLQConfig holds dead-letter persistence and requeue settings.
//
// Environment Variables:
//   - DLQ_STORE_PATH: DuckDB file for the inspection store (default: /data/dlq.duckdb)
//   - DLQ_RETENTION: How long entries are kept (default: 720h)
//   - DLQ_CLEANUP_INTERVAL: Retention sweep interval (default: 1h)
//   - DLQ_REQUEUE_RATE: Max requeue operations per second (default: 10)
//   - DLQ_REQUEUE_BURST: Requeue token bucket burst (default: 5)
type DLQConfig struct {
	StorePath       string        `koanf:"store_path"`
	Retention       time.Duration `koanf:"retention"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RequeueRate     float64       `koanf:"requeue_rate"`
	RequeueBurst    int           `koanf:"requeue_burst"`
}

// PipelineConfig holds settings passed to the external processing pipeline.
//
// Environment Variables:
//   - PIPELINE_VERSION: Version tag recorded on ledger records (default: v1)
//   - PIPELINE_TIMEOUT: Per-event processing deadline (default: 5m)
type PipelineConfig struct {
	Version string        `koanf:"version"`
	Timeout time.Duration `koanf:"timeout"`
}

// APIConfig holds API pagination, rate limiting and CORS settings.
//
// Environment Variables:
//   - API_DEFAULT_PAGE_SIZE: Default page size for list endpoints (default: 20)
//   - API_MAX_PAGE_SIZE: Max page size for list endpoints (default: 100)
//   - RATE_LIMIT_REQUESTS: Requests per window per client (default: 100)
//   - RATE_LIMIT_WINDOW: Rate limit window (default: 1m)
//   - DISABLE_RATE_LIMIT: Disable rate limiting entirely (default: false)
//   - CORS_ORIGINS: Comma-separated allowed origins (default: empty)
type APIConfig struct {
	DefaultPageSize   int           `koanf:"default_page_size"`
	MaxPageSize       int           `koanf:"max_page_size"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings for zerolog.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, config file, and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLedger(); err != nil {
		return err
	}
	if err := c.validateBatcher(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validateStream(); err != nil {
		return err
	}
	if err := c.validateDLQ(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %v", c.Server.Timeout)
	}
	return nil
}

func (c *Config) validateLedger() error {
	switch c.Ledger.Backend {
	case "badger", "natskv":
	default:
		return fmt.Errorf("LEDGER_BACKEND must be \"badger\" or \"natskv\", got %q", c.Ledger.Backend)
	}
	if c.Ledger.ProcessingTTL <= 0 {
		return fmt.Errorf("LEDGER_PROCESSING_TTL must be positive, got %v", c.Ledger.ProcessingTTL)
	}
	if c.Ledger.MaxAttempts < 1 {
		return fmt.Errorf("LEDGER_MAX_ATTEMPTS must be at least 1, got %d", c.Ledger.MaxAttempts)
	}
	if c.Ledger.Backend == "badger" && c.Ledger.Badger.Path == "" {
		return fmt.Errorf("LEDGER_BADGER_PATH is required when LEDGER_BACKEND=badger")
	}
	if c.Ledger.Backend == "natskv" {
		if c.Ledger.NatsKV.Bucket == "" {
			return fmt.Errorf("LEDGER_KV_BUCKET is required when LEDGER_BACKEND=natskv")
		}
		if c.Ledger.NatsKV.TxnRetries < 1 {
			return fmt.Errorf("LEDGER_KV_TXN_RETRIES must be at least 1, got %d", c.Ledger.NatsKV.TxnRetries)
		}
	}
	return nil
}

func (c *Config) validateBatcher() error {
	if c.Batcher.MaxBatchSize < 1 {
		return fmt.Errorf("BATCH_MAX_SIZE must be at least 1, got %d", c.Batcher.MaxBatchSize)
	}
	if c.Batcher.MaxBacklog < c.Batcher.MaxBatchSize {
		return fmt.Errorf("BATCH_MAX_BACKLOG (%d) must be at least BATCH_MAX_SIZE (%d)",
			c.Batcher.MaxBacklog, c.Batcher.MaxBatchSize)
	}
	if c.Batcher.MaxLatency <= 0 {
		return fmt.Errorf("BATCH_MAX_LATENCY must be positive, got %v", c.Batcher.MaxLatency)
	}
	if c.Batcher.FlushInterval <= 0 {
		return fmt.Errorf("BATCH_FLUSH_INTERVAL must be positive, got %v", c.Batcher.FlushInterval)
	}
	// The flush task is what enforces the latency bound; polling slower than
	// the bound would silently stretch worst-case delivery delay.
	if c.Batcher.FlushInterval > c.Batcher.MaxLatency {
		return fmt.Errorf("BATCH_FLUSH_INTERVAL (%v) must not exceed BATCH_MAX_LATENCY (%v)",
			c.Batcher.FlushInterval, c.Batcher.MaxLatency)
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.EmbeddedServer && c.NATS.URL == "" {
		return fmt.Errorf("NATS_URL is required when NATS_EMBEDDED=false")
	}
	if c.NATS.EmbeddedServer && c.NATS.StoreDir == "" {
		return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
	}
	return nil
}

func (c *Config) validateStream() error {
	if c.Stream.Name == "" {
		return fmt.Errorf("STREAM_NAME must not be empty")
	}
	if c.Stream.BatchSubject == "" || c.Stream.DLQSubject == "" {
		return fmt.Errorf("STREAM_BATCH_SUBJECT and STREAM_DLQ_SUBJECT must not be empty")
	}
	if !strings.HasPrefix(c.Stream.BatchSubject, c.Stream.Name+".") ||
		!strings.HasPrefix(c.Stream.DLQSubject, c.Stream.Name+".") {
		return fmt.Errorf("stream subjects must be under the %q stream prefix", c.Stream.Name)
	}
	if c.Stream.DuplicateWindow > c.Stream.MaxAge {
		return fmt.Errorf("STREAM_DUPLICATE_WINDOW (%v) must not exceed STREAM_MAX_AGE (%v)",
			c.Stream.DuplicateWindow, c.Stream.MaxAge)
	}
	return nil
}

func (c *Config) validateDLQ() error {
	if c.DLQ.StorePath == "" {
		return fmt.Errorf("DLQ_STORE_PATH must not be empty")
	}
	if c.DLQ.Retention <= 0 {
		return fmt.Errorf("DLQ_RETENTION must be positive, got %v", c.DLQ.Retention)
	}
	if c.DLQ.RequeueRate <= 0 {
		return fmt.Errorf("DLQ_REQUEUE_RATE must be positive, got %v", c.DLQ.RequeueRate)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal; got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console", "":
	default:
		return fmt.Errorf("LOG_FORMAT must be \"json\" or \"console\", got %q", c.Logging.Format)
	}
	return nil
}
