// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/semel/config.yaml",
	"/etc/semel/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Ledger: LedgerConfig{
			Backend:       "badger",
			ProcessingTTL: 10 * time.Minute,
			MaxAttempts:   5,
			Badger: BadgerConfig{
				Path:       "/data/ledger",
				SyncWrites: true,
				TxnRetries: 5,
			},
			NatsKV: NatsKVConfig{
				Bucket:     "SEMEL_LEDGER",
				Replicas:   1,
				TxnRetries: 5,
			},
		},
		Batcher: BatcherConfig{
			MaxBatchSize:  100,
			MaxLatency:    2 * time.Second,
			MaxBacklog:    1000,
			FlushInterval: 500 * time.Millisecond,
		},
		NATS: NATSConfig{
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats/jetstream",
			MaxMemory:      1 << 30,  // 1GB
			MaxStore:       10 << 30, // 10GB
		},
		Stream: StreamConfig{
			Name:            "EVENTS",
			BatchSubject:    "EVENTS.batch",
			DLQSubject:      "EVENTS.dlq",
			MaxAge:          168 * time.Hour, // 7 days
			DuplicateWindow: 2 * time.Minute,
			DurableName:     "semel-coordinator",
			QueueGroup:      "coordinators",
			MaxDeliver:      5,
			AckWait:         30 * time.Second,
		},
		DLQ: DLQConfig{
			StorePath:       "/data/dlq.duckdb",
			Retention:       720 * time.Hour, // 30 days
			CleanupInterval: time.Hour,
			RequeueRate:     10,
			RequeueBurst:    5,
		},
		Pipeline: PipelineConfig{
			Version: "v1",
			Timeout: 5 * time.Minute,
		},
		API: APIConfig{
			DefaultPageSize:   20,
			MaxPageSize:       100,
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// This function provides:
//   - Type-safe configuration unmarshaling
//   - Clear precedence: ENV > File > Defaults
//   - Support for nested configuration via koanf struct tags
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// Transform environment variable names to koanf paths:
	// LEDGER_BACKEND -> ledger.backend
	// BATCH_MAX_SIZE -> batcher.max_batch_size
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	// Unmarshal into Config struct
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	// Check environment variable first
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	// Search default paths
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"api.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// This is necessary because env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// If it's already a slice (from YAML file), skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		// If it's a string, split by comma
		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - LEDGER_BACKEND -> ledger.backend
//   - BATCH_MAX_SIZE -> batcher.max_batch_size
//   - NATS_EMBEDDED -> nats.embedded_server
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",

		// Ledger mappings
		"ledger_backend":            "ledger.backend",
		"ledger_processing_ttl":     "ledger.processing_ttl",
		"ledger_max_attempts":       "ledger.max_attempts",
		"ledger_badger_path":        "ledger.badger.path",
		"ledger_badger_sync_writes": "ledger.badger.sync_writes",
		"ledger_badger_txn_retries": "ledger.badger.txn_retries",
		"ledger_kv_bucket":          "ledger.natskv.bucket",
		"ledger_kv_replicas":        "ledger.natskv.replicas",
		"ledger_kv_txn_retries":     "ledger.natskv.txn_retries",

		// Batcher mappings
		"batch_max_size":       "batcher.max_batch_size",
		"batch_max_latency":    "batcher.max_latency",
		"batch_max_backlog":    "batcher.max_backlog",
		"batch_flush_interval": "batcher.flush_interval",

		// NATS mappings
		"nats_url":        "nats.url",
		"nats_embedded":   "nats.embedded_server",
		"nats_store_dir":  "nats.store_dir",
		"nats_max_memory": "nats.max_memory",
		"nats_max_store":  "nats.max_store",

		// Stream mappings
		"stream_name":             "stream.name",
		"stream_batch_subject":    "stream.batch_subject",
		"stream_dlq_subject":      "stream.dlq_subject",
		"stream_max_age":          "stream.max_age",
		"stream_duplicate_window": "stream.duplicate_window",
		"stream_durable_name":     "stream.durable_name",
		"stream_queue_group":      "stream.queue_group",
		"stream_max_deliver":      "stream.max_deliver",
		"stream_ack_wait":         "stream.ack_wait",

		// DLQ mappings
		"dlq_store_path":       "dlq.store_path",
		"dlq_retention":        "dlq.retention",
		"dlq_cleanup_interval": "dlq.cleanup_interval",
		"dlq_requeue_rate":     "dlq.requeue_rate",
		"dlq_requeue_burst":    "dlq.requeue_burst",

		// Pipeline mappings
		"pipeline_version": "pipeline.version",
		"pipeline_timeout": "pipeline.timeout",

		// API mappings
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",
		"rate_limit_requests":   "api.rate_limit_reqs",
		"rate_limit_window":     "api.rate_limit_window",
		"disable_rate_limit":    "api.rate_limit_disabled",
		"cors_origins":          "api.cors_origins",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}

// GetKoanfInstance returns a new Koanf instance for advanced usage.
// This is useful for:
//   - Hot-reload scenarios (with proper mutex protection)
//   - Custom configuration sources
//   - Testing with mock configurations
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}

// WatchConfigFile sets up a file watcher for hot-reload capability.
// Note: The caller is responsible for mutex protection when accessing
// configuration during reloads.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	// Start watching the file for changes
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
