// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package ledger

import (
	"fmt"
	"time"
)

// Backend names accepted by NewLedger.
const (
	// BackendBadger selects the embedded BadgerDB store.
	BackendBadger = "badger"

	// BackendNatsKV selects the JetStream Key-Value store.
	BackendNatsKV = "natskv"
)

// Config holds ledger settings.
type Config struct {
	// Backend selects the store implementation: "badger" or "natskv".
	Backend string

	// ProcessingTTL is the lease duration: how long a PROCESSING record
	// blocks re-admission of its key before it is considered abandoned.
	// It must exceed the slowest expected pipeline run.
	ProcessingTTL time.Duration

	// MaxAttempts is the attempt budget before the coordinator forces a
	// DLQ transition for recoverable failures.
	MaxAttempts int

	Badger BadgerConfig
	NatsKV NatsKVConfig
}

// BadgerConfig holds embedded-store settings.
type BadgerConfig struct {
	// Path is the BadgerDB directory.
	Path string

	// SyncWrites forces an fsync per write. Slower, but a crash cannot
	// lose a committed status transition.
	SyncWrites bool

	// TxnRetries bounds retries of a conflicted read-modify-write.
	TxnRetries int
}

// NatsKVConfig holds JetStream Key-Value settings.
type NatsKVConfig struct {
	// Bucket is the KV bucket name holding records and index entries.
	Bucket string

	// Replicas is the bucket replication factor. Only meaningful when
	// the backing JetStream domain is clustered.
	Replicas int

	// TxnRetries bounds retries of a lost compare-and-swap race.
	TxnRetries int
}

// DefaultConfig returns production defaults for the ledger.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendBadger,
		ProcessingTTL: 10 * time.Minute,
		MaxAttempts:   5,
		Badger: BadgerConfig{
			Path:       "./data/ledger",
			TxnRetries: 5,
		},
		NatsKV: NatsKVConfig{
			Bucket:     "SEMEL_LEDGER",
			Replicas:   1,
			TxnRetries: 5,
		},
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendBadger, BackendNatsKV:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	if c.ProcessingTTL <= 0 {
		return fmt.Errorf("processing_ttl must be positive, got %v", c.ProcessingTTL)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be positive, got %d", c.MaxAttempts)
	}
	return nil
}
