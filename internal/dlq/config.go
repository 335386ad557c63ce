// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package dlq

import (
	"fmt"
	"time"
)

// Config holds dead-letter channel settings.
type Config struct {
	Store StoreConfig

	// Retention is how long archived entries are kept before the sweeper
	// removes them. Retention is measured from the last dead-lettering of
	// the key, so an entry that keeps failing keeps its record.
	Retention time.Duration

	// SweepInterval is how often the retention sweeper runs.
	SweepInterval time.Duration

	// RequeueRate caps requeued events per second, so a bulk requeue
	// cannot flood the ingestion path that just dead-lettered them.
	RequeueRate float64

	// RequeueBurst is the rate limiter's burst allowance.
	RequeueBurst int
}

// StoreConfig holds DuckDB settings for the inspection store.
type StoreConfig struct {
	// Path is the DuckDB database file. The parent directory is created
	// if missing.
	Path string

	// Threads is the DuckDB thread count; 0 means one per CPU.
	Threads int

	// MaxMemory is the DuckDB memory limit (e.g. "256MB").
	MaxMemory string
}

// DefaultConfig returns production defaults for the dead-letter channel.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Path:      "./data/dlq/dlq.db",
			Threads:   0,
			MaxMemory: "256MB",
		},
		Retention:     7 * 24 * time.Hour,
		SweepInterval: time.Hour,
		RequeueRate:   10,
		RequeueBurst:  20,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("dlq store path must not be empty")
	}
	if c.Retention <= 0 {
		return fmt.Errorf("dlq retention must be positive, got %v", c.Retention)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("dlq sweep_interval must be positive, got %v", c.SweepInterval)
	}
	if c.RequeueRate <= 0 {
		return fmt.Errorf("dlq requeue_rate must be positive, got %v", c.RequeueRate)
	}
	if c.RequeueBurst <= 0 {
		return fmt.Errorf("dlq requeue_burst must be positive, got %d", c.RequeueBurst)
	}
	return nil
}
