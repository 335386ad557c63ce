// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/semel/internal/eventstream"
)

// Config carries the per-invocation pipeline parameters.
type Config struct {
	// Version identifies the pipeline revision and is recorded on every
	// ledger record so results can be traced to the code that produced them.
	Version string

	// Timeout bounds a single Process call. The coordinator cancels the
	// context when it elapses; the lease TTL, not this timeout, is what
	// re-admits the key if the worker dies anyway.
	Timeout time.Duration
}

// DefaultConfig returns production defaults for the pipeline boundary.
func DefaultConfig() Config {
	return Config{
		Version: "v1",
		Timeout: 5 * time.Minute,
	}
}

// Validate checks the configuration for correctness.
func (c Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("pipeline version must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("pipeline timeout must be positive, got %v", c.Timeout)
	}
	return nil
}

// Result summarizes one successful pipeline run.
type Result struct {
	// ManifestRef points at the manifest the pipeline wrote for this object.
	ManifestRef string `json:"manifest_ref"`

	// AssetID is the pipeline's stable identifier for the processed asset.
	AssetID string `json:"asset_id"`

	// Counts holds per-artifact tallies (frames, segments, embeddings).
	Counts map[string]int `json:"counts,omitempty"`

	// DurationMS is the pipeline's own processing time in milliseconds.
	DurationMS int64 `json:"duration_ms"`
}

// Processor is the boundary to an external media processing pipeline.
//
// Implementations classify failures using the taxonomy in this package:
// return a *RecoverableError for faults worth retrying and a
// *PermanentError for content that can never succeed. Any other error is
// treated as an internal fault.
type Processor interface {
	Process(ctx context.Context, event *eventstream.StreamEvent, cfg Config) (*Result, error)
}

// Func adapts an ordinary function to the Processor interface.
type Func func(ctx context.Context, event *eventstream.StreamEvent, cfg Config) (*Result, error)

// Process implements Processor by invoking the function.
func (f Func) Process(ctx context.Context, event *eventstream.StreamEvent, cfg Config) (*Result, error) {
	return f(ctx, event, cfg)
}
