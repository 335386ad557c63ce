// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package coordinator

import (
	"fmt"

	"github.com/tomtom215/semel/internal/pipeline"
)

// Config holds coordinator settings.
type Config struct {
	// MaxAttempts is the attempt budget. A recoverable failure on the
	// attempt that reaches this count forces a DLQ transition with
	// error code MAX_ATTEMPTS.
	MaxAttempts int

	// Pipeline is passed through to every Processor.Process call and
	// bounds its runtime via Pipeline.Timeout.
	Pipeline pipeline.Config
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Pipeline:    pipeline.DefaultConfig(),
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline config: %w", err)
	}
	return nil
}
