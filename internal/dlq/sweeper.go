// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package dlq

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/semel/internal/logging"
)

// sweepTimeout bounds one retention pass against the store.
const sweepTimeout = 30 * time.Second

// Sweeper enforces the archive retention policy. Each pass deletes
// entries whose last dead-lettering is older than the retention window
// and refreshes the archive gauges.
//
// Runs under the supervision tree; Serve blocks until the context is
// canceled.
type Sweeper struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
}

// NewSweeper creates the retention sweeper.
func NewSweeper(store *Store, retention, interval time.Duration) (*Sweeper, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %v", retention)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %v", interval)
	}
	return &Sweeper{store: store, retention: retention, interval: interval}, nil
}

// Serve runs retention passes until ctx is canceled. The first pass runs
// immediately so a restart does not defer cleanup by a full interval.
func (s *Sweeper) Serve(ctx context.Context) error {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// String names the service in supervisor logs.
func (s *Sweeper) String() string {
	return "dlq-sweeper"
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	cutoff := time.Now().Add(-s.retention)
	if _, err := s.store.DeleteExpired(sweepCtx, cutoff); err != nil {
		logging.Error().Err(err).Msg("DLQ retention sweep failed")
		return
	}

	if _, err := s.store.Stats(sweepCtx); err != nil {
		logging.Warn().Err(err).Msg("DLQ gauge refresh failed")
	}
}
