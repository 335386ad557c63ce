// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package eventstream

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/semel/internal/logging"
)

// publishTimeout bounds a single batch publish, detached from the
// caller's context so a canceled request or supervisor shutdown cannot
// strand a drained batch mid-delivery.
const publishTimeout = 30 * time.Second

// FlushService is the periodic flush task behind the latency trigger.
// Producers below the size trigger would otherwise leave events queued
// indefinitely; this service checks eligibility every FlushInterval and
// publishes whatever the batcher releases. On shutdown it drains the
// queue unconditionally so buffered events are delivered, not dropped.
//
// Runs under the supervision tree; Serve blocks until the context is
// canceled.
type FlushService struct {
	batcher  *Batcher
	sink     BatchSink
	interval time.Duration
}

// NewFlushService creates the periodic flush task.
func NewFlushService(batcher *Batcher, sink BatchSink, interval time.Duration) (*FlushService, error) {
	if batcher == nil {
		return nil, fmt.Errorf("batcher required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: flush interval must be positive", ErrInvalidConfig)
	}

	return &FlushService{
		batcher:  batcher,
		sink:     sink,
		interval: interval,
	}, nil
}

// Serve runs the flush loop until ctx is canceled, then performs the
// shutdown drain.
func (s *FlushService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdownDrain()
			return ctx.Err()
		case <-ticker.C:
			events := s.batcher.Flush()
			if len(events) == 0 {
				continue
			}

			// Detached context: the parent only signals shutdown, it
			// must not impose a deadline on an in-flight publish.
			flushCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			if _, err := publishBatch(flushCtx, s.sink, s.batcher, events, "latency"); err != nil {
				logging.Error().Err(err).Int("events", len(events)).Msg("Periodic flush failed, batch restored")
			}
			cancel()
		}
	}
}

// String names the service in supervisor logs.
func (s *FlushService) String() string {
	return "eventstream-flush"
}

// shutdownDrain publishes everything still buffered. A failure here is
// logged rather than retried: the process is exiting and the restored
// queue will not get another chance.
func (s *FlushService) shutdownDrain() {
	events := s.batcher.Drain()
	if len(events) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if _, err := publishBatch(ctx, s.sink, s.batcher, events, "shutdown"); err != nil {
		logging.Error().Err(err).Int("events", len(events)).Msg("Shutdown drain failed, events remain unpublished")
		return
	}

	logging.Info().Int("events", len(events)).Msg("Shutdown drain published remaining events")
}
