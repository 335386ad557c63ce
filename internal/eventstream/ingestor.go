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
	"github.com/tomtom215/semel/internal/metrics"
)

// BatchSink publishes a filled batch as a single outbound message and
// returns its message ID. Implementations include the JetStream
// publisher and in-memory sinks for testing.
type BatchSink interface {
	PublishEnvelope(ctx context.Context, envelope *BatchEnvelope) (string, error)
}

// EnqueueResult reports what happened to a set of submitted events.
type EnqueueResult struct {
	Accepted       int      `json:"accepted"`        // Events admitted to the queue in this call
	Queued         int      `json:"queued"`          // Events still buffered after the call
	Backlog        int      `json:"backlog"`         // Alias of Queued for producers watching depth
	BatchPublished bool     `json:"batch_published"` // Whether any batch left the process during the call
	MessageIDs     []string `json:"message_ids,omitempty"`
}

// StatusResult describes the batcher's current shape for producers
// deciding how hard to push.
type StatusResult struct {
	Backlog        int   `json:"backlog"`
	BatchMax       int   `json:"batch_max"`
	BatchLatencyMS int64 `json:"batch_latency_ms"`
	BacklogMax     int   `json:"backlog_max"`
}

// Ingestor is the producer-facing surface over the batcher: it admits
// events, and when an admission fills a batch it publishes that batch
// inline so the producer's call carries its own flush cost.
type Ingestor struct {
	batcher *Batcher
	sink    BatchSink
}

// NewIngestor creates an ingestor over the given batcher and sink.
func NewIngestor(batcher *Batcher, sink BatchSink) (*Ingestor, error) {
	if batcher == nil {
		return nil, fmt.Errorf("batcher required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink required")
	}
	return &Ingestor{batcher: batcher, sink: sink}, nil
}

// Enqueue admits events into the batcher in order. Size-triggered
// batches are published before Enqueue returns, and their message IDs
// are reported in the result.
//
// On backpressure the result still describes the events admitted before
// the rejection, alongside a BackpressureError; the rejected events were
// not buffered and are safe to resubmit after backoff.
func (i *Ingestor) Enqueue(ctx context.Context, events []StreamEvent) (*EnqueueResult, error) {
	result := &EnqueueResult{}

	if !i.batcher.CanAccept(len(events)) {
		stats := i.batcher.Stats()
		result.Queued = stats.Backlog
		result.Backlog = stats.Backlog
		return result, &BackpressureError{Backlog: stats.Backlog, BacklogMax: stats.BacklogMax}
	}

	for idx := range events {
		ev := events[idx]
		if ev.ReceivedAt.IsZero() {
			ev.ReceivedAt = time.Now().UTC()
		}
		ev.EnsureModality()

		batch, err := i.batcher.Add(ev)
		if err != nil {
			// A racing producer consumed the headroom between the
			// CanAccept check and this Add.
			result.Queued = i.batcher.Len()
			result.Backlog = result.Queued
			return result, err
		}
		result.Accepted++

		if len(batch) > 0 {
			id, perr := publishBatch(ctx, i.sink, i.batcher, batch, "size")
			if perr != nil {
				result.Queued = i.batcher.Len()
				result.Backlog = result.Queued
				return result, perr
			}
			result.BatchPublished = true
			result.MessageIDs = append(result.MessageIDs, id)
		}
	}

	result.Queued = i.batcher.Len()
	result.Backlog = result.Queued
	return result, nil
}

// Status reports the batcher's configured limits and current depth.
func (i *Ingestor) Status() *StatusResult {
	stats := i.batcher.Stats()
	return &StatusResult{
		Backlog:        stats.Backlog,
		BatchMax:       stats.BatchMax,
		BatchLatencyMS: stats.BatchLatencyMS,
		BacklogMax:     stats.BacklogMax,
	}
}

// publishBatch sends one drained batch through the sink. On failure the
// batch is restored to the front of the queue so no admitted event is
// lost, and the error is returned for the caller to surface.
func publishBatch(ctx context.Context, sink BatchSink, batcher *Batcher, events []StreamEvent, trigger string) (string, error) {
	start := time.Now()

	id, err := sink.PublishEnvelope(ctx, NewBatchEnvelope(events...))
	if err != nil {
		batcher.restore(events)
		return "", fmt.Errorf("publish batch of %d: %w", len(events), err)
	}

	metrics.RecordBatchFlush(trigger, time.Since(start), len(events))
	logging.Debug().
		Str("message_id", id).
		Str("trigger", trigger).
		Int("events", len(events)).
		Msg("Batch published")

	return id, nil
}
