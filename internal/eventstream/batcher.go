// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package eventstream

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/semel/internal/metrics"
)

// pendingEvent pairs a buffered event with its enqueue time so the
// latency trigger can be evaluated against the oldest entry.
type pendingEvent struct {
	event      StreamEvent
	enqueuedAt time.Time
}

// BatcherStats holds runtime statistics for monitoring.
type BatcherStats struct {
	Backlog        int           // Events currently queued
	BatchMax       int           // Configured size trigger
	BatchLatencyMS int64         // Configured latency trigger in milliseconds
	BacklogMax     int           // Configured admission ceiling
	EventsAccepted int64         // Total events accepted via Add
	EventsRejected int64         // Total events rejected for backpressure
	BatchesFlushed int64         // Number of drain operations
	EventsFlushed  int64         // Total events drained
	LastFlushTime  time.Time     // Time of last drain
	OldestAge      time.Duration // Age of the oldest queued event, zero when empty
}

// Batcher buffers events into bounded batches. Two triggers drain the
// queue: the size trigger fires inside Add the moment the queue reaches
// MaxBatchSize; the latency trigger fires when Flush observes that the
// oldest queued event has waited at least MaxLatency. A periodic task
// must call Flush independently of Add, otherwise a trickle of events
// below the size trigger would sit in the queue forever.
//
// Admission control: Add rejects with a BackpressureError once
// accepting would push the queue past MaxBacklog. The rejected event is
// never buffered, so the caller can retry it after backoff without risk
// of duplication.
//
// The queue is shared mutable state across concurrent Add callers and
// the flush task; all access goes through one mutex. The batcher holds
// no reference to the ledger and publishes nothing itself: drained
// batches are returned to the caller, which owns delivery.
type Batcher struct {
	config BatcherConfig

	mu    sync.Mutex
	queue []pendingEvent

	closed atomic.Bool

	// Stats (atomic for lock-free reads)
	eventsAccepted atomic.Int64
	eventsRejected atomic.Int64
	batchesFlushed atomic.Int64
	eventsFlushed  atomic.Int64
	lastFlushTime  atomic.Value // stores time.Time
}

// NewBatcher creates a batcher with the given configuration.
// Returns an error if any limit or interval is non-positive.
func NewBatcher(cfg BatcherConfig) (*Batcher, error) {
	if cfg.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("%w: max batch size must be positive", ErrInvalidConfig)
	}
	if cfg.MaxLatency <= 0 {
		return nil, fmt.Errorf("%w: max latency must be positive", ErrInvalidConfig)
	}
	if cfg.MaxBacklog <= 0 {
		return nil, fmt.Errorf("%w: max backlog must be positive", ErrInvalidConfig)
	}

	b := &Batcher{
		config: cfg,
		queue:  make([]pendingEvent, 0, cfg.MaxBatchSize),
	}
	b.lastFlushTime.Store(time.Time{})

	return b, nil
}

// Add appends an event to the queue. When the append fills the queue to
// MaxBatchSize, the queue is drained and returned; otherwise the event
// is buffered and Add returns nil.
//
// Returns a BackpressureError without buffering when the queue is at
// MaxBacklog, and ErrBatcherClosed after Close.
func (b *Batcher) Add(event StreamEvent) ([]StreamEvent, error) {
	if b.closed.Load() {
		return nil, ErrBatcherClosed
	}

	b.mu.Lock()
	if len(b.queue)+1 > b.config.MaxBacklog {
		backlog := len(b.queue)
		b.mu.Unlock()

		b.eventsRejected.Add(1)
		metrics.RecordBatchRejected(1)
		return nil, &BackpressureError{Backlog: backlog, BacklogMax: b.config.MaxBacklog}
	}

	b.queue = append(b.queue, pendingEvent{event: event, enqueuedAt: time.Now()})
	b.eventsAccepted.Add(1)

	var batch []StreamEvent
	if len(b.queue) >= b.config.MaxBatchSize {
		batch = b.drainLocked()
	}
	depth := len(b.queue)
	b.mu.Unlock()

	metrics.RecordBatchAccepted(1)
	metrics.UpdateBacklogDepth(depth)

	return batch, nil
}

// CanAccept reports whether n more events would be admitted right now.
// The answer is advisory: a concurrent Add may consume the headroom
// before the caller acts on it, in which case Add still rejects safely.
func (b *Batcher) CanAccept(n int) bool {
	if b.closed.Load() {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)+n <= b.config.MaxBacklog
}

// Flush drains and returns the queue if either trigger condition holds:
// the queue has reached MaxBatchSize, or the oldest queued event has
// waited at least MaxLatency. Returns nil when the queue is empty or
// neither trigger has fired yet.
func (b *Batcher) Flush() []StreamEvent {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return nil
	}

	sizeReady := len(b.queue) >= b.config.MaxBatchSize
	latencyReady := time.Since(b.queue[0].enqueuedAt) >= b.config.MaxLatency
	if !sizeReady && !latencyReady {
		b.mu.Unlock()
		return nil
	}

	batch := b.drainLocked()
	b.mu.Unlock()

	metrics.UpdateBacklogDepth(0)
	return batch
}

// Drain unconditionally empties the queue and returns its contents in
// order, ignoring both triggers. Used at shutdown so buffered events
// are delivered rather than dropped.
func (b *Batcher) Drain() []StreamEvent {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return nil
	}

	batch := b.drainLocked()
	b.mu.Unlock()

	metrics.UpdateBacklogDepth(0)
	return batch
}

// Len returns the current queue depth.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close stops admission. Safe to call multiple times. Flush and Drain
// keep working after Close so shutdown can empty the queue.
func (b *Batcher) Close() {
	b.closed.Store(true)
}

// Stats returns current runtime statistics.
func (b *Batcher) Stats() BatcherStats {
	b.mu.Lock()
	backlog := len(b.queue)
	var oldestAge time.Duration
	if backlog > 0 {
		oldestAge = time.Since(b.queue[0].enqueuedAt)
	}
	b.mu.Unlock()

	var lastFlushTime time.Time
	if t, ok := b.lastFlushTime.Load().(time.Time); ok {
		lastFlushTime = t
	}

	return BatcherStats{
		Backlog:        backlog,
		BatchMax:       b.config.MaxBatchSize,
		BatchLatencyMS: b.config.MaxLatency.Milliseconds(),
		BacklogMax:     b.config.MaxBacklog,
		EventsAccepted: b.eventsAccepted.Load(),
		EventsRejected: b.eventsRejected.Load(),
		BatchesFlushed: b.batchesFlushed.Load(),
		EventsFlushed:  b.eventsFlushed.Load(),
		LastFlushTime:  lastFlushTime,
		OldestAge:      oldestAge,
	}
}

// restore prepends events back onto the queue after a failed publish,
// re-stamping their enqueue times. The prepend may push the queue past
// MaxBacklog until the next successful flush; admission control applies
// to new work, not to work already accepted once.
func (b *Batcher) restore(events []StreamEvent) {
	if len(events) == 0 {
		return
	}

	b.mu.Lock()
	restored := make([]pendingEvent, 0, len(events)+len(b.queue))
	now := time.Now()
	for _, ev := range events {
		restored = append(restored, pendingEvent{event: ev, enqueuedAt: now})
	}
	b.queue = append(restored, b.queue...)
	depth := len(b.queue)
	b.mu.Unlock()

	metrics.UpdateBacklogDepth(depth)
}

// drainLocked empties the queue and returns its events in enqueue
// order. Caller must hold b.mu.
func (b *Batcher) drainLocked() []StreamEvent {
	events := make([]StreamEvent, len(b.queue))
	for i := range b.queue {
		events[i] = b.queue[i].event
	}
	b.queue = make([]pendingEvent, 0, b.config.MaxBatchSize)

	b.batchesFlushed.Add(1)
	b.eventsFlushed.Add(int64(len(events)))
	b.lastFlushTime.Store(time.Now())

	return events
}
