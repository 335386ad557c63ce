// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package eventstream

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func testEvent(n int) StreamEvent {
	e := NewStreamEvent("media-prod", fmt.Sprintf("cam1/clip-%04d.mp4", n), "1")
	e.ContentType = "video/mp4"
	e.Size = int64(1024 * (n + 1))
	return *e
}

func TestNewBatcher_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  BatcherConfig
	}{
		{"zero batch size", BatcherConfig{MaxBatchSize: 0, MaxLatency: time.Second, MaxBacklog: 10}},
		{"zero latency", BatcherConfig{MaxBatchSize: 2, MaxLatency: 0, MaxBacklog: 10}},
		{"zero backlog", BatcherConfig{MaxBatchSize: 2, MaxLatency: time.Second, MaxBacklog: 0}},
		{"negative batch size", BatcherConfig{MaxBatchSize: -1, MaxLatency: time.Second, MaxBacklog: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBatcher(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewBatcher error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

// With a size trigger of 2, the second Add must return exactly the two
// queued events, and the queue can never hold a third without an
// intervening flush.
func TestBatcher_SizeTrigger(t *testing.T) {
	b, err := NewBatcher(BatcherConfig{MaxBatchSize: 2, MaxLatency: time.Hour, MaxBacklog: 100, FlushInterval: time.Second})
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	batch, err := b.Add(testEvent(0))
	if err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if batch != nil {
		t.Fatalf("first Add returned a batch of %d, want nil", len(batch))
	}
	if b.Len() != 1 {
		t.Fatalf("Len() = %d after first Add, want 1", b.Len())
	}

	batch, err = b.Add(testEvent(1))
	if err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("second Add returned %d events, want 2", len(batch))
	}
	if batch[0].Name != testEvent(0).Name || batch[1].Name != testEvent(1).Name {
		t.Error("batch events out of enqueue order")
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d after size-triggered drain, want 0", b.Len())
	}
}

// A single queued event is released by a flush issued at or after
// MaxLatency, and by nothing issued earlier.
func TestBatcher_LatencyTrigger(t *testing.T) {
	b, err := NewBatcher(BatcherConfig{MaxBatchSize: 100, MaxLatency: time.Second, MaxBacklog: 1000, FlushInterval: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	if _, err := b.Add(testEvent(0)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if batch := b.Flush(); batch != nil {
		t.Fatalf("Flush before MaxLatency returned %d events, want nil", len(batch))
	}

	time.Sleep(1050 * time.Millisecond)

	batch := b.Flush()
	if len(batch) != 1 {
		t.Fatalf("Flush after MaxLatency returned %d events, want 1", len(batch))
	}
	if batch[0].Name != testEvent(0).Name {
		t.Errorf("flushed event = %q, want %q", batch[0].Name, testEvent(0).Name)
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d after latency flush, want 0", b.Len())
	}
}

// With a backlog ceiling of 1, a second Add before any flush must be
// rejected with a backpressure error, and the rejected event must not
// be buffered.
func TestBatcher_Backpressure(t *testing.T) {
	b, err := NewBatcher(BatcherConfig{MaxBatchSize: 100, MaxLatency: time.Hour, MaxBacklog: 1, FlushInterval: time.Second})
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	if _, err := b.Add(testEvent(0)); err != nil {
		t.Fatalf("first Add: %v", err)
	}

	_, err = b.Add(testEvent(1))
	if err == nil {
		t.Fatal("second Add succeeded, want backpressure error")
	}
	if !IsBackpressure(err) {
		t.Fatalf("second Add error = %v, want BackpressureError", err)
	}

	var bp *BackpressureError
	if !errors.As(err, &bp) {
		t.Fatal("error does not unwrap to *BackpressureError")
	}
	if bp.Backlog != 1 || bp.BacklogMax != 1 {
		t.Errorf("BackpressureError = {Backlog: %d, BacklogMax: %d}, want {1, 1}", bp.Backlog, bp.BacklogMax)
	}

	if b.Len() != 1 {
		t.Errorf("Len() = %d after rejection, want 1 (rejected event must not be buffered)", b.Len())
	}

	// After draining, admission works again.
	if drained := b.Drain(); len(drained) != 1 {
		t.Fatalf("Drain returned %d events, want 1", len(drained))
	}
	if _, err := b.Add(testEvent(2)); err != nil {
		t.Errorf("Add after drain: %v", err)
	}
}

func TestBatcher_CanAccept(t *testing.T) {
	b, err := NewBatcher(BatcherConfig{MaxBatchSize: 100, MaxLatency: time.Hour, MaxBacklog: 3, FlushInterval: time.Second})
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	if !b.CanAccept(3) {
		t.Error("CanAccept(3) = false on empty queue with backlog 3")
	}
	if b.CanAccept(4) {
		t.Error("CanAccept(4) = true on empty queue with backlog 3")
	}

	if _, err := b.Add(testEvent(0)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if !b.CanAccept(2) {
		t.Error("CanAccept(2) = false with 1 queued and backlog 3")
	}
	if b.CanAccept(3) {
		t.Error("CanAccept(3) = true with 1 queued and backlog 3")
	}

	b.Close()
	if b.CanAccept(1) {
		t.Error("CanAccept(1) = true after Close")
	}
}

func TestBatcher_DrainIgnoresTriggers(t *testing.T) {
	b, err := NewBatcher(BatcherConfig{MaxBatchSize: 100, MaxLatency: time.Hour, MaxBacklog: 1000, FlushInterval: time.Second})
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := b.Add(testEvent(i)); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}

	// Neither trigger is eligible, yet Drain must return everything.
	if batch := b.Flush(); batch != nil {
		t.Fatalf("Flush returned %d events, want nil (no trigger eligible)", len(batch))
	}
	batch := b.Drain()
	if len(batch) != 5 {
		t.Fatalf("Drain returned %d events, want 5", len(batch))
	}
	for i := range batch {
		if batch[i].Name != testEvent(i).Name {
			t.Errorf("drained event %d = %q, want %q", i, batch[i].Name, testEvent(i).Name)
		}
	}

	if batch := b.Drain(); batch != nil {
		t.Errorf("second Drain returned %d events, want nil", len(batch))
	}
}

func TestBatcher_ClosedRejectsAdd(t *testing.T) {
	b, err := NewBatcher(DefaultBatcherConfig())
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	if _, err := b.Add(testEvent(0)); err != nil {
		t.Fatalf("Add before Close: %v", err)
	}

	b.Close()
	b.Close() // idempotent

	if _, err := b.Add(testEvent(1)); !errors.Is(err, ErrBatcherClosed) {
		t.Errorf("Add after Close error = %v, want ErrBatcherClosed", err)
	}

	// Shutdown can still empty the queue after Close.
	if batch := b.Drain(); len(batch) != 1 {
		t.Errorf("Drain after Close returned %d events, want 1", len(batch))
	}
}

func TestBatcher_Restore(t *testing.T) {
	b, err := NewBatcher(BatcherConfig{MaxBatchSize: 2, MaxLatency: time.Hour, MaxBacklog: 10, FlushInterval: time.Second})
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	if _, err := b.Add(testEvent(0)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	batch, err := b.Add(testEvent(1))
	if err != nil || len(batch) != 2 {
		t.Fatalf("size trigger: batch=%d err=%v, want 2 events", len(batch), err)
	}

	// Simulate a failed publish while a new event arrives behind it.
	if _, err := b.Add(testEvent(2)); err != nil {
		t.Fatalf("Add during restore window: %v", err)
	}
	b.restore(batch)

	drained := b.Drain()
	if len(drained) != 3 {
		t.Fatalf("Drain returned %d events, want 3", len(drained))
	}
	// Restored events come back ahead of later arrivals.
	if drained[0].Name != testEvent(0).Name || drained[1].Name != testEvent(1).Name || drained[2].Name != testEvent(2).Name {
		t.Errorf("restore order wrong: got %q, %q, %q", drained[0].Name, drained[1].Name, drained[2].Name)
	}
}

func TestBatcher_Stats(t *testing.T) {
	cfg := BatcherConfig{MaxBatchSize: 100, MaxLatency: 1500 * time.Millisecond, MaxBacklog: 2, FlushInterval: time.Second}
	b, err := NewBatcher(cfg)
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	if _, err := b.Add(testEvent(0)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := b.Add(testEvent(1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := b.Add(testEvent(2)); err == nil {
		t.Fatal("expected backpressure at ceiling")
	}

	if drained := b.Drain(); len(drained) != 2 {
		t.Fatalf("Drain returned %d events, want 2", len(drained))
	}
	if _, err := b.Add(testEvent(3)); err != nil {
		t.Fatalf("Add after drain: %v", err)
	}

	stats := b.Stats()
	if stats.Backlog != 1 {
		t.Errorf("Backlog = %d, want 1", stats.Backlog)
	}
	if stats.BatchMax != 100 {
		t.Errorf("BatchMax = %d, want 100", stats.BatchMax)
	}
	if stats.BatchLatencyMS != 1500 {
		t.Errorf("BatchLatencyMS = %d, want 1500", stats.BatchLatencyMS)
	}
	if stats.BacklogMax != 2 {
		t.Errorf("BacklogMax = %d, want 2", stats.BacklogMax)
	}
	if stats.EventsAccepted != 3 {
		t.Errorf("EventsAccepted = %d, want 3", stats.EventsAccepted)
	}
	if stats.EventsRejected != 1 {
		t.Errorf("EventsRejected = %d, want 1", stats.EventsRejected)
	}
	if stats.BatchesFlushed != 1 {
		t.Errorf("BatchesFlushed = %d, want 1", stats.BatchesFlushed)
	}
	if stats.EventsFlushed != 2 {
		t.Errorf("EventsFlushed = %d, want 2", stats.EventsFlushed)
	}
	if stats.LastFlushTime.IsZero() {
		t.Error("LastFlushTime is zero after flushes")
	}
	if stats.OldestAge <= 0 {
		t.Error("OldestAge must be positive with a queued event")
	}
}

func TestBatcher_ConcurrentAdds(t *testing.T) {
	const (
		goroutines = 10
		perWorker  = 100
	)

	b, err := NewBatcher(BatcherConfig{MaxBatchSize: 7, MaxLatency: time.Hour, MaxBacklog: goroutines * perWorker, FlushInterval: time.Second})
	if err != nil {
		t.Fatalf("NewBatcher: %v", err)
	}

	var (
		mu      sync.Mutex
		flushed int
		wg      sync.WaitGroup
	)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				batch, err := b.Add(testEvent(g*perWorker + i))
				if err != nil {
					t.Errorf("Add: %v", err)
					return
				}
				if len(batch) > 0 {
					mu.Lock()
					flushed += len(batch)
					mu.Unlock()
				}
			}
		}(g)
	}
	wg.Wait()

	remaining := len(b.Drain())
	total := flushed + remaining
	if total != goroutines*perWorker {
		t.Errorf("flushed %d + remaining %d = %d, want %d", flushed, remaining, total, goroutines*perWorker)
	}

	stats := b.Stats()
	if stats.EventsAccepted != goroutines*perWorker {
		t.Errorf("EventsAccepted = %d, want %d", stats.EventsAccepted, goroutines*perWorker)
	}
}
