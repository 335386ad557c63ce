// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package main

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/semel/internal/config"
	"github.com/tomtom215/semel/internal/eventstream"
	"github.com/tomtom215/semel/internal/pipeline"
)

func testEvent(name string) *eventstream.StreamEvent {
	return &eventstream.StreamEvent{
		Container:   "media-prod",
		Name:        name,
		Generation:  "1",
		ContentType: "video/mp4",
		Size:        4096,
		Modality:    eventstream.ModalityVideo,
		ReceivedAt:  time.Now().UTC(),
	}
}

// TestComponents_Shutdown tests the Shutdown method.
func TestComponents_Shutdown(t *testing.T) {
	t.Run("nil components", func(t *testing.T) {
		var c *Components
		// Should not panic
		c.Shutdown(context.Background())
	})

	t.Run("empty components", func(t *testing.T) {
		c := &Components{}
		// Should not panic
		c.Shutdown(context.Background())
	})

	t.Run("second shutdown is a no-op", func(t *testing.T) {
		c := &Components{}
		c.Shutdown(context.Background())
		c.Shutdown(context.Background())
		if !c.closed {
			t.Error("closed = false after Shutdown")
		}
	})
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Stream.Name = "EVENTS"
	cfg.Stream.BatchSubject = "EVENTS.batch"
	cfg.Stream.DLQSubject = "EVENTS.dlq"
	cfg.Stream.MaxAge = 48 * time.Hour
	cfg.Stream.DuplicateWindow = 90 * time.Second
	cfg.Stream.DurableName = "semel-coordinator"
	cfg.Stream.QueueGroup = "coordinators"
	cfg.Stream.MaxDeliver = 7
	cfg.Stream.AckWait = 45 * time.Second
	cfg.Ledger.Backend = "badger"
	cfg.Ledger.ProcessingTTL = 10 * time.Minute
	cfg.Ledger.MaxAttempts = 5
	cfg.Ledger.Badger.Path = "/data/ledger"
	cfg.Ledger.Badger.SyncWrites = true
	cfg.Ledger.Badger.TxnRetries = 3
	cfg.Ledger.NatsKV.Bucket = "SEMEL_LEDGER"
	cfg.Ledger.NatsKV.Replicas = 1
	cfg.Ledger.NatsKV.TxnRetries = 5
	cfg.Batcher.MaxBatchSize = 50
	cfg.Batcher.MaxLatency = time.Second
	cfg.Batcher.MaxBacklog = 500
	cfg.Batcher.FlushInterval = 250 * time.Millisecond
	return cfg
}

func TestStreamConfig(t *testing.T) {
	sc := streamConfig(testConfig())

	if sc.Name != "EVENTS" {
		t.Errorf("Name = %q, want %q", sc.Name, "EVENTS")
	}
	if sc.BatchSubject != "EVENTS.batch" {
		t.Errorf("BatchSubject = %q, want %q", sc.BatchSubject, "EVENTS.batch")
	}
	if sc.DlqSubject != "EVENTS.dlq" {
		t.Errorf("DlqSubject = %q, want %q", sc.DlqSubject, "EVENTS.dlq")
	}
	if sc.MaxAge != 48*time.Hour {
		t.Errorf("MaxAge = %v, want %v", sc.MaxAge, 48*time.Hour)
	}
	if sc.DuplicateWindow != 90*time.Second {
		t.Errorf("DuplicateWindow = %v, want %v", sc.DuplicateWindow, 90*time.Second)
	}
}

func TestSubscriberConfig(t *testing.T) {
	cfg := testConfig()

	t.Run("batch consumer", func(t *testing.T) {
		sc := subscriberConfig(cfg, "nats://127.0.0.1:4222")
		if sc.URL != "nats://127.0.0.1:4222" {
			t.Errorf("URL = %q, want %q", sc.URL, "nats://127.0.0.1:4222")
		}
		if sc.DurableName != "semel-coordinator" {
			t.Errorf("DurableName = %q, want %q", sc.DurableName, "semel-coordinator")
		}
		if sc.QueueGroup != "coordinators" {
			t.Errorf("QueueGroup = %q, want %q", sc.QueueGroup, "coordinators")
		}
		if sc.MaxDeliver != 7 {
			t.Errorf("MaxDeliver = %d, want 7", sc.MaxDeliver)
		}
		if sc.AckWaitTimeout != 45*time.Second {
			t.Errorf("AckWaitTimeout = %v, want %v", sc.AckWaitTimeout, 45*time.Second)
		}
		if sc.StreamName != "EVENTS" {
			t.Errorf("StreamName = %q, want %q", sc.StreamName, "EVENTS")
		}
	})

	t.Run("dlq archiver derives distinct names", func(t *testing.T) {
		sc := dlqSubscriberConfig(cfg, "nats://127.0.0.1:4222")
		if sc.DurableName != "semel-coordinator-dlq" {
			t.Errorf("DurableName = %q, want %q", sc.DurableName, "semel-coordinator-dlq")
		}
		if sc.QueueGroup != "coordinators-dlq" {
			t.Errorf("QueueGroup = %q, want %q", sc.QueueGroup, "coordinators-dlq")
		}
		if sc.StreamName != "EVENTS" {
			t.Errorf("StreamName = %q, want %q", sc.StreamName, "EVENTS")
		}
	})
}

func TestLedgerConfig(t *testing.T) {
	lc := ledgerConfig(testConfig())

	if lc.Backend != "badger" {
		t.Errorf("Backend = %q, want %q", lc.Backend, "badger")
	}
	if lc.ProcessingTTL != 10*time.Minute {
		t.Errorf("ProcessingTTL = %v, want %v", lc.ProcessingTTL, 10*time.Minute)
	}
	if lc.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", lc.MaxAttempts)
	}
	if !lc.Badger.SyncWrites {
		t.Error("Badger.SyncWrites = false, want true")
	}
	if lc.Badger.TxnRetries != 3 {
		t.Errorf("Badger.TxnRetries = %d, want 3", lc.Badger.TxnRetries)
	}
	if lc.NatsKV.Bucket != "SEMEL_LEDGER" {
		t.Errorf("NatsKV.Bucket = %q, want %q", lc.NatsKV.Bucket, "SEMEL_LEDGER")
	}
}

func TestBatcherConfig(t *testing.T) {
	bc := batcherConfig(testConfig())

	if bc.MaxBatchSize != 50 {
		t.Errorf("MaxBatchSize = %d, want 50", bc.MaxBatchSize)
	}
	if bc.MaxLatency != time.Second {
		t.Errorf("MaxLatency = %v, want %v", bc.MaxLatency, time.Second)
	}
	if bc.MaxBacklog != 500 {
		t.Errorf("MaxBacklog = %d, want 500", bc.MaxBacklog)
	}
	if bc.FlushInterval != 250*time.Millisecond {
		t.Errorf("FlushInterval = %v, want %v", bc.FlushInterval, 250*time.Millisecond)
	}
}

func TestAttachProcessor(t *testing.T) {
	proc := attachProcessor()
	event := testEvent("cam7/clip-0001.mp4")

	result, err := proc.Process(context.Background(), event, pipeline.DefaultConfig())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	wantManifest := "manifests/" + event.ScopeKey() + "/" + event.DedupeKey() + ".json"
	if result.ManifestRef != wantManifest {
		t.Errorf("ManifestRef = %q, want %q", result.ManifestRef, wantManifest)
	}
	if result.AssetID != event.DedupeKey()[:16] {
		t.Errorf("AssetID = %q, want key prefix %q", result.AssetID, event.DedupeKey()[:16])
	}
	if result.Counts["events"] != 1 {
		t.Errorf("Counts[events] = %d, want 1", result.Counts["events"])
	}
}

func TestAttachProcessor_CanceledContext(t *testing.T) {
	proc := attachProcessor()
	event := testEvent("cam7/clip-0002.mp4")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := proc.Process(ctx, event, pipeline.DefaultConfig())
	if !pipeline.IsRecoverable(err) {
		t.Errorf("Process() with canceled context = %v, want recoverable error", err)
	}
}
