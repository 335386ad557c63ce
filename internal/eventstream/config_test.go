// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package eventstream

import (
	"testing"
	"time"
)

func TestDefaultBatcherConfig(t *testing.T) {
	cfg := DefaultBatcherConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"MaxBatchSize", cfg.MaxBatchSize, 100},
		{"MaxLatency", cfg.MaxLatency, 2 * time.Second},
		{"MaxBacklog", cfg.MaxBacklog, 1000},
		{"FlushInterval", cfg.FlushInterval, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultBatcherConfig().%s = %v, expected %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected Host=127.0.0.1, got %s", cfg.Host)
	}
	if cfg.Port != 4222 {
		t.Errorf("Expected Port=4222, got %d", cfg.Port)
	}
	if cfg.StoreDir != "/data/nats/jetstream" {
		t.Errorf("Expected StoreDir=/data/nats/jetstream, got %s", cfg.StoreDir)
	}
	if cfg.JetStreamMaxMem != int64(1<<30) {
		t.Errorf("Expected JetStreamMaxMem=1GB, got %d", cfg.JetStreamMaxMem)
	}
	if cfg.JetStreamMaxStore != int64(10<<30) {
		t.Errorf("Expected JetStreamMaxStore=10GB, got %d", cfg.JetStreamMaxStore)
	}
}

func TestDefaultPublisherConfig(t *testing.T) {
	url := "nats://test:4222"
	cfg := DefaultPublisherConfig(url)

	if cfg.URL != url {
		t.Errorf("Expected URL=%s, got %s", url, cfg.URL)
	}
	if cfg.MaxReconnects != -1 {
		t.Errorf("Expected MaxReconnects=-1 (unlimited), got %d", cfg.MaxReconnects)
	}
	if cfg.ReconnectWait != 2*time.Second {
		t.Errorf("Expected ReconnectWait=2s, got %v", cfg.ReconnectWait)
	}
	if cfg.ReconnectBuffer != 8*1024*1024 {
		t.Errorf("Expected ReconnectBuffer=8MB, got %d", cfg.ReconnectBuffer)
	}
	if !cfg.EnableTrackMsgID {
		t.Error("Expected EnableTrackMsgID=true")
	}
}

func TestDefaultSubscriberConfig(t *testing.T) {
	url := "nats://test:4222"
	cfg := DefaultSubscriberConfig(url)

	if cfg.URL != url {
		t.Errorf("Expected URL=%s, got %s", url, cfg.URL)
	}
	if cfg.DurableName != "semel-coordinator" {
		t.Errorf("Expected DurableName=semel-coordinator, got %s", cfg.DurableName)
	}
	if cfg.QueueGroup != "coordinators" {
		t.Errorf("Expected QueueGroup=coordinators, got %s", cfg.QueueGroup)
	}
	if cfg.SubscribersCount != 1 {
		t.Errorf("Expected SubscribersCount=1, got %d", cfg.SubscribersCount)
	}
	if cfg.AckWaitTimeout != 30*time.Second {
		t.Errorf("Expected AckWaitTimeout=30s, got %v", cfg.AckWaitTimeout)
	}
	if cfg.MaxDeliver != 5 {
		t.Errorf("Expected MaxDeliver=5, got %d", cfg.MaxDeliver)
	}
	if cfg.MaxAckPending != 1000 {
		t.Errorf("Expected MaxAckPending=1000, got %d", cfg.MaxAckPending)
	}
	if cfg.CloseTimeout != 30*time.Second {
		t.Errorf("Expected CloseTimeout=30s, got %v", cfg.CloseTimeout)
	}
}

func TestDefaultStreamConfig(t *testing.T) {
	cfg := DefaultStreamConfig()

	if cfg.Name != "EVENTS" {
		t.Errorf("Expected Name=EVENTS, got %s", cfg.Name)
	}
	if cfg.BatchSubject != "EVENTS.batch" {
		t.Errorf("Expected BatchSubject=EVENTS.batch, got %s", cfg.BatchSubject)
	}
	if cfg.DlqSubject != "EVENTS.dlq" {
		t.Errorf("Expected DlqSubject=EVENTS.dlq, got %s", cfg.DlqSubject)
	}
	if cfg.MaxAge != 7*24*time.Hour {
		t.Errorf("Expected MaxAge=7 days, got %v", cfg.MaxAge)
	}
	if cfg.MaxBytes != 10*1024*1024*1024 {
		t.Errorf("Expected MaxBytes=10GB, got %d", cfg.MaxBytes)
	}
	if cfg.DuplicateWindow != 2*time.Minute {
		t.Errorf("Expected DuplicateWindow=2m, got %v", cfg.DuplicateWindow)
	}
	if cfg.Replicas != 1 {
		t.Errorf("Expected Replicas=1, got %d", cfg.Replicas)
	}

	subjects := cfg.Subjects()
	if len(subjects) != 2 {
		t.Fatalf("Expected 2 subjects, got %d", len(subjects))
	}
	if subjects[0] != cfg.BatchSubject || subjects[1] != cfg.DlqSubject {
		t.Errorf("Subjects() = %v, expected [%s %s]", subjects, cfg.BatchSubject, cfg.DlqSubject)
	}
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	name := "test-breaker"
	cfg := DefaultCircuitBreakerConfig(name)

	if cfg.Name != name {
		t.Errorf("Expected Name=%s, got %s", name, cfg.Name)
	}
	if cfg.MaxRequests != 3 {
		t.Errorf("Expected MaxRequests=3, got %d", cfg.MaxRequests)
	}
	if cfg.Interval != 30*time.Second {
		t.Errorf("Expected Interval=30s, got %v", cfg.Interval)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Expected Timeout=10s, got %v", cfg.Timeout)
	}
	if cfg.FailureThreshold != 5 {
		t.Errorf("Expected FailureThreshold=5, got %d", cfg.FailureThreshold)
	}
}
