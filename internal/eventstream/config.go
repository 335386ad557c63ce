// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package eventstream

import (
	"time"
)

// BatcherConfig holds stream batcher settings.
type BatcherConfig struct {
	// MaxBatchSize is the queue length at which a batch flushes
	// immediately, bounding batch payload size under bursty arrival.
	MaxBatchSize int

	// MaxLatency is the longest an event may sit in the queue before
	// the next flush opportunity must take it, bounding delivery delay
	// under low throughput.
	MaxLatency time.Duration

	// MaxBacklog is the admission ceiling. Add rejects with a
	// BackpressureError once accepting would exceed it.
	MaxBacklog int

	// FlushInterval is how often the periodic flush task checks the
	// latency trigger. It should be well below MaxLatency.
	FlushInterval time.Duration
}

// DefaultBatcherConfig returns production defaults for the batcher.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		MaxBatchSize:  100,
		MaxLatency:    2 * time.Second,
		MaxBacklog:    1000,
		FlushInterval: 500 * time.Millisecond,
	}
}

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// DefaultServerConfig returns production defaults for the embedded NATS server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "127.0.0.1",
		Port:              4222,
		StoreDir:          "/data/nats/jetstream",
		JetStreamMaxMem:   1 << 30,  // 1GB
		JetStreamMaxStore: 10 << 30, // 10GB
	}
}

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ReconnectBuffer  int
	EnableTrackMsgID bool // nolint:revive // ID is correct per Go conventions
}

// DefaultPublisherConfig returns production defaults for the publisher.
func DefaultPublisherConfig(url string) PublisherConfig {
	return PublisherConfig{
		URL:              url,
		MaxReconnects:    -1, // Unlimited
		ReconnectWait:    2 * time.Second,
		ReconnectBuffer:  8 * 1024 * 1024, // 8MB
		EnableTrackMsgID: true,
	}
}

// SubscriberConfig holds subscriber configuration.
type SubscriberConfig struct {
	URL            string
	DurableName    string
	QueueGroup     string
	AckWaitTimeout time.Duration
	MaxDeliver     int
	MaxAckPending  int
	CloseTimeout   time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration

	// SubscribersCount is the number of concurrent message processors.
	//
	// Exactly-once effect does not depend on this value: the ledger's
	// atomic Begin serializes racing workers per key. Higher values
	// improve throughput when batches for unrelated keys arrive
	// together; 1 gives strictly ordered consumption.
	SubscribersCount int

	// StreamName is the JetStream stream to bind to. When set,
	// AutoProvision is disabled and the subscriber attaches to the
	// stream provisioned at startup.
	StreamName string
}

// DefaultSubscriberConfig returns production defaults for the subscriber.
func DefaultSubscriberConfig(url string) SubscriberConfig {
	return SubscriberConfig{
		URL:              url,
		DurableName:      "semel-coordinator",
		QueueGroup:       "coordinators",
		AckWaitTimeout:   30 * time.Second,
		MaxDeliver:       5,    // Max redelivery attempts
		MaxAckPending:    1000, // Flow control
		CloseTimeout:     30 * time.Second,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		SubscribersCount: 1,
	}
}

// StreamConfig defines event stream settings.
type StreamConfig struct {
	Name            string
	BatchSubject    string
	DlqSubject      string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// DefaultStreamConfig returns production stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:            "EVENTS",
		BatchSubject:    "EVENTS.batch",
		DlqSubject:      "EVENTS.dlq",
		MaxAge:          7 * 24 * time.Hour,      // 7 days
		MaxBytes:        10 * 1024 * 1024 * 1024, // 10GB
		MaxMsgs:         -1,                      // Unlimited
		DuplicateWindow: 2 * time.Minute,
		Replicas:        1, // Increase for clustering
	}
}

// Subjects returns the stream's subject list.
func (c StreamConfig) Subjects() []string {
	return []string{c.BatchSubject, c.DlqSubject}
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32        // Allowed in half-open state
	Interval         time.Duration // Reset interval for counts
	Timeout          time.Duration // Time to stay open
	FailureThreshold uint32        // Failures before opening
}

// DefaultCircuitBreakerConfig returns production defaults.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}
