// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

// Package eventstream provides the event model, the stream batcher, and
// the Watermill/NATS JetStream plumbing that carries media events from
// producers to the ingestion coordinator.
//
// # Architecture
//
// Producers never talk to the bus directly. They hand events to the
// batcher, which smooths bursty arrival into bounded batches; each
// batch travels as a single JetStream message and is unpacked by the
// consumer one event at a time:
//
//	┌──────────────┐   ┌──────────────┐   ┌──────────────┐
//	│ Storage      │   │ Direct API   │   │ Push         │
//	│ notification │   │ push         │   │ envelope     │
//	└──────┬───────┘   └──────┬───────┘   └──────┬───────┘
//	       │                  │                  │
//	       └─────────────┬────┴──────────────────┘
//	                     ▼
//	            ┌─────────────────┐
//	            │     Batcher     │  size / latency triggers,
//	            │  (bounded FIFO) │  max-backlog admission control
//	            └────────┬────────┘
//	                     ▼
//	            ┌─────────────────┐
//	            │  NATS JetStream │  one BatchEnvelope = one message,
//	            │  EVENTS.batch   │  duplicate window on Nats-Msg-Id
//	            └────────┬────────┘
//	                     ▼
//	            ┌─────────────────┐
//	            │ EnvelopeHandler │  per-event dispatch into the
//	            │ (durable queue) │  coordinator
//	            └─────────────────┘
//
// # Batching Triggers
//
// Two triggers bound the size/latency trade-off familiar from
// log-shipping batchers:
//
//   - Size: Add drains and returns the queue the moment it reaches
//     MaxBatchSize, so large bursts flush immediately.
//   - Latency: the FlushService calls Flush on a ticker; Flush drains
//     once the oldest queued event has waited MaxLatency, so a trickle
//     of events still ships promptly.
//
// Admission control rejects Add calls past MaxBacklog with a
// BackpressureError, which producers must treat as retriable. On
// shutdown the FlushService drains the queue unconditionally.
//
// # Delivery Semantics
//
// The bus guarantees at-least-once delivery, not exactly-once: publish
// retries can duplicate messages (suppressed best-effort by the stream
// duplicate window keyed on Nats-Msg-Id) and a nacked envelope is
// redelivered in full. Exactly-once EFFECT comes from the idempotency
// ledger consulted per event downstream; this package only has to avoid
// losing events, never to avoid repeating them.
//
// # Usage
//
//	batcher, _ := eventstream.NewBatcher(eventstream.DefaultBatcherConfig())
//	pub, _ := eventstream.NewPublisher(
//	    eventstream.DefaultPublisherConfig(url), "EVENTS.batch", nil)
//	ingestor, _ := eventstream.NewIngestor(batcher, pub)
//
//	result, err := ingestor.Enqueue(ctx, events)
//	if eventstream.IsBackpressure(err) {
//	    // back off and resubmit
//	}
//
// The embedded NATS server (NewEmbeddedServer) gives single-binary
// deployments and tests a self-contained JetStream without external
// infrastructure; StreamManager.EnsureStream provisions the EVENTS
// stream idempotently at startup.
package eventstream
