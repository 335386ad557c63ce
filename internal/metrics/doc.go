// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

/*
Package metrics provides Prometheus metrics collection and export for observability.

This package implements application instrumentation using the Prometheus client
library, exposing metrics for monitoring ledger behavior, batch throughput,
DLQ health, and API performance.

# Overview

The package provides metrics for:
  - Idempotency ledger operations and Begin decision outcomes
  - Checksum dedupe hit rates
  - Batch accumulation, flush triggers, and backlog depth
  - NATS publish/consume throughput
  - Dead Letter Queue lifecycle and requeue outcomes
  - HTTP request latency and throughput
  - Circuit breaker state transitions

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

Ledger Metrics:
  - ledger_operation_duration_seconds: Ledger operation latency (histogram)
    Labels: operation (begin, complete, fail, get), backend (badger, natskv)
  - ledger_operation_errors_total: Failed ledger operations (counter)
    Labels: operation, backend
  - ledger_begin_decisions_total: Begin outcomes (counter)
    Labels: decision (process, skip_completed, skip_processing)
  - ledger_txn_conflicts_total: Transaction conflicts retried (counter)
    Labels: backend
  - ledger_lease_expiries_total: Stale leases reclaimed (counter)
  - ledger_attempt_count: Attempts until terminal state (histogram)
    Buckets: 1, 2, 3, 4, 5, 7, 10

Dedupe Metrics:
  - dedupe_checksum_hits_total: Pipeline short-circuits via checksum (counter)
  - dedupe_checksum_misses_total: Checksum lookups with no match (counter)
  - dedupe_lookup_duration_seconds: Index lookup latency (histogram)

Batcher Metrics:
  - batcher_events_accepted_total: Events admitted to the backlog (counter)
  - batcher_events_rejected_total: Events rejected by backpressure (counter)
  - batcher_flushes_total: Flushes by trigger (counter)
    Labels: trigger (size, latency, interval, shutdown, manual)
  - batcher_flush_duration_seconds: Flush latency (histogram)
  - batcher_batch_size: Events per flushed batch (histogram)
  - batcher_backlog_depth: Currently buffered events (gauge)

NATS Metrics:
  - nats_messages_published_total: Messages published (counter)
  - nats_messages_consumed_total: Messages consumed (counter)
  - nats_messages_processed_total: Messages fully processed (counter)
  - nats_messages_parse_failed_total: Unparseable messages (counter)
  - nats_processing_duration_seconds: Per-message processing time (histogram)
  - nats_consumer_lag: Pending messages in consumer (gauge)

Coordinator Metrics:
  - coordinator_events_total: Event outcomes (counter)
    Labels: outcome (completed, skipped, deduplicated, failed, dead_lettered)
  - coordinator_pipeline_duration_seconds: Pipeline run time (histogram)
    Buckets: 0.1 through 300 seconds

DLQ Metrics:
  - dlq_entries_total: Current DLQ size (gauge)
  - dlq_entries_by_category: DLQ size by error category (gauge)
    Labels: category (validation, permanent, recoverable, max_attempts, unknown)
  - dlq_messages_added_total / removed_total / expired_total (counters)
  - dlq_requeue_attempts_total / successes_total / failures_total (counters)
  - dlq_oldest_entry_age_seconds: Age of oldest entry (gauge)

API Metrics:
  - api_requests_total: Total HTTP requests (counter)
    Labels: method, endpoint, status_code
  - api_request_duration_seconds: Request latency (histogram)
    Labels: method, endpoint
  - api_active_requests: In-flight requests (gauge)
  - api_rate_limit_hits_total: Rate limit rejections (counter)
    Labels: endpoint

Circuit Breaker Metrics:
  - circuit_breaker_state: Current state (gauge)
    Labels: name
    Values: 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total: Requests by result (counter)
    Labels: name, result (success, failure, rejected)
  - circuit_breaker_state_transitions_total: Transitions (counter)
    Labels: name, from_state, to_state

# Usage

Recording metrics from application code:

	start := time.Now()
	err := ledger.Begin(ctx, key, now)
	metrics.RecordLedgerOperation("begin", "badger", time.Since(start), err)

Updating gauges from periodic collectors:

	metrics.UpdateDLQGauges(stats.TotalEntries, oldestAge, stats.ByCategory)

# Integration with Prometheus

Scrape configuration example:

	scrape_configs:
	  - job_name: 'semel'
	    static_configs:
	      - targets: ['localhost:8080']
	    metrics_path: '/metrics'
	    scrape_interval: 15s

All metrics are registered with the default Prometheus registry via promauto
at package initialization. No explicit registration call is required.
*/
package metrics
