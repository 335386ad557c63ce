// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides comprehensive instrumentation for:
// - Idempotency ledger operations (Badger / NATS KV)
// - Begin decision outcomes and attempt accounting
// - Batch accumulation and flush behavior
// - NATS event publishing and consumption
// - Dead Letter Queue lifecycle
// - API endpoint latency and throughput

var (
	// Ledger Metrics
	LedgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of idempotency ledger operations in seconds",
			Buckets: prometheus.DefBuckets, // 0.005s, 0.01s, 0.025s, 0.05s, 0.1s, 0.25s, 0.5s, 1s, 2.5s, 5s, 10s
		},
		[]string{"operation", "backend"},
	)

	LedgerOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operation_errors_total",
			Help: "Total number of idempotency ledger operation errors",
		},
		[]string{"operation", "backend"},
	)

	LedgerBeginDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_begin_decisions_total",
			Help: "Total number of Begin decisions by outcome",
		},
		[]string{"decision"}, // "process", "skip_completed", "skip_processing"
	)

	LedgerTxnConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_txn_conflicts_total",
			Help: "Total number of transaction conflicts requiring retry",
		},
		[]string{"backend"},
	)

	LedgerLeaseExpiries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_lease_expiries_total",
			Help: "Total number of stale processing leases reclaimed",
		},
	)

	LedgerAttemptCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_attempt_count",
			Help:    "Attempt number at which events reach a terminal state",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
		},
	)

	// Checksum Dedupe Metrics
	DedupeHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedupe_checksum_hits_total",
			Help: "Total number of checksum dedupe hits (pipeline short-circuited)",
		},
	)

	DedupeMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dedupe_checksum_misses_total",
			Help: "Total number of checksum dedupe misses",
		},
	)

	DedupeLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dedupe_lookup_duration_seconds",
			Help:    "Duration of checksum dedupe index lookups in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Batcher Metrics
	BatcherEventsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batcher_events_accepted_total",
			Help: "Total number of events accepted into the batcher",
		},
	)

	BatcherEventsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batcher_events_rejected_total",
			Help: "Total number of events rejected due to backlog backpressure",
		},
	)

	BatcherFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batcher_flushes_total",
			Help: "Total number of batch flushes by trigger",
		},
		[]string{"trigger"}, // "size", "latency", "interval", "shutdown", "manual"
	)

	BatcherFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batcher_flush_duration_seconds",
			Help:    "Duration of batch flush operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatcherBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batcher_batch_size",
			Help:    "Number of events in each flushed batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	BatcherBacklogDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batcher_backlog_depth",
			Help: "Current number of events buffered in the batcher",
		},
	)

	// NATS Event Processing Metrics
	NATSMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of messages published to NATS",
		},
	)

	NATSMessagesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_consumed_total",
			Help: "Total number of messages consumed from NATS",
		},
	)

	NATSMessagesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_processed_total",
			Help: "Total number of messages successfully processed",
		},
	)

	NATSMessagesParseFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_parse_failed_total",
			Help: "Total number of messages that failed to parse",
		},
	)

	NATSProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nats_processing_duration_seconds",
			Help:    "Duration of NATS message processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	NATSConsumerLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nats_consumer_lag",
			Help: "Number of pending messages in NATS consumer",
		},
	)

	// Coordinator Metrics
	CoordinatorEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coordinator_events_total",
			Help: "Total number of events handled by the coordinator by outcome",
		},
		[]string{"outcome"}, // "completed", "skipped", "deduplicated", "failed", "dead_lettered"
	)

	CoordinatorPipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coordinator_pipeline_duration_seconds",
			Help:    "Duration of pipeline processing per event in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}, // Optimized for API latency
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Dead Letter Queue Metrics
	DLQEntriesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlq_entries_total",
			Help: "Current number of entries in the Dead Letter Queue",
		},
	)

	DLQEntriesByCategory = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dlq_entries_by_category",
			Help: "Current number of DLQ entries by error category",
		},
		[]string{"category"}, // validation, permanent, recoverable, max_attempts, unknown
	)

	DLQMessagesAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_messages_added_total",
			Help: "Total number of messages added to the DLQ",
		},
	)

	DLQMessagesRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_messages_removed_total",
			Help: "Total number of messages removed from the DLQ (requeued or deleted)",
		},
	)

	DLQMessagesExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_messages_expired_total",
			Help: "Total number of messages expired from the DLQ by retention cleanup",
		},
	)

	DLQRequeueAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_requeue_attempts_total",
			Help: "Total number of requeue attempts for DLQ messages",
		},
	)

	DLQRequeueSuccesses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_requeue_successes_total",
			Help: "Total number of successful DLQ message requeues",
		},
	)

	DLQRequeueFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlq_requeue_failures_total",
			Help: "Total number of failed DLQ message requeues",
		},
	)

	DLQOldestEntryAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dlq_oldest_entry_age_seconds",
			Help: "Age of the oldest entry in the DLQ in seconds",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordLedgerOperation records a ledger operation metric
func RecordLedgerOperation(operation, backend string, duration time.Duration, err error) {
	LedgerOperationDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
	if err != nil {
		LedgerOperationErrors.WithLabelValues(operation, backend).Inc()
	}
}

// RecordBeginDecision records the outcome of a Begin call
func RecordBeginDecision(decision string) {
	LedgerBeginDecisions.WithLabelValues(decision).Inc()
}

// RecordTxnConflict records a transaction conflict that triggered a retry
func RecordTxnConflict(backend string) {
	LedgerTxnConflicts.WithLabelValues(backend).Inc()
}

// RecordLeaseExpiry records a stale processing lease being reclaimed
func RecordLeaseExpiry() {
	LedgerLeaseExpiries.Inc()
}

// RecordTerminalAttempts records the attempt number at which an event
// reached a terminal state (COMPLETED or DLQ)
func RecordTerminalAttempts(attempts int) {
	LedgerAttemptCount.Observe(float64(attempts))
}

// RecordDedupeLookup records a checksum dedupe index lookup
func RecordDedupeLookup(hit bool, duration time.Duration) {
	DedupeLookupDuration.Observe(duration.Seconds())
	if hit {
		DedupeHits.Inc()
	} else {
		DedupeMisses.Inc()
	}
}

// RecordBatchAccepted records events accepted into the batcher
func RecordBatchAccepted(count int) {
	BatcherEventsAccepted.Add(float64(count))
}

// RecordBatchRejected records events rejected due to backpressure
func RecordBatchRejected(count int) {
	BatcherEventsRejected.Add(float64(count))
}

// RecordBatchFlush records a batch flush operation and its trigger
func RecordBatchFlush(trigger string, duration time.Duration, batchSize int) {
	BatcherFlushes.WithLabelValues(trigger).Inc()
	BatcherFlushDuration.Observe(duration.Seconds())
	BatcherBatchSize.Observe(float64(batchSize))
}

// UpdateBacklogDepth updates the batcher backlog depth gauge
func UpdateBacklogDepth(depth int) {
	BatcherBacklogDepth.Set(float64(depth))
}

// RecordNATSPublish records a message being published to NATS
func RecordNATSPublish() {
	NATSMessagesPublished.Inc()
}

// RecordNATSConsume records a message being consumed from NATS
func RecordNATSConsume() {
	NATSMessagesConsumed.Inc()
}

// RecordNATSProcessed records a message being successfully processed
func RecordNATSProcessed() {
	NATSMessagesProcessed.Inc()
}

// RecordNATSParseFailed records a message that failed to parse
func RecordNATSParseFailed() {
	NATSMessagesParseFailed.Inc()
}

// RecordNATSProcessingDuration records the duration of message processing
func RecordNATSProcessingDuration(duration time.Duration) {
	NATSProcessingDuration.Observe(duration.Seconds())
}

// UpdateNATSConsumerLag updates the NATS consumer lag gauge
func UpdateNATSConsumerLag(lag int64) {
	NATSConsumerLag.Set(float64(lag))
}

// RecordEventOutcome records the coordinator outcome for an event
func RecordEventOutcome(outcome string) {
	CoordinatorEvents.WithLabelValues(outcome).Inc()
}

// RecordPipelineDuration records the duration of a pipeline invocation
func RecordPipelineDuration(duration time.Duration) {
	CoordinatorPipelineDuration.Observe(duration.Seconds())
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordCircuitBreakerState records a circuit breaker state value
// (0=closed, 1=half-open, 2=open)
func RecordCircuitBreakerState(name string, state float64) {
	CircuitBreakerState.WithLabelValues(name).Set(state)
}

// RecordCircuitBreakerRequest records a request passing through a circuit breaker
func RecordCircuitBreakerRequest(name, result string) {
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}

// RecordCircuitBreakerTransition records a circuit breaker state transition
func RecordCircuitBreakerTransition(name, fromState, toState string) {
	CircuitBreakerTransitions.WithLabelValues(name, fromState, toState).Inc()
}

// RecordDLQEntry records a message being added to the DLQ
func RecordDLQEntry(category string) {
	DLQMessagesAdded.Inc()
	DLQEntriesByCategory.WithLabelValues(category).Inc()
}

// RecordDLQRemoval records a message being removed from the DLQ
func RecordDLQRemoval(category string) {
	DLQMessagesRemoved.Inc()
	DLQEntriesByCategory.WithLabelValues(category).Dec()
}

// RecordDLQExpiry records a message expiring from the DLQ
func RecordDLQExpiry(category string) {
	DLQMessagesExpired.Inc()
	DLQEntriesByCategory.WithLabelValues(category).Dec()
}

// RecordDLQRequeue records a requeue attempt and its outcome
func RecordDLQRequeue(success bool) {
	DLQRequeueAttempts.Inc()
	if success {
		DLQRequeueSuccesses.Inc()
	} else {
		DLQRequeueFailures.Inc()
	}
}

// UpdateDLQGauges updates DLQ gauge metrics with current stats
func UpdateDLQGauges(totalEntries int64, oldestEntryAge float64, entriesByCategory map[string]int64) {
	DLQEntriesTotal.Set(float64(totalEntries))
	DLQOldestEntryAge.Set(oldestEntryAge)
	for category, count := range entriesByCategory {
		DLQEntriesByCategory.WithLabelValues(category).Set(float64(count))
	}
}
