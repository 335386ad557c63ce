// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

// Package coordinator orchestrates exactly-once processing of stream
// events. It composes the idempotency ledger, the checksum dedupe
// index, the processing pipeline, and the dead-letter router around a
// single per-event decision sequence:
//
//	StreamEvent
//	    |
//	    v
//	Ledger.Begin ----> skip_processing / skip_completed: stop, no side effects
//	    |
//	    | process (exclusive ownership of this attempt)
//	    v
//	Checksum dedupe ----> hit: copy prior result, MarkCompleted, stop
//	    |
//	    | miss
//	    v
//	Pipeline.Process ----> success: MarkCompleted
//	    |
//	    | failure
//	    v
//	Escalation: permanent errors dead-letter immediately; recoverable
//	errors MarkFailed and retry via redelivery until the attempt budget
//	is exhausted, then dead-letter with error code MAX_ATTEMPTS.
//
// The coordinator is stateless between invocations; all durable state
// lives in the ledger. It is safe to invoke concurrently, including for
// the same key: Begin's atomicity guarantees that only one caller owns
// any given attempt, and everything downstream of a process decision
// executes exclusively for that attempt.
//
// Two entry points serve the two ingress paths. Process returns the
// outcome and classified error for synchronous callers (the push API).
// ConsumeEvent adapts Process to the envelope consumer's ack/nack
// contract: handled outcomes and malformed events ack, retriable
// faults nack for redelivery.
package coordinator
