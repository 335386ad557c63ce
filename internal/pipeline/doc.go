// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

// Package pipeline defines the boundary to the external media processing
// pipelines (content extraction, embedding, transcoding). Semel never looks
// inside media objects itself; it hands each admitted event to a Processor
// and records the outcome in the idempotency ledger.
//
// Processing Flow:
//
//	StreamEvent -> Processor.Process -> Result{manifest_ref, asset_id, ...}
//	                     |
//	                     v (on error)
//	        RecoverableError | PermanentError
//
// The error taxonomy drives the coordinator's escalation policy: a
// RecoverableError marks the ledger record FAILED and leaves it eligible for
// a later retry, while a PermanentError marks it FAILED and dead-letters the
// event immediately. An unclassified error is marked FAILED like a
// recoverable one (so a transient fault is never promoted to a permanent one
// by accident) but is surfaced to the caller as an internal fault rather
// than swallowed.
//
// Implementations must be safe for concurrent use; the coordinator invokes
// Process from many goroutines at once, though never concurrently for the
// same dedupe key.
package pipeline
