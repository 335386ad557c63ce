// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

// Package dlq provides the dead-letter channel for events that cannot be
// processed: permanent failures and recoverable failures whose attempt
// budget ran out.
//
// Dead-Letter Flow:
//
//	Coordinator -> Router.Publish -> EVENTS.dlq subject
//	                                      |
//	                                      v
//	                         Archiver -> DuckDB store -> admin API
//
// The Router serializes a self-contained Payload to the dead-letter
// subject, so a human or a replay tool can diagnose the failure from the
// message alone. The Archiver consumes that subject into a DuckDB table
// for inspection, statistics, and retention sweeping. The Requeuer sends
// archived events back through the ingestion path at a bounded rate after
// reopening their ledger records.
//
// Escalation policy (which failures dead-letter, and when) belongs to the
// coordinator; this package only transports, stores, and requeues.
package dlq
