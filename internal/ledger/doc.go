// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

// Package ledger implements the transactional idempotency ledger that
// turns at-least-once event delivery into at-most-once processing.
//
// Every unit of work is identified by a deterministic dedupe key. The
// ledger holds one IdempotencyRecord per key and answers the only
// question the coordinator needs: given this key, should this worker
// process, wait, or skip? The answer comes from Begin, a single atomic
// read-modify-write that evaluates the record's status and lease:
//
//	no record                      -> create PROCESSING attempt=1, process
//	COMPLETED or DLQ               -> skip_completed (terminal, forever)
//	PROCESSING with a live lease   -> skip_processing (another worker owns it)
//	PROCESSING stale, or FAILED    -> attempt++, re-lease, process
//
// The lease is a time window, not an in-process lock: a worker that
// crashes mid-processing simply stops refreshing the record, and after
// processing_ttl elapses the next Begin re-admits the key. This bounds
// how long a dead worker can block a key without any coordination
// channel between workers.
//
// DLQ is terminal for the normal flow, but an operator can requeue a
// dead-lettered key: Reopen flips the record back to FAILED (attempt
// count intact) so the next Begin re-admits it.
//
// # Backends
//
// Two interchangeable backends implement the same contract, selected by
// configuration through NewLedger:
//
//   - BadgerLedger: an embedded BadgerDB store. The read-modify-write
//     runs inside db.Update; commit conflicts between racing workers
//     surface as badger.ErrConflict and are retried.
//   - NatsKVLedger: a JetStream Key-Value bucket. Atomicity comes from
//     per-key revision compare-and-swap; a lost race surfaces as a
//     wrong-revision error and the read-modify-write is retried.
//
// Both backends drive their decisions through one shared transition
// function, so identical call sequences yield identical decisions. The
// conformance tests run the same suite against both.
//
// # Checksum dedupe
//
// COMPLETED records are additionally indexed by (scope_key, checksum)
// so that byte-identical content arriving under a different name can be
// completed by copying the prior result instead of reprocessing.
// FindCompletedByChecksum performs that lookup, narrowed by an optional
// size/content-type signature to guard against fingerprint collisions.
// The index only ever references completed, immutable records, so the
// lookup needs no transactional isolation.
package ledger
