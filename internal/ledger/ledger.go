// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Ledger is the backend-agnostic contract for the idempotency ledger.
// Both implementations guarantee that Begin is atomic per key: two
// concurrent callers for the same key never both receive process.
type Ledger interface {
	// Begin admits, defers, or skips one attempt for a key. It is the
	// only entry point that creates records.
	Begin(ctx context.Context, info KeyInfo) (*Decision, error)

	// MarkCompleted transitions the record to COMPLETED with the
	// attempt's result summary and indexes its checksum for dedupe.
	// A no-op if the record is already terminal.
	MarkCompleted(ctx context.Context, key string, result *Result) error

	// MarkFailed records a failed attempt, leaving the key eligible for
	// re-admission by a future Begin. A no-op if the record is terminal.
	MarkFailed(ctx context.Context, key, code, message string) error

	// MarkDlq transitions the record to DLQ, permanently blocking
	// reprocessing. A no-op if the record is already terminal.
	MarkDlq(ctx context.Context, key, code, message string) error

	// Reopen flips a DLQ record back to FAILED so a future Begin can
	// re-admit the key. Used by the dead-letter requeue path; a no-op
	// for records in any other status.
	Reopen(ctx context.Context, key string) error

	// FindCompletedByChecksum returns a COMPLETED record matching the
	// scope, checksum, and signature, or nil when none matches.
	FindCompletedByChecksum(ctx context.Context, scopeKey, checksum string, sig Signature) (*IdempotencyRecord, error)

	// Get returns the record for a key, or ErrRecordNotFound.
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)

	// Close releases backend resources owned by the ledger.
	Close() error
}

// NewLedger constructs the backend selected by cfg.Backend. The NATS
// connection is only required for the natskv backend and may be nil
// otherwise.
func NewLedger(ctx context.Context, cfg Config, nc *nats.Conn) (Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendBadger:
		return NewBadgerLedger(cfg.Badger, cfg.ProcessingTTL)
	case BackendNatsKV:
		if nc == nil {
			return nil, fmt.Errorf("natskv backend requires a NATS connection")
		}
		return NewNatsKVLedger(ctx, nc, cfg.NatsKV, cfg.ProcessingTTL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// applyBegin evaluates the admission rules against the current record
// (nil when absent) and returns the record to persist alongside the
// decision. A nil returned record means no write is needed. Both
// backends route every Begin through this function so their decision
// sequences cannot diverge; what differs is only how each one makes the
// surrounding read-modify-write atomic.
func applyBegin(record *IdempotencyRecord, info KeyInfo, now time.Time, ttl time.Duration) (*IdempotencyRecord, *Decision, bool) {
	if record == nil {
		created := &IdempotencyRecord{
			Key:             info.Key,
			Status:          StatusProcessing,
			AttemptCount:    1,
			ObjectSize:      info.ObjectSize,
			ContentType:     info.ContentType,
			PipelineVersion: info.PipelineVersion,
			ScopeKey:        info.ScopeKey,
			Checksum:        info.Checksum,
			StartedAt:       now,
			UpdatedAt:       now,
			ExpiresAt:       now.Add(ttl),
		}
		return created, &Decision{
			Action:       ActionProcess,
			Key:          info.Key,
			Status:       StatusProcessing,
			AttemptCount: 1,
		}, false
	}

	switch record.Status {
	case StatusCompleted, StatusDlq:
		return nil, &Decision{
			Action:       ActionSkipCompleted,
			Key:          record.Key,
			Status:       record.Status,
			AttemptCount: record.AttemptCount,
		}, false
	case StatusProcessing:
		if now.Sub(record.UpdatedAt) < ttl {
			return nil, &Decision{
				Action:       ActionSkipProcessing,
				Key:          record.Key,
				Status:       StatusProcessing,
				AttemptCount: record.AttemptCount,
			}, false
		}
	}

	// Stale PROCESSING or FAILED: re-admit with a fresh lease.
	leaseExpired := record.Status == StatusProcessing
	record.AttemptCount++
	record.Status = StatusProcessing
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(ttl)
	return record, &Decision{
		Action:       ActionProcess,
		Key:          record.Key,
		Status:       StatusProcessing,
		AttemptCount: record.AttemptCount,
	}, leaseExpired
}

// applyCompleted transitions the record to COMPLETED. Returns false
// without mutating when the record is already terminal, so a stale
// worker finishing late cannot overwrite an outcome that already stuck.
func applyCompleted(record *IdempotencyRecord, result *Result, now time.Time) bool {
	if record.IsTerminal() {
		return false
	}
	record.Status = StatusCompleted
	record.UpdatedAt = now
	record.ExpiresAt = time.Time{}
	record.ErrorCode = ""
	record.ErrorMessage = ""
	record.Result = result
	return true
}

// applyFailed records a failed attempt. Returns false without mutating
// when the record is already terminal.
func applyFailed(record *IdempotencyRecord, code, message string, now time.Time) bool {
	if record.IsTerminal() {
		return false
	}
	record.Status = StatusFailed
	record.UpdatedAt = now
	record.ExpiresAt = time.Time{}
	record.ErrorCode = code
	record.ErrorMessage = message
	return true
}

// applyDlq transitions the record to DLQ. Returns false without
// mutating when the record is already terminal.
func applyDlq(record *IdempotencyRecord, code, message string, now time.Time) bool {
	if record.IsTerminal() {
		return false
	}
	record.Status = StatusDlq
	record.UpdatedAt = now
	record.ExpiresAt = time.Time{}
	record.ErrorCode = code
	record.ErrorMessage = message
	return true
}

// applyReopen flips a DLQ record back to FAILED. The attempt count and
// the error fields survive so the record still shows why it dead-lettered
// and how many attempts it already consumed. Returns false without
// mutating for records in any other status.
func applyReopen(record *IdempotencyRecord, now time.Time) bool {
	if record.Status != StatusDlq {
		return false
	}
	record.Status = StatusFailed
	record.UpdatedAt = now
	record.ExpiresAt = time.Time{}
	return true
}

// matchesSignature reports whether a candidate record agrees with the
// narrowing signature. A record missing a field the signature demands
// cannot confirm the match and is rejected: reprocessing identical
// content costs time, copying the wrong result corrupts output.
func matchesSignature(record *IdempotencyRecord, sig Signature) bool {
	if sig.Size > 0 && record.ObjectSize != sig.Size {
		return false
	}
	if sig.ContentType != "" && record.ContentType != sig.ContentType {
		return false
	}
	return true
}
