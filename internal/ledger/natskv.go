// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/semel/internal/logging"
	"github.com/tomtom215/semel/internal/metrics"
)

// checksumIndexPrefix namespaces index entries inside the bucket.
// Record keys are hex digests and can never collide with this prefix.
const checksumIndexPrefix = "cksum."

const defaultNatsKVTxnRetries = 5

// NatsKVLedger is the networked ledger backend over a JetStream
// Key-Value bucket. Atomicity for Begin comes from per-key revision
// compare-and-swap: the read captures the entry revision, the write
// demands it, and a racing writer's commit invalidates it, forcing this
// worker to re-read and re-decide.
type NatsKVLedger struct {
	kv      jetstream.KeyValue
	ttl     time.Duration
	retries int
}

// NewNatsKVLedger binds to the configured bucket, creating it when it
// does not exist yet.
func NewNatsKVLedger(ctx context.Context, nc *nats.Conn, cfg NatsKVConfig, ttl time.Duration) (*NatsKVLedger, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	replicas := cfg.Replicas
	if replicas <= 0 {
		replicas = 1
	}

	kv, err := js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "idempotency ledger records and checksum index",
		History:     1,
		Storage:     jetstream.FileStorage,
		Replicas:    replicas,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("create ledger bucket: %w", err)
		}
		kv, err = js.KeyValue(ctx, cfg.Bucket)
		if err != nil {
			return nil, fmt.Errorf("bind ledger bucket: %w", err)
		}
	}

	retries := cfg.TxnRetries
	if retries <= 0 {
		retries = defaultNatsKVTxnRetries
	}

	return &NatsKVLedger{
		kv:      kv,
		ttl:     ttl,
		retries: retries,
	}, nil
}

// withTxn retries fn while the KV layer reports a lost
// compare-and-swap race. Each retry re-reads the entry, so racing
// workers converge on one winner and the rest decide against the
// winner's committed state.
func (l *NatsKVLedger) withTxn(op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < l.retries; attempt++ {
		err = fn()
		if !isCASConflict(err) {
			return err
		}
		metrics.RecordTxnConflict(BackendNatsKV)
	}
	return fmt.Errorf("%s conflicted %d times: %w", op, l.retries, ErrTxnConflict)
}

// isCASConflict reports whether err is a lost revision race: a Create
// against an existing key, or an Update against a stale revision. Both
// surface through the same wrong-last-sequence error.
func isCASConflict(err error) bool {
	return err != nil && errors.Is(err, jetstream.ErrKeyExists)
}

// Begin implements Ledger.
func (l *NatsKVLedger) Begin(ctx context.Context, info KeyInfo) (*Decision, error) {
	if info.Key == "" {
		return nil, fmt.Errorf("begin: key required")
	}

	start := time.Now()
	var (
		decision     *Decision
		leaseExpired bool
	)

	err := l.withTxn("begin", func() error {
		entry, err := l.kv.Get(ctx, info.Key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			created, d, _ := applyBegin(nil, info, time.Now().UTC(), l.ttl)
			data, merr := json.Marshal(created)
			if merr != nil {
				return fmt.Errorf("encode record: %w", merr)
			}
			if _, err := l.kv.Create(ctx, info.Key, data); err != nil {
				return err
			}
			decision, leaseExpired = d, false
			return nil
		}
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}

		var record IdempotencyRecord
		if err := json.Unmarshal(entry.Value(), &record); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}

		updated, d, stale := applyBegin(&record, info, time.Now().UTC(), l.ttl)
		if updated == nil {
			decision, leaseExpired = d, stale
			return nil
		}

		data, merr := json.Marshal(updated)
		if merr != nil {
			return fmt.Errorf("encode record: %w", merr)
		}
		if _, err := l.kv.Update(ctx, info.Key, data, entry.Revision()); err != nil {
			return err
		}
		decision, leaseExpired = d, stale
		return nil
	})

	metrics.RecordLedgerOperation("begin", BackendNatsKV, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	metrics.RecordBeginDecision(decision.Action)
	if leaseExpired {
		metrics.RecordLeaseExpiry()
	}
	return decision, nil
}

// MarkCompleted implements Ledger. The record commit is the source of
// truth; the checksum index entry is written after it, and a failed
// index write only costs a future dedupe hit, never correctness.
func (l *NatsKVLedger) MarkCompleted(ctx context.Context, key string, result *Result) error {
	start := time.Now()
	var (
		terminalAttempts int
		indexScope       string
		indexChecksum    string
	)

	err := l.withTxn("mark_completed", func() error {
		record, revision, err := l.getRecord(ctx, key)
		if err != nil {
			return err
		}
		if !applyCompleted(record, result, time.Now().UTC()) {
			return nil
		}
		terminalAttempts = record.AttemptCount
		indexScope, indexChecksum = record.ScopeKey, record.Checksum
		return l.putRecord(ctx, record, revision)
	})

	metrics.RecordLedgerOperation("mark_completed", BackendNatsKV, time.Since(start), err)
	if err != nil {
		return err
	}

	if terminalAttempts > 0 {
		metrics.RecordTerminalAttempts(terminalAttempts)
	}
	if indexChecksum != "" {
		if ierr := l.appendChecksumIndex(ctx, indexScope, indexChecksum, key); ierr != nil {
			logging.Warn().
				Err(ierr).
				Str("key", key).
				Msg("Checksum index write failed, record committed without dedupe entry")
		}
	}
	return nil
}

// MarkFailed implements Ledger.
func (l *NatsKVLedger) MarkFailed(ctx context.Context, key, code, message string) error {
	start := time.Now()

	err := l.withTxn("mark_failed", func() error {
		record, revision, err := l.getRecord(ctx, key)
		if err != nil {
			return err
		}
		if !applyFailed(record, code, message, time.Now().UTC()) {
			return nil
		}
		return l.putRecord(ctx, record, revision)
	})

	metrics.RecordLedgerOperation("mark_failed", BackendNatsKV, time.Since(start), err)
	return err
}

// MarkDlq implements Ledger.
func (l *NatsKVLedger) MarkDlq(ctx context.Context, key, code, message string) error {
	start := time.Now()
	var terminalAttempts int

	err := l.withTxn("mark_dlq", func() error {
		record, revision, err := l.getRecord(ctx, key)
		if err != nil {
			return err
		}
		if !applyDlq(record, code, message, time.Now().UTC()) {
			return nil
		}
		terminalAttempts = record.AttemptCount
		return l.putRecord(ctx, record, revision)
	})

	metrics.RecordLedgerOperation("mark_dlq", BackendNatsKV, time.Since(start), err)
	if err == nil && terminalAttempts > 0 {
		metrics.RecordTerminalAttempts(terminalAttempts)
	}
	return err
}

// Reopen implements Ledger.
func (l *NatsKVLedger) Reopen(ctx context.Context, key string) error {
	start := time.Now()

	err := l.withTxn("reopen", func() error {
		record, revision, err := l.getRecord(ctx, key)
		if err != nil {
			return err
		}
		if !applyReopen(record, time.Now().UTC()) {
			return nil
		}
		return l.putRecord(ctx, record, revision)
	})

	metrics.RecordLedgerOperation("reopen", BackendNatsKV, time.Since(start), err)
	return err
}

// FindCompletedByChecksum implements Ledger.
func (l *NatsKVLedger) FindCompletedByChecksum(ctx context.Context, scopeKey, checksum string, sig Signature) (*IdempotencyRecord, error) {
	if checksum == "" {
		return nil, nil
	}

	start := time.Now()
	var found *IdempotencyRecord

	entry, err := l.kv.Get(ctx, checksumIndexKey(scopeKey, checksum))
	switch {
	case errors.Is(err, jetstream.ErrKeyNotFound):
		metrics.RecordDedupeLookup(false, time.Since(start))
		return nil, nil
	case err != nil:
		metrics.RecordDedupeLookup(false, time.Since(start))
		return nil, fmt.Errorf("checksum lookup: %w", err)
	}

	var keys []string
	if err := json.Unmarshal(entry.Value(), &keys); err != nil {
		return nil, fmt.Errorf("decode checksum index: %w", err)
	}

	for _, recordKey := range keys {
		record, _, err := l.getRecord(ctx, recordKey)
		if errors.Is(err, ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if record.Status == StatusCompleted && matchesSignature(record, sig) {
			found = record
			break
		}
	}

	metrics.RecordDedupeLookup(found != nil, time.Since(start))
	return found, nil
}

// Get implements Ledger.
func (l *NatsKVLedger) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	record, _, err := l.getRecord(ctx, key)
	return record, err
}

// Close implements Ledger. The NATS connection is shared and owned by
// the caller, so there is nothing to release here.
func (l *NatsKVLedger) Close() error {
	return nil
}

func (l *NatsKVLedger) getRecord(ctx context.Context, key string) (*IdempotencyRecord, uint64, error) {
	entry, err := l.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, 0, ErrRecordNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get record: %w", err)
	}

	var record IdempotencyRecord
	if err := json.Unmarshal(entry.Value(), &record); err != nil {
		return nil, 0, fmt.Errorf("decode record: %w", err)
	}
	return &record, entry.Revision(), nil
}

func (l *NatsKVLedger) putRecord(ctx context.Context, record *IdempotencyRecord, revision uint64) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if _, err := l.kv.Update(ctx, record.Key, data, revision); err != nil {
		return err
	}
	return nil
}

// appendChecksumIndex adds the record key to the (scope, checksum)
// index entry, creating it on first use. Runs its own CAS loop because
// concurrent completions under the same checksum may race on the entry.
func (l *NatsKVLedger) appendChecksumIndex(ctx context.Context, scopeKey, checksum, recordKey string) error {
	indexKey := checksumIndexKey(scopeKey, checksum)

	for attempt := 0; attempt < l.retries; attempt++ {
		entry, err := l.kv.Get(ctx, indexKey)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			data, merr := json.Marshal([]string{recordKey})
			if merr != nil {
				return fmt.Errorf("encode checksum index: %w", merr)
			}
			_, err = l.kv.Create(ctx, indexKey, data)
			if isCASConflict(err) {
				continue
			}
			return err
		}
		if err != nil {
			return fmt.Errorf("get checksum index: %w", err)
		}

		var keys []string
		if err := json.Unmarshal(entry.Value(), &keys); err != nil {
			return fmt.Errorf("decode checksum index: %w", err)
		}
		for _, k := range keys {
			if k == recordKey {
				return nil
			}
		}
		keys = append(keys, recordKey)

		data, merr := json.Marshal(keys)
		if merr != nil {
			return fmt.Errorf("encode checksum index: %w", merr)
		}
		_, err = l.kv.Update(ctx, indexKey, data, entry.Revision())
		if isCASConflict(err) {
			continue
		}
		return err
	}
	return fmt.Errorf("index update conflicted %d times: %w", l.retries, ErrTxnConflict)
}

// checksumIndexKey builds the KV key for a (scope, checksum) pair.
// Scope characters outside the KV key alphabet are mapped to '_';
// distinct scopes can alias after mapping, but the checksum equality
// and signature check still gate any result copy.
func checksumIndexKey(scopeKey, checksum string) string {
	return checksumIndexPrefix + sanitizeKeySegment(scopeKey) + "." + checksum
}

func sanitizeKeySegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
