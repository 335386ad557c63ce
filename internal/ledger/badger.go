// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/semel/internal/metrics"
)

// Key prefixes for BadgerDB storage. The checksum index maps
// "cksum:<scope>:<checksum>:<key>" to the record key so a prefix scan
// over (scope, checksum) finds every candidate.
const (
	recordKeyPrefix   = "record:"
	checksumKeyPrefix = "cksum:"
)

const defaultBadgerTxnRetries = 5

// BadgerLedger is the embedded ledger backend. Atomicity for Begin
// comes from running the read-modify-write inside one db.Update
// transaction; BadgerDB detects write conflicts between racing
// transactions at commit and the loser retries against fresh state.
type BadgerLedger struct {
	db      *badger.DB
	ttl     time.Duration
	retries int
	ownsDB  bool
}

// NewBadgerLedger opens a BadgerDB at the configured path and returns a
// ledger over it. The returned ledger owns the database and closes it
// on Close.
func NewBadgerLedger(cfg BadgerConfig, ttl time.Duration) (*BadgerLedger, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.Logger = nil // Suppress BadgerDB logs
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for ledger: %w", err)
	}

	l := NewBadgerLedgerFromDB(db, ttl)
	l.ownsDB = true
	if cfg.TxnRetries > 0 {
		l.retries = cfg.TxnRetries
	}
	return l, nil
}

// NewBadgerLedgerFromDB creates a ledger over an existing database. The
// caller retains ownership of the database.
func NewBadgerLedgerFromDB(db *badger.DB, ttl time.Duration) *BadgerLedger {
	return &BadgerLedger{
		db:      db,
		ttl:     ttl,
		retries: defaultBadgerTxnRetries,
	}
}

// WithTransaction runs fn as one read-modify-write transaction,
// retrying when a concurrent commit conflicts with it. Badger reports
// the conflict only at commit time, so fn must be safe to re-run
// against the winner's state.
func (l *BadgerLedger) WithTransaction(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < l.retries; attempt++ {
		err = l.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		metrics.RecordTxnConflict(BackendBadger)
	}
	return fmt.Errorf("update conflicted %d times: %w", l.retries, ErrTxnConflict)
}

// Begin implements Ledger.
func (l *BadgerLedger) Begin(ctx context.Context, info KeyInfo) (*Decision, error) {
	if info.Key == "" {
		return nil, fmt.Errorf("begin: key required")
	}

	start := time.Now()
	var (
		decision     *Decision
		leaseExpired bool
	)

	err := l.WithTransaction(func(txn *badger.Txn) error {
		record, err := getRecordTxn(txn, info.Key)
		if err != nil && !errors.Is(err, ErrRecordNotFound) {
			return err
		}

		updated, d, stale := applyBegin(record, info, time.Now().UTC(), l.ttl)
		decision, leaseExpired = d, stale
		if updated == nil {
			return nil
		}
		return setRecordTxn(txn, updated)
	})

	metrics.RecordLedgerOperation("begin", BackendBadger, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	metrics.RecordBeginDecision(decision.Action)
	if leaseExpired {
		metrics.RecordLeaseExpiry()
	}
	return decision, nil
}

// MarkCompleted implements Ledger. The record update and the checksum
// index entry commit in the same transaction, so the index never
// references a record that failed to transition.
func (l *BadgerLedger) MarkCompleted(ctx context.Context, key string, result *Result) error {
	start := time.Now()
	var terminalAttempts int

	err := l.WithTransaction(func(txn *badger.Txn) error {
		record, err := getRecordTxn(txn, key)
		if err != nil {
			return err
		}
		if !applyCompleted(record, result, time.Now().UTC()) {
			return nil
		}
		terminalAttempts = record.AttemptCount

		if err := setRecordTxn(txn, record); err != nil {
			return err
		}
		if record.Checksum != "" {
			indexKey := []byte(checksumKeyPrefix + record.ScopeKey + ":" + record.Checksum + ":" + record.Key)
			if err := txn.Set(indexKey, []byte(record.Key)); err != nil {
				return fmt.Errorf("set checksum index: %w", err)
			}
		}
		return nil
	})

	metrics.RecordLedgerOperation("mark_completed", BackendBadger, time.Since(start), err)
	if err == nil && terminalAttempts > 0 {
		metrics.RecordTerminalAttempts(terminalAttempts)
	}
	return err
}

// MarkFailed implements Ledger.
func (l *BadgerLedger) MarkFailed(ctx context.Context, key, code, message string) error {
	start := time.Now()

	err := l.WithTransaction(func(txn *badger.Txn) error {
		record, err := getRecordTxn(txn, key)
		if err != nil {
			return err
		}
		if !applyFailed(record, code, message, time.Now().UTC()) {
			return nil
		}
		return setRecordTxn(txn, record)
	})

	metrics.RecordLedgerOperation("mark_failed", BackendBadger, time.Since(start), err)
	return err
}

// MarkDlq implements Ledger.
func (l *BadgerLedger) MarkDlq(ctx context.Context, key, code, message string) error {
	start := time.Now()
	var terminalAttempts int

	err := l.WithTransaction(func(txn *badger.Txn) error {
		record, err := getRecordTxn(txn, key)
		if err != nil {
			return err
		}
		if !applyDlq(record, code, message, time.Now().UTC()) {
			return nil
		}
		terminalAttempts = record.AttemptCount
		return setRecordTxn(txn, record)
	})

	metrics.RecordLedgerOperation("mark_dlq", BackendBadger, time.Since(start), err)
	if err == nil && terminalAttempts > 0 {
		metrics.RecordTerminalAttempts(terminalAttempts)
	}
	return err
}

// Reopen implements Ledger.
func (l *BadgerLedger) Reopen(ctx context.Context, key string) error {
	start := time.Now()

	err := l.WithTransaction(func(txn *badger.Txn) error {
		record, err := getRecordTxn(txn, key)
		if err != nil {
			return err
		}
		if !applyReopen(record, time.Now().UTC()) {
			return nil
		}
		return setRecordTxn(txn, record)
	})

	metrics.RecordLedgerOperation("reopen", BackendBadger, time.Since(start), err)
	return err
}

// FindCompletedByChecksum implements Ledger.
func (l *BadgerLedger) FindCompletedByChecksum(ctx context.Context, scopeKey, checksum string, sig Signature) (*IdempotencyRecord, error) {
	if checksum == "" {
		return nil, nil
	}

	start := time.Now()
	var found *IdempotencyRecord

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(checksumKeyPrefix + scopeKey + ":" + checksum + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var recordKey string
			err := it.Item().Value(func(val []byte) error {
				recordKey = string(val)
				return nil
			})
			if err != nil {
				return err
			}

			record, err := getRecordTxn(txn, recordKey)
			if errors.Is(err, ErrRecordNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if record.Status == StatusCompleted && matchesSignature(record, sig) {
				found = record
				return nil
			}
		}
		return nil
	})

	metrics.RecordDedupeLookup(found != nil, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("checksum lookup: %w", err)
	}
	return found, nil
}

// Get implements Ledger.
func (l *BadgerLedger) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	var record *IdempotencyRecord

	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = getRecordTxn(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Close closes the database when this ledger owns it.
func (l *BadgerLedger) Close() error {
	if l.ownsDB {
		return l.db.Close()
	}
	return nil
}

func getRecordTxn(txn *badger.Txn, key string) (*IdempotencyRecord, error) {
	item, err := txn.Get([]byte(recordKeyPrefix + key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	var record IdempotencyRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	})
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &record, nil
}

func setRecordTxn(txn *badger.Txn, record *IdempotencyRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := txn.Set([]byte(recordKeyPrefix+record.Key), data); err != nil {
		return fmt.Errorf("set record: %w", err)
	}
	return nil
}
