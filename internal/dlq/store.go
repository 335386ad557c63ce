// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package dlq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"

	"github.com/tomtom215/semel/internal/eventstream"
	"github.com/tomtom215/semel/internal/logging"
	"github.com/tomtom215/semel/internal/metrics"
)

// Entry is one archived dead-letter record. The store keeps one entry
// per dedupe key: a key that dead-letters again after a requeue updates
// its entry in place, with FirstSeen preserved.
type Entry struct {
	Key          string                   `json:"key"`
	DeliveryID   string                   `json:"delivery_id"`
	ErrorCode    string                   `json:"error_code"`
	ErrorMessage string                   `json:"error_message"`
	AttemptCount int                      `json:"attempt_count"`
	Modality     string                   `json:"modality"`
	Event        *eventstream.StreamEvent `json:"event"`
	ReceivedAt   time.Time                `json:"received_at"`
	FirstSeen    time.Time                `json:"first_seen"`
	LastSeen     time.Time                `json:"last_seen"`
}

// Stats summarizes the archive for the admin surface and gauges.
type Stats struct {
	TotalEntries int64            `json:"total_entries"`
	ByErrorCode  map[string]int64 `json:"by_error_code"`
	OldestEntry  time.Time        `json:"oldest_entry"`
	NewestEntry  time.Time        `json:"newest_entry"`
}

// Store persists dead-letter entries in DuckDB so they survive restarts
// and can be inspected, swept, and requeued.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	ownsDB bool
}

// NewStore opens the DuckDB database at cfg.Path and ensures the schema
// exists. The store owns the connection and closes it on Close.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	store := &Store{db: db, ownsDB: true}
	if err := store.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewStoreFromDB wraps an existing database handle, ensuring the schema
// exists. The caller retains ownership of the handle.
func NewStoreFromDB(ctx context.Context, db *sql.DB) (*Store, error) {
	store := &Store{db: db}
	if err := store.createSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func openDatabase(cfg StoreConfig) (*sql.DB, error) {
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("create dlq store directory %s: %w", dbDir, err)
		}
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	// Disable auto-install/auto-load to prevent hangs in restricted
	// network environments.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads)
	if cfg.MaxMemory != "" {
		connStr += "&max_memory=" + cfg.MaxMemory
	}

	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open dlq store: %w", err)
	}

	db.SetMaxOpenConns(threads)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// createSchema creates the dlq_entries table and indexes if they do not
// exist. Statements execute one at a time; DuckDB does not support
// multi-statement execution.
func (s *Store) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dlq_entries (
			dedupe_key TEXT PRIMARY KEY,
			delivery_id TEXT NOT NULL,
			error_code TEXT NOT NULL,
			error_message TEXT NOT NULL,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			modality TEXT NOT NULL,
			event_data JSON NOT NULL,
			received_at TIMESTAMPTZ NOT NULL,
			first_seen TIMESTAMPTZ NOT NULL,
			last_seen TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dlq_last_seen ON dlq_entries(last_seen)`,
		`CREATE INDEX IF NOT EXISTS idx_dlq_error_code ON dlq_entries(error_code)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute dlq schema statement: %w", err)
		}
	}

	// Checkpoint so the schema statements are flushed out of the WAL;
	// WAL replay of pending CREATE statements has failed on some DuckDB
	// versions.
	if _, err := s.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint after dlq_entries table creation")
	}

	logging.Info().Msg("DLQ entries table created/verified")
	return nil
}

// Save inserts or updates the entry for its dedupe key. On update the
// first_seen timestamp of the existing row is preserved.
func (s *Store) Save(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry == nil || entry.Event == nil {
		return fmt.Errorf("entry and event cannot be nil")
	}
	if entry.Key == "" {
		return fmt.Errorf("entry key cannot be empty")
	}

	eventData, err := json.Marshal(entry.Event)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	now := time.Now().UTC()
	firstSeen := entry.FirstSeen
	if firstSeen.IsZero() {
		firstSeen = now
	}
	lastSeen := entry.LastSeen
	if lastSeen.IsZero() {
		lastSeen = now
	}

	query := `
		INSERT INTO dlq_entries (
			dedupe_key, delivery_id, error_code, error_message,
			attempt_count, modality, event_data, received_at,
			first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dedupe_key) DO UPDATE SET
			delivery_id = EXCLUDED.delivery_id,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			attempt_count = EXCLUDED.attempt_count,
			event_data = EXCLUDED.event_data,
			received_at = EXCLUDED.received_at,
			last_seen = EXCLUDED.last_seen
	`

	_, err = s.db.ExecContext(ctx, query,
		entry.Key,
		entry.DeliveryID,
		entry.ErrorCode,
		entry.ErrorMessage,
		entry.AttemptCount,
		entry.Modality,
		string(eventData),
		entry.ReceivedAt,
		firstSeen,
		lastSeen,
	)
	if err != nil {
		return fmt.Errorf("save dlq entry: %w", err)
	}

	return nil
}

// Get retrieves the entry for a dedupe key, or ErrEntryNotFound.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT
			dedupe_key, delivery_id, error_code, error_message,
			attempt_count, modality, CAST(event_data AS VARCHAR),
			received_at, first_seen, last_seen
		FROM dlq_entries
		WHERE dedupe_key = ?
	`

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

// List returns all entries ordered by first_seen, oldest first.
func (s *Store) List(ctx context.Context) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT
			dedupe_key, delivery_id, error_code, error_message,
			attempt_count, modality, CAST(event_data AS VARCHAR),
			received_at, first_seen, last_seen
		FROM dlq_entries
		ORDER BY first_seen ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list dlq entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to scan DLQ entry row")
			continue
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dlq entries: %w", err)
	}

	return entries, nil
}

// Delete removes the entry for a dedupe key. Returns true if an entry
// was found and removed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM dlq_entries WHERE dedupe_key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("delete dlq entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteExpired removes entries last dead-lettered before olderThan and
// returns how many were removed.
func (s *Store) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Count per error code first so expiry metrics keep their labels;
	// the window between count and delete only affects the metric.
	rows, err := s.db.QueryContext(ctx,
		`SELECT error_code, COUNT(*) FROM dlq_entries WHERE last_seen < ? GROUP BY error_code`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("count expired dlq entries: %w", err)
	}
	expiring := make(map[string]int64)
	for rows.Next() {
		var code string
		var n int64
		if err := rows.Scan(&code, &n); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan expired count: %w", err)
		}
		expiring[code] = n
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("iterate expired counts: %w", err)
	}
	_ = rows.Close()

	result, err := s.db.ExecContext(ctx, `DELETE FROM dlq_entries WHERE last_seen < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete expired dlq entries: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get deleted count: %w", err)
	}

	for code, n := range expiring {
		for i := int64(0); i < n; i++ {
			metrics.RecordDLQExpiry(categoryLabel(code))
		}
	}

	if count > 0 {
		logging.Info().Int64("deleted", count).Time("older_than", olderThan).
			Msg("Deleted expired DLQ entries")
	}

	return count, nil
}

// Count returns the total number of entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dlq_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count dlq entries: %w", err)
	}
	return count, nil
}

// Stats returns archive statistics and refreshes the Prometheus gauges.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{ByErrorCode: make(map[string]int64)}

	var oldest, newest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(first_seen), MAX(last_seen) FROM dlq_entries`).
		Scan(&stats.TotalEntries, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("query dlq stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestEntry = oldest.Time
	}
	if newest.Valid {
		stats.NewestEntry = newest.Time
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT error_code, COUNT(*) FROM dlq_entries GROUP BY error_code`)
	if err != nil {
		return nil, fmt.Errorf("query dlq stats by code: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var code string
		var n int64
		if err := rows.Scan(&code, &n); err != nil {
			return nil, fmt.Errorf("scan dlq stats row: %w", err)
		}
		stats.ByErrorCode[code] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dlq stats rows: %w", err)
	}

	oldestAge := float64(0)
	if !stats.OldestEntry.IsZero() {
		oldestAge = time.Since(stats.OldestEntry).Seconds()
	}
	byCategory := make(map[string]int64, len(stats.ByErrorCode))
	for code, n := range stats.ByErrorCode {
		byCategory[categoryLabel(code)] = n
	}
	metrics.UpdateDLQGauges(stats.TotalEntries, oldestAge, byCategory)

	return stats, nil
}

// Close releases the database handle if the store owns it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var key, deliveryID, errorCode, errorMessage, modality, eventData string
	var attemptCount int
	var receivedAt, firstSeen, lastSeen time.Time

	err := row.Scan(
		&key,
		&deliveryID,
		&errorCode,
		&errorMessage,
		&attemptCount,
		&modality,
		&eventData,
		&receivedAt,
		&firstSeen,
		&lastSeen,
	)
	if err != nil {
		return nil, err
	}

	var event eventstream.StreamEvent
	if err := json.Unmarshal([]byte(eventData), &event); err != nil {
		return nil, fmt.Errorf("unmarshal event data: %w", err)
	}

	return &Entry{
		Key:          key,
		DeliveryID:   deliveryID,
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
		AttemptCount: attemptCount,
		Modality:     modality,
		Event:        &event,
		ReceivedAt:   receivedAt,
		FirstSeen:    firstSeen,
		LastSeen:     lastSeen,
	}, nil
}
