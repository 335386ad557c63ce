// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package dlq

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewSweeper_Validation(t *testing.T) {
	t.Parallel()

	store := setupTestStore(t)

	if _, err := NewSweeper(nil, time.Hour, time.Minute); err == nil {
		t.Error("NewSweeper(nil store) should fail")
	}
	if _, err := NewSweeper(store, 0, time.Minute); err == nil {
		t.Error("NewSweeper with zero retention should fail")
	}
	if _, err := NewSweeper(store, time.Hour, 0); err == nil {
		t.Error("NewSweeper with zero interval should fail")
	}
	if _, err := NewSweeper(store, time.Hour, time.Minute); err != nil {
		t.Errorf("NewSweeper: %v", err)
	}
}

func TestSweeper_RemovesExpiredEntries(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := setupTestStore(t)

	expired := testEntry(200, "CONNECTION")
	expired.LastSeen = time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Microsecond)
	if err := store.Save(ctx, expired); err != nil {
		t.Fatalf("Save: %v", err)
	}
	fresh := testEntry(201, "TIMEOUT")
	if err := store.Save(ctx, fresh); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sweeper, err := NewSweeper(store, 24*time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sweeper.Serve(ctx) }()

	// The first sweep runs immediately on Serve, not after an interval.
	deadline := time.Now().Add(2 * time.Second)
	for {
		count, err := store.Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if count == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expired entry not swept, count = %d", count)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := store.Get(ctx, fresh.Key); err != nil {
		t.Errorf("fresh entry should survive the sweep, Get = %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Serve did not return after cancellation")
	}
}

func TestSweeper_String(t *testing.T) {
	t.Parallel()

	sweeper, err := NewSweeper(setupTestStore(t), time.Hour, time.Minute)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	if got := sweeper.String(); got != "dlq-sweeper" {
		t.Errorf("String() = %q, want dlq-sweeper", got)
	}
}
