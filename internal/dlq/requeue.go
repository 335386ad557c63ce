// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package dlq

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/tomtom215/semel/internal/eventstream"
	"github.com/tomtom215/semel/internal/ledger"
	"github.com/tomtom215/semel/internal/logging"
	"github.com/tomtom215/semel/internal/metrics"
)

// Requeuer sends archived dead-letter events back through the ingestion
// path. For each entry it reopens the ledger record (DLQ back to FAILED,
// attempt count intact), republishes the original event to the batch
// subject, and removes the archive entry. The rate limiter paces bulk
// requeues so they cannot flood the path that just dead-lettered them.
//
// The record is reopened before the event is published. A failure
// between the two steps leaves a FAILED record and a still-archived
// entry, and repeating the requeue converges; an event published while
// its record still said DLQ would only be skipped by Begin.
type Requeuer struct {
	store   *Store
	ledger  ledger.Ledger
	sink    eventstream.BatchSink
	limiter *rate.Limiter
}

// NewRequeuer creates a requeuer pacing republishes at perSecond with
// the given burst.
func NewRequeuer(store *Store, led ledger.Ledger, sink eventstream.BatchSink, perSecond float64, burst int) (*Requeuer, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if led == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if perSecond <= 0 || burst <= 0 {
		return nil, fmt.Errorf("requeue rate and burst must be positive")
	}

	return &Requeuer{
		store:   store,
		ledger:  led,
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}, nil
}

// Requeue sends one archived event back through the ingestion path and
// returns the batch message id. Returns ErrEntryNotFound when the key
// has no archive entry.
func (q *Requeuer) Requeue(ctx context.Context, key string) (string, error) {
	entry, err := q.store.Get(ctx, key)
	if err != nil {
		return "", err
	}

	if err := q.limiter.Wait(ctx); err != nil {
		return "", err
	}

	// A missing ledger record is fine: Begin will create a fresh one
	// when the republished event arrives.
	if err := q.ledger.Reopen(ctx, key); err != nil && !errors.Is(err, ledger.ErrRecordNotFound) {
		metrics.RecordDLQRequeue(false)
		return "", fmt.Errorf("reopen ledger record: %w", err)
	}

	id, err := q.sink.PublishEnvelope(ctx, eventstream.NewBatchEnvelope(*entry.Event))
	if err != nil {
		metrics.RecordDLQRequeue(false)
		return "", fmt.Errorf("republish event: %w", err)
	}

	if _, err := q.store.Delete(ctx, key); err != nil {
		logging.Warn().Err(err).Str("key", key).
			Msg("Requeued event but archive entry removal failed")
	}

	metrics.RecordDLQRequeue(true)
	metrics.RecordDLQRemoval(categoryLabel(entry.ErrorCode))
	logging.Info().
		Str("key", key).
		Str("message_id", id).
		Int("attempt_count", entry.AttemptCount).
		Msg("Dead-lettered event requeued")

	return id, nil
}

// RequeueAll sends every archived event back through the ingestion path
// and returns how many were requeued. Individual failures are logged and
// skipped; context cancellation stops the run.
func (q *Requeuer) RequeueAll(ctx context.Context) (int, error) {
	entries, err := q.store.List(ctx)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, entry := range entries {
		if _, err := q.Requeue(ctx, entry.Key); err != nil {
			if ctx.Err() != nil {
				return requeued, ctx.Err()
			}
			logging.Error().Err(err).Str("key", entry.Key).
				Msg("Requeue failed, entry left in archive")
			continue
		}
		requeued++
	}

	return requeued, nil
}
