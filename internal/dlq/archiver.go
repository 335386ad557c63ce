// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package dlq

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/semel/internal/logging"
	"github.com/tomtom215/semel/internal/metrics"
)

// MessageSource is the subscription capability the archiver needs.
type MessageSource interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// Archiver consumes the dead-letter subject into the inspection store.
// A payload that cannot parse is acked and logged; a store failure nacks
// the message so the durable consumer redelivers it, and the per-key
// upsert makes the redelivered save idempotent.
type Archiver struct {
	source  MessageSource
	store   *Store
	subject string
}

// NewArchiver creates an archiver for the given dead-letter subject.
func NewArchiver(source MessageSource, store *Store, subject string) (*Archiver, error) {
	if source == nil {
		return nil, fmt.Errorf("message source is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if subject == "" {
		return nil, fmt.Errorf("dlq subject is required")
	}
	return &Archiver{source: source, store: store, subject: subject}, nil
}

// Serve consumes dead-letter messages until ctx is canceled.
func (a *Archiver) Serve(ctx context.Context) error {
	messages, err := a.source.Subscribe(ctx, a.subject)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", a.subject, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			a.processMessage(ctx, msg)
		}
	}
}

// String names the service in supervisor logs.
func (a *Archiver) String() string {
	return "dlq-archiver"
}

func (a *Archiver) processMessage(ctx context.Context, msg *message.Message) {
	var payload Payload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		// A payload that cannot parse will never parse. Ack it so the
		// consumer does not redeliver garbage forever.
		logging.Error().Err(err).Str("delivery_id", msg.UUID).
			Msg("Unparseable DLQ payload dropped")
		msg.Ack()
		return
	}
	if payload.EventContext == nil {
		logging.Error().Str("delivery_id", msg.UUID).
			Msg("DLQ payload without event context dropped")
		msg.Ack()
		return
	}

	entry := &Entry{
		Key:          payload.EventContext.DedupeKey(),
		DeliveryID:   msg.UUID,
		ErrorCode:    payload.ErrorCode,
		ErrorMessage: payload.ErrorMessage,
		AttemptCount: payload.AttemptCount,
		Modality:     payload.Modality,
		Event:        payload.EventContext,
		ReceivedAt:   payload.ReceivedAt,
	}

	saveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.store.Save(saveCtx, entry); err != nil {
		logging.Error().Err(err).Str("key", entry.Key).
			Msg("Failed to archive DLQ entry, message will redeliver")
		msg.Nack()
		return
	}

	metrics.RecordDLQEntry(categoryLabel(entry.ErrorCode))
	msg.Ack()
}
