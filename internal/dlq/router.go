// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package dlq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/semel/internal/eventstream"
	"github.com/tomtom215/semel/internal/logging"
)

// Payload is the dead-letter message body. It is self-contained: the
// error context and the full original event travel together, so a human
// or a replay tool needs no other system to diagnose the failure.
type Payload struct {
	ErrorCode    string                   `json:"error_code"`
	ErrorMessage string                   `json:"error_message"`
	AttemptCount int                      `json:"attempt_count"`
	Modality     string                   `json:"modality"`
	EventContext *eventstream.StreamEvent `json:"event_context"`
	ReceivedAt   time.Time                `json:"received_at"`
}

// MessagePublisher is the publishing capability the router needs.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
}

// Router sends dead-letter payloads to the out-of-band subject. The
// decision of which failures dead-letter belongs to the coordinator; the
// router only packages and delivers.
type Router struct {
	publisher MessagePublisher
	subject   string
}

// NewRouter creates a dead-letter router publishing to the given subject.
func NewRouter(publisher MessagePublisher, subject string) (*Router, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if subject == "" {
		return nil, fmt.Errorf("dlq subject is required")
	}
	return &Router{publisher: publisher, subject: subject}, nil
}

// Publish serializes a Payload for the event and sends it to the
// dead-letter subject, returning the delivery id.
func (r *Router) Publish(ctx context.Context, errorCode, errorMessage string, attemptCount int, event *eventstream.StreamEvent) (string, error) {
	if event == nil {
		return "", fmt.Errorf("event is required")
	}

	payload := &Payload{
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
		AttemptCount: attemptCount,
		Modality:     event.Modality,
		EventContext: event,
		ReceivedAt:   event.ReceivedAt,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal dlq payload: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), data)
	msg.Metadata.Set("error_code", errorCode)
	msg.Metadata.Set("dedupe_key", event.DedupeKey())

	if err := r.publisher.Publish(ctx, r.subject, msg); err != nil {
		return "", fmt.Errorf("publish dlq payload: %w", err)
	}

	logging.Warn().
		Str("key", event.DedupeKey()).
		Str("error_code", errorCode).
		Int("attempt_count", attemptCount).
		Str("delivery_id", msg.UUID).
		Msg("Event dead-lettered")

	return msg.UUID, nil
}

// categoryLabel maps an error code to its metrics label.
func categoryLabel(code string) string {
	if code == "" {
		return "unknown"
	}
	return strings.ToLower(code)
}
