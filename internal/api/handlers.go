// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/semel/internal/coordinator"
	"github.com/tomtom215/semel/internal/dlq"
	"github.com/tomtom215/semel/internal/eventstream"
	"github.com/tomtom215/semel/internal/logging"
)

// Handler holds the dependencies for the HTTP surface.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, event submission (this file)
//   - handlers_helpers.go: shared parameter parsing and validation helpers
//   - handlers_dlq.go: dead-letter admin endpoints
//   - handlers_health.go: liveness and readiness probes
type Handler struct {
	ingestor    *eventstream.Ingestor
	coordinator *coordinator.Coordinator
	dlqAdmin    DLQAdmin
	readiness   []ReadyCheck
	startTime   time.Time
}

// DLQAdmin bundles the dead-letter admin dependencies. A zero value
// disables the admin endpoints, which then report 503.
type DLQAdmin struct {
	Store     *dlq.Store
	Requeuer  *dlq.Requeuer
	Retention time.Duration // default window for the cleanup endpoint
}

// NewHandler creates the API handler. The ingestor and coordinator are
// required; the DLQ admin bundle may be empty.
func NewHandler(ingestor *eventstream.Ingestor, coord *coordinator.Coordinator, admin DLQAdmin, readiness []ReadyCheck) (*Handler, error) {
	if ingestor == nil {
		return nil, fmt.Errorf("ingestor is required")
	}
	if coord == nil {
		return nil, fmt.Errorf("coordinator is required")
	}

	return &Handler{
		ingestor:    ingestor,
		coordinator: coord,
		dlqAdmin:    admin,
		readiness:   readiness,
		startTime:   time.Now(),
	}, nil
}

// EnqueueRequest is the direct-submission body: one or more events to be
// batched and processed.
type EnqueueRequest struct {
	Events []eventstream.StreamEvent `json:"events"`
}

// eventValidationDetail names the offending event when a submission is
// rejected, so a caller batching many events can find the bad one.
type eventValidationDetail struct {
	Index int    `json:"index"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error"`
}

// Enqueue handles POST /api/v1/events. Events are validated up front; a
// single malformed event rejects the whole request before anything is
// buffered, so a 400 never has partial effects. A full backlog returns
// 429 with the current depth so producers can back off and resubmit.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("Invalid request body: " + err.Error())
		return
	}
	if len(req.Events) == 0 {
		rw.BadRequest("At least one event is required")
		return
	}

	var invalid []eventValidationDetail
	for i := range req.Events {
		if err := req.Events[i].Validate(); err != nil {
			invalid = append(invalid, eventValidationDetail{
				Index: i,
				Name:  req.Events[i].Name,
				Error: err.Error(),
			})
		}
	}
	if len(invalid) > 0 {
		rw.ValidationError("One or more events failed validation", invalid)
		return
	}

	result, err := h.ingestor.Enqueue(r.Context(), req.Events)
	if err != nil {
		if eventstream.IsBackpressure(err) {
			rw.Backpressure("Event backlog is full, retry with backoff", result)
			return
		}
		logging.Error().Err(err).Int("events", len(req.Events)).
			Msg("Enqueue failed after admission")
		rw.InternalError("Failed to enqueue events")
		return
	}

	rw.Accepted(result)
}

// Status handles GET /api/v1/events/status, reporting the batcher's
// current depth and configured limits.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(h.ingestor.Status())
}

// PushEnvelope is the push-delivery wrapper: a base64-encoded batch body
// with transport metadata.
type PushEnvelope struct {
	Message      *PushMessage `json:"message"`
	Subscription string       `json:"subscription"`
}

// PushMessage carries the base64 batch body and delivery attributes.
type PushMessage struct {
	Data       string            `json:"data"`
	Attributes map[string]string `json:"attributes,omitempty"`
	MessageID  string            `json:"message_id,omitempty"`
}

// PushResponse summarizes what happened to each event in a pushed batch.
type PushResponse struct {
	MessageID string         `json:"message_id,omitempty"`
	Events    int            `json:"events"`
	Outcomes  map[string]int `json:"outcomes"`
}

// Push handles POST /api/v1/push: the push-delivery ingress. The body
// wraps a base64-encoded batch body; a missing message or data field, or
// data that is not valid base64, is a client-format error and returns
// 400 so the sender drops the malformed delivery instead of retrying it.
//
// Decoded events run through the coordinator one at a time. Malformed
// events are dropped (the envelope is still acknowledged with 200), but
// a retriable failure returns 500 so the push sender redelivers the
// whole envelope; the ledger makes that redelivery safe because already
// completed events skip.
func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var envelope PushEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		rw.BadRequest("Invalid push envelope JSON: " + err.Error())
		return
	}
	if envelope.Message == nil {
		rw.BadRequest("Push envelope is missing the message field")
		return
	}
	if envelope.Message.Data == "" {
		rw.BadRequest("Push message is missing the data field")
		return
	}

	body, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		rw.BadRequest("Push message data is not valid base64")
		return
	}

	var batch eventstream.BatchEnvelope
	if err := json.Unmarshal(body, &batch); err != nil {
		rw.BadRequest("Push message data is not a valid batch body")
		return
	}

	resp := &PushResponse{
		MessageID: envelope.Message.MessageID,
		Events:    len(batch.Events),
		Outcomes:  make(map[string]int),
	}

	for i := range batch.Events {
		outcome, perr := h.coordinator.Process(r.Context(), &batch.Events[i])
		if perr != nil {
			var verr *eventstream.ValidationError
			if errors.As(perr, &verr) {
				logging.Warn().Err(perr).
					Str("name", batch.Events[i].Name).
					Str("push_message_id", envelope.Message.MessageID).
					Msg("Malformed event in pushed batch dropped")
				resp.Outcomes["dropped"]++
				continue
			}
			// Redelivery of the whole envelope is safe: events that
			// already completed will skip at the ledger.
			logging.Error().Err(perr).
				Str("push_message_id", envelope.Message.MessageID).
				Int("event_index", i).
				Msg("Pushed batch processing failed, requesting redelivery")
			rw.InternalError("Event processing failed, redeliver the envelope")
			return
		}
		resp.Outcomes[outcome.Action]++
	}

	rw.Success(resp)
}
