// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/semel/internal/coordinator"
	"github.com/tomtom215/semel/internal/eventstream"
	"github.com/tomtom215/semel/internal/ledger"
	"github.com/tomtom215/semel/internal/pipeline"
)

// fakeSink captures published envelopes without a bus.
type fakeSink struct {
	mu        sync.Mutex
	envelopes []*eventstream.BatchEnvelope
}

func (f *fakeSink) PublishEnvelope(_ context.Context, envelope *eventstream.BatchEnvelope) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.envelopes = append(f.envelopes, envelope)
	return fmt.Sprintf("msg-%d", len(f.envelopes)), nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.envelopes)
}

// fakeDeadLetters satisfies the coordinator's publisher interface.
type fakeDeadLetters struct{}

func (fakeDeadLetters) Publish(context.Context, string, string, int, *eventstream.StreamEvent) (string, error) {
	return "dl-1", nil
}

// testEnvelope decodes the APIResponse wrapper with raw data for
// per-test unmarshaling.
type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

type apiFixture struct {
	handler *Handler
	sink    *fakeSink
	server  http.Handler
}

// newFixture builds a handler over a real batcher and a real embedded
// ledger, with the pipeline stubbed by fn.
func newFixture(t *testing.T, batcherCfg eventstream.BatcherConfig, fn pipeline.Func) *apiFixture {
	t.Helper()

	batcher, err := eventstream.NewBatcher(batcherCfg)
	if err != nil {
		t.Fatalf("NewBatcher() error = %v", err)
	}
	t.Cleanup(batcher.Close)

	sink := &fakeSink{}
	ingestor, err := eventstream.NewIngestor(batcher, sink)
	if err != nil {
		t.Fatalf("NewIngestor() error = %v", err)
	}

	led, err := ledger.NewBadgerLedger(ledger.BadgerConfig{Path: t.TempDir(), TxnRetries: 5}, time.Minute)
	if err != nil {
		t.Fatalf("NewBadgerLedger() error = %v", err)
	}
	t.Cleanup(func() { _ = led.Close() })

	if fn == nil {
		fn = func(context.Context, *eventstream.StreamEvent, pipeline.Config) (*pipeline.Result, error) {
			return &pipeline.Result{ManifestRef: "manifests/ok", DurationMS: 5}, nil
		}
	}
	coord, err := coordinator.New(led, fn, fakeDeadLetters{}, coordinator.DefaultConfig())
	if err != nil {
		t.Fatalf("coordinator.New() error = %v", err)
	}

	handler, err := NewHandler(ingestor, coord, DLQAdmin{}, nil)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}

	mw := NewMiddleware(&MiddlewareConfig{RateLimitDisabled: true})
	return &apiFixture{
		handler: handler,
		sink:    sink,
		server:  NewRouter(handler, mw).Setup(),
	}
}

func testEvent(n int) eventstream.StreamEvent {
	return eventstream.StreamEvent{
		Container:   "media-prod",
		Name:        fmt.Sprintf("cam7/clip-%04d.mp4", n),
		Generation:  "1",
		ContentType: "video/mp4",
		Size:        4096,
		Modality:    eventstream.ModalityVideo,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) *testEnvelope {
	t.Helper()

	var env testEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response envelope: %v (body %q)", err, rec.Body.String())
	}
	return &env
}

func TestEnqueue_AcceptsEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eventstream.BatcherConfig{
		MaxBatchSize: 10, MaxLatency: time.Second, MaxBacklog: 20, FlushInterval: time.Second,
	}, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/events", EnqueueRequest{
		Events: []eventstream.StreamEvent{testEvent(1), testEvent(2)},
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}

	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("Success = false, want true")
	}

	var result eventstream.EnqueueResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode enqueue result: %v", err)
	}
	if result.Accepted != 2 {
		t.Errorf("Accepted = %d, want 2", result.Accepted)
	}
	if result.BatchPublished {
		t.Error("BatchPublished = true, want false below the size trigger")
	}
	if result.Queued != 2 {
		t.Errorf("Queued = %d, want 2", result.Queued)
	}
}

func TestEnqueue_SizeTriggerPublishes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eventstream.BatcherConfig{
		MaxBatchSize: 2, MaxLatency: time.Second, MaxBacklog: 20, FlushInterval: time.Second,
	}, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/events", EnqueueRequest{
		Events: []eventstream.StreamEvent{testEvent(1), testEvent(2)},
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	var result eventstream.EnqueueResult
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &result); err != nil {
		t.Fatalf("decode enqueue result: %v", err)
	}
	if !result.BatchPublished {
		t.Error("BatchPublished = false, want true at the size trigger")
	}
	if len(result.MessageIDs) != 1 {
		t.Errorf("MessageIDs = %v, want one id", result.MessageIDs)
	}
	if f.sink.count() != 1 {
		t.Errorf("published envelopes = %d, want 1", f.sink.count())
	}
}

func TestEnqueue_ValidationRejectsWholeRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eventstream.DefaultBatcherConfig(), nil)

	bad := testEvent(1)
	bad.Generation = ""
	rec := f.do(t, http.MethodPost, "/api/v1/events", EnqueueRequest{
		Events: []eventstream.StreamEvent{testEvent(2), bad},
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != ErrCodeValidationFailed {
		t.Fatalf("error = %+v, want code %s", env.Error, ErrCodeValidationFailed)
	}

	// Nothing was admitted: the status endpoint reports an empty backlog.
	status := f.do(t, http.MethodGet, "/api/v1/events/status", nil)
	var sr eventstream.StatusResult
	if err := json.Unmarshal(decodeEnvelope(t, status).Data, &sr); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if sr.Backlog != 0 {
		t.Errorf("Backlog = %d, want 0 after rejected request", sr.Backlog)
	}
}

func TestEnqueue_RejectsEmptyAndMalformed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eventstream.DefaultBatcherConfig(), nil)

	rec := f.do(t, http.MethodPost, "/api/v1/events", EnqueueRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty events: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	f.server.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want %d", rec2.Code, http.StatusBadRequest)
	}
}

func TestEnqueue_Backpressure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eventstream.BatcherConfig{
		MaxBatchSize: 10, MaxLatency: time.Second, MaxBacklog: 1, FlushInterval: time.Second,
	}, nil)

	first := f.do(t, http.MethodPost, "/api/v1/events", EnqueueRequest{
		Events: []eventstream.StreamEvent{testEvent(1)},
	})
	if first.Code != http.StatusAccepted {
		t.Fatalf("first submit: status = %d, want %d", first.Code, http.StatusAccepted)
	}

	second := f.do(t, http.MethodPost, "/api/v1/events", EnqueueRequest{
		Events: []eventstream.StreamEvent{testEvent(2)},
	})
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second submit: status = %d, want %d", second.Code, http.StatusTooManyRequests)
	}
	if got := second.Header().Get("Retry-After"); got == "" {
		t.Error("Retry-After header missing on backpressure response")
	}
	env := decodeEnvelope(t, second)
	if env.Error == nil || env.Error.Code != ErrCodeBackpressure {
		t.Errorf("error = %+v, want code %s", env.Error, ErrCodeBackpressure)
	}
}

func TestStatus_ReportsLimits(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eventstream.BatcherConfig{
		MaxBatchSize: 7, MaxLatency: 1500 * time.Millisecond, MaxBacklog: 42, FlushInterval: time.Second,
	}, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/events/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var sr eventstream.StatusResult
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &sr); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if sr.BatchMax != 7 || sr.BacklogMax != 42 || sr.BatchLatencyMS != 1500 {
		t.Errorf("Status() = %+v, want batch_max 7, backlog_max 42, latency 1500", sr)
	}
}

func pushBody(t *testing.T, events ...eventstream.StreamEvent) PushEnvelope {
	t.Helper()

	raw, err := json.Marshal(eventstream.NewBatchEnvelope(events...))
	if err != nil {
		t.Fatalf("marshal batch body: %v", err)
	}
	return PushEnvelope{
		Message: &PushMessage{
			Data:      base64.StdEncoding.EncodeToString(raw),
			MessageID: "push-1",
		},
		Subscription: "sub-1",
	}
}

func TestPush_ProcessesBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eventstream.DefaultBatcherConfig(), nil)

	rec := f.do(t, http.MethodPost, "/api/v1/push", pushBody(t, testEvent(1), testEvent(2)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp PushResponse
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &resp); err != nil {
		t.Fatalf("decode push response: %v", err)
	}
	if resp.Events != 2 {
		t.Errorf("Events = %d, want 2", resp.Events)
	}
	if resp.Outcomes[coordinator.OutcomeCompleted] != 2 {
		t.Errorf("Outcomes = %v, want 2 completed", resp.Outcomes)
	}
	if resp.MessageID != "push-1" {
		t.Errorf("MessageID = %q, want push-1", resp.MessageID)
	}

	// Redelivering the same envelope re-runs nothing: both events skip.
	again := f.do(t, http.MethodPost, "/api/v1/push", pushBody(t, testEvent(1), testEvent(2)))
	if again.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d, want %d", again.Code, http.StatusOK)
	}
	var redelivered PushResponse
	if err := json.Unmarshal(decodeEnvelope(t, again).Data, &redelivered); err != nil {
		t.Fatalf("decode redelivery response: %v", err)
	}
	if redelivered.Outcomes[coordinator.OutcomeSkipCompleted] != 2 {
		t.Errorf("redelivery outcomes = %v, want 2 %s", redelivered.Outcomes, coordinator.OutcomeSkipCompleted)
	}
}

func TestPush_ClientFormatErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eventstream.DefaultBatcherConfig(), nil)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing message", PushEnvelope{Subscription: "sub-1"}},
		{"missing data", PushEnvelope{Message: &PushMessage{MessageID: "m1"}, Subscription: "sub-1"}},
		{"invalid base64", PushEnvelope{Message: &PushMessage{Data: "!!not-base64!!"}, Subscription: "sub-1"}},
		{"data not a batch", PushEnvelope{Message: &PushMessage{
			Data: base64.StdEncoding.EncodeToString([]byte("plain text")),
		}, Subscription: "sub-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/push", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestPush_MalformedEventDropped(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eventstream.DefaultBatcherConfig(), nil)

	bad := testEvent(9)
	bad.Generation = ""
	rec := f.do(t, http.MethodPost, "/api/v1/push", pushBody(t, testEvent(1), bad))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp PushResponse
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &resp); err != nil {
		t.Fatalf("decode push response: %v", err)
	}
	if resp.Outcomes[coordinator.OutcomeCompleted] != 1 || resp.Outcomes["dropped"] != 1 {
		t.Errorf("Outcomes = %v, want 1 completed and 1 dropped", resp.Outcomes)
	}
}

func TestPush_RetriableFailureRequestsRedelivery(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eventstream.DefaultBatcherConfig(),
		func(context.Context, *eventstream.StreamEvent, pipeline.Config) (*pipeline.Result, error) {
			return nil, pipeline.NewRecoverableError("upstream connection refused", nil)
		})

	rec := f.do(t, http.MethodPost, "/api/v1/push", pushBody(t, testEvent(1)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	env := decodeEnvelope(t, rec)
	if env.Error == nil || env.Error.Code != ErrCodeInternalError {
		t.Errorf("error = %+v, want code %s", env.Error, ErrCodeInternalError)
	}
}
