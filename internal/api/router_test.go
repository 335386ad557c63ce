// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/tomtom215/semel/internal/eventstream"
)

func TestRouter_RouteTable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eventstream.DefaultBatcherConfig(), nil)

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/api/v1/events/status", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/nope", http.StatusNotFound},
		{http.MethodDelete, "/api/v1/events/status", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRouter_MetricsBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eventstream.DefaultBatcherConfig(), nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "# HELP") {
		t.Error("metrics body missing Prometheus exposition text")
	}
}

func TestRouter_ResponsesCarryRequestID(t *testing.T) {
	t.Parallel()

	f := newFixture(t, eventstream.DefaultBatcherConfig(), nil)

	rec := f.do(t, http.MethodGet, "/api/v1/events/status", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing from routed response")
	}
}
