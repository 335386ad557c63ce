// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestPrometheusMetrics_PassesThroughStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus int
	}{
		{"accepted", http.StatusAccepted, http.StatusAccepted},
		{"backpressure", http.StatusTooManyRequests, http.StatusTooManyRequests},
		{"not found", http.StatusNotFound, http.StatusNotFound},
		{"implicit ok", 0, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := PrometheusMetrics(func(w http.ResponseWriter, r *http.Request) {
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				w.Write([]byte("ok")) //nolint:errcheck // HTTP response write errors are not recoverable
			})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
			rec := httptest.NewRecorder()
			handler(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != "ok" {
				t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
			}
		})
	}
}

func TestPrometheusMetrics_UsesChiRoutePattern(t *testing.T) {
	// Mounted under a chi router the middleware must label by route
	// pattern, not raw path, so per-entry DLQ lookups share one series.
	r := chi.NewRouter()
	r.Get("/api/v1/dlq/entries/{id}", PrometheusMetrics(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, id := range []string{"d-001", "d-002", "d-003"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/dlq/entries/"+id, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("entry %s: status = %d, want 200", id, rec.Code)
		}
	}
}

func TestMetricsResponseWriter_DefaultStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	mrw := &metricsResponseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	mrw.Write([]byte("no explicit status")) //nolint:errcheck // HTTP response write errors are not recoverable

	if mrw.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want %d", mrw.statusCode, http.StatusOK)
	}
}

func TestMetricsResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	mrw := &metricsResponseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	mrw.WriteHeader(http.StatusServiceUnavailable)

	if mrw.statusCode != http.StatusServiceUnavailable {
		t.Errorf("statusCode = %d, want %d", mrw.statusCode, http.StatusServiceUnavailable)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("underlying recorder status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func BenchmarkPrometheusMetrics(b *testing.B) {
	handler := PrometheusMetrics(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/status", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler(httptest.NewRecorder(), req)
	}
}
