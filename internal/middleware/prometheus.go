// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/semel/internal/metrics"
)

// metricsResponseWriter wraps http.ResponseWriter to capture the status
// code written by the handler. Handlers that never call WriteHeader
// implicitly return 200.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (mrw *metricsResponseWriter) WriteHeader(code int) {
	mrw.statusCode = code
	mrw.ResponseWriter.WriteHeader(code)
}

// PrometheusMetrics instruments a handler with request count, duration,
// and in-flight gauges. The endpoint label is the matched chi route
// pattern when available (e.g. /api/v1/dlq/entries/{id}), falling back
// to the raw URL path for handlers mounted outside a chi router. Using
// the pattern keeps label cardinality bounded even when callers look up
// individual DLQ entries by ID.
func PrometheusMetrics(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		metrics.TrackActiveRequest(true)
		defer metrics.TrackActiveRequest(false)

		wrapper := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(wrapper, r)

		// The route pattern is only fully populated after the handler
		// chain has run, so it must be read post-serve.
		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}

		metrics.RecordAPIRequest(
			r.Method,
			endpoint,
			strconv.Itoa(wrapper.statusCode),
			time.Since(start),
		)
	}
}
