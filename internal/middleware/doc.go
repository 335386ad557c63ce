// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

// Package middleware provides HTTP middleware shared by the API router.
//
// The middleware here is transport-level plumbing: request identity,
// Prometheus instrumentation, and response compression. Routing-aware
// concerns (CORS, rate limiting, security headers) live in the api
// package next to the router that configures them.
//
// # Request IDs
//
// RequestID assigns every request a unique identifier, honouring an
// inbound X-Request-ID header when the caller supplies one. The ID is
// stored in the request context and echoed in the X-Request-ID response
// header so ingest clients can correlate a 202 Accepted with the
// eventual pipeline outcome in the logs:
//
//	handler = middleware.RequestID(handler)
//
//	func myHandler(w http.ResponseWriter, r *http.Request) {
//	    reqID := middleware.GetRequestID(r.Context())
//	    log.Info().Str("request_id", reqID).Msg("handling request")
//	}
//
// # Prometheus Instrumentation
//
// PrometheusMetrics records request counts, duration histograms, and an
// in-flight gauge for every wrapped handler. The endpoint label uses the
// matched chi route pattern (for example /api/v1/dlq/entries/{id}) rather
// than the raw URL path, so per-entry DLQ lookups do not explode label
// cardinality:
//
//	r.Use(chiMiddleware(middleware.PrometheusMetrics))
//
// # Compression
//
// Compression gzips responses for clients that advertise gzip support.
// Writers are pooled to avoid per-request allocation. The /metrics
// endpoint is mounted outside the compressed route group because the
// Prometheus handler negotiates its own encoding.
package middleware
