// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

// Package api provides the HTTP surface: event submission, push
// delivery, batcher status, the dead-letter admin endpoints, health
// probes, and Prometheus metrics, routed through chi with CORS,
// per-endpoint rate limits, security headers, and request-id logging.
//
// Every JSON endpoint responds with one envelope shape so clients can
// branch on a stable contract:
//
//	{"success": true,  "data": {...}, "meta": {...}}
//	{"success": false, "error": {"code": "...", "message": "..."}, "meta": {...}}
//
// The three caller-visible failure classes stay distinguishable by
// status and code: 429 BACKPRESSURE means the backlog ceiling was hit
// and the same request is safe to resubmit after backoff; 400
// VALIDATION_FAILED means the request itself is malformed and a retry
// cannot succeed; 500 INTERNAL_ERROR means a pipeline or ledger fault
// and the whole request should be retried.
package api
