// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/semel/internal/middleware"
)

// Router wires the handler methods into the chi route tree.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a router over the given handler and middleware.
func NewRouter(handler *Handler, mw *Middleware) *Router {
	if mw == nil {
		mw = NewMiddleware(nil)
	}
	return &Router{handler: handler, middleware: mw}
}

// chiMiddleware adapts http.HandlerFunc middleware to chi's
// func(http.Handler) http.Handler form so it can be passed to r.Use().
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	// Applied to ALL routes in order
	r.Use(RequestIDWithLogging())         // Add X-Request-ID header with logging context
	r.Use(chimiddleware.RealIP)           // Extract real IP from X-Forwarded-For
	r.Use(chimiddleware.Recoverer)        // Recover from panics
	r.Use(router.middleware.CORS())       // CORS must be global to handle OPTIONS preflight

	// ========================
	// Health Endpoints
	// ========================
	// Permissive rate limiting so monitoring can probe frequently
	r.Group(func(r chi.Router) {
		r.Use(router.middleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/healthz", router.handler.HealthLive)
		r.Get("/readyz", router.handler.HealthReady)
	})

	// ========================
	// Event Submission
	// ========================
	// Producer-facing ingestion: direct submissions and push deliveries.
	// Admission control is the batcher's backpressure, not the limiter.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimitIngest())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Post("/events", router.handler.Enqueue)
		r.Get("/events/status", router.handler.Status)
		r.Post("/push", router.handler.Push)
	})

	// ========================
	// Dead-Letter Admin
	// ========================
	// Operator actions, strictly rate limited
	r.Route("/api/v1/dlq", func(r chi.Router) {
		r.Use(router.middleware.RateLimitAdmin())
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		// Entry listings carry full archived envelopes; gzip pays for
		// itself on these responses.
		r.Use(middleware.Compression)

		r.Get("/entries", router.handler.DLQListEntries)
		r.Get("/entries/{key}", router.handler.DLQGetEntry)
		r.Delete("/entries/{key}", router.handler.DLQDeleteEntry)
		r.Post("/entries/{key}/requeue", router.handler.DLQRequeueEntry)
		r.Post("/requeue-all", router.handler.DLQRequeueAll)
		r.Post("/cleanup", router.handler.DLQCleanup)
		r.Get("/stats", router.handler.DLQGetStats)
	})

	// ========================
	// Observability
	// ========================
	r.Handle("/metrics", promhttp.Handler())

	return r
}
