// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/semel/internal/logging"
)

// ReadyCheck probes one dependency for the readiness endpoint.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthLive handles GET /healthz. Returns 200 whenever the process is
// alive, regardless of dependency state, for liveness probes.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":          true,
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles GET /readyz. Runs every registered dependency
// check and returns 503 with per-dependency results when any fails, so
// traffic is withheld until the ledger and bus are reachable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]bool, len(h.readiness))
	ready := true
	for _, probe := range h.readiness {
		err := probe.Check(ctx)
		checks[probe.Name] = err == nil
		if err != nil {
			ready = false
			logging.Warn().Err(err).Str("check", probe.Name).
				Msg("Readiness check failed")
		}
	}

	rw := NewResponseWriter(w, r)
	if !ready {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"Service is not ready", checks)
		return
	}
	rw.Success(map[string]interface{}{
		"ready":          true,
		"checks":         checks,
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}
