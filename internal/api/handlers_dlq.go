// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/semel/internal/dlq"
	"github.com/tomtom215/semel/internal/logging"
)

// DLQEntriesResponse is the paginated listing of archived entries.
type DLQEntriesResponse struct {
	Entries []*dlq.Entry `json:"entries"`
	Total   int          `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// DLQRequeueResponse reports the result of a requeue operation.
type DLQRequeueResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	RequeuedCount int    `json:"requeued_count"`
	MessageID     string `json:"message_id,omitempty"`
}

// DLQCleanupResponse reports the result of a cleanup operation.
type DLQCleanupResponse struct {
	DeletedCount int64     `json:"deleted_count"`
	OlderThan    time.Time `json:"older_than"`
}

// dlqEnabled reports whether the archive is wired in, responding 503
// when it is not so the caller can tell "disabled" from "empty".
func (h *Handler) dlqEnabled(rw *ResponseWriter) bool {
	if h.dlqAdmin.Store == nil {
		rw.ServiceUnavailable("Dead-letter archive is not enabled")
		return false
	}
	return true
}

// DLQListEntries handles GET /api/v1/dlq/entries. Supports limit
// (default 50, max 1000), offset, and error_code / modality filters.
func (h *Handler) DLQListEntries(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !h.dlqEnabled(rw) {
		return
	}

	req := DLQEntriesRequest{
		Limit:     getIntParam(r, "limit", 50),
		Offset:    getIntParam(r, "offset", 0),
		ErrorCode: r.URL.Query().Get("error_code"),
		Modality:  r.URL.Query().Get("modality"),
	}
	if !validateRequest(rw, &req) {
		return
	}

	all, err := h.dlqAdmin.Store.List(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list DLQ entries")
		rw.InternalError("Failed to list dead-letter entries")
		return
	}

	entries := all
	if req.ErrorCode != "" || req.Modality != "" {
		entries = entries[:0:0]
		for _, entry := range all {
			if req.ErrorCode != "" && entry.ErrorCode != req.ErrorCode {
				continue
			}
			if req.Modality != "" && entry.Modality != req.Modality {
				continue
			}
			entries = append(entries, entry)
		}
	}

	total := len(entries)
	start := req.Offset
	if start > total {
		start = total
	}
	end := start + req.Limit
	if end > total {
		end = total
	}

	rw.Success(DLQEntriesResponse{
		Entries: entries[start:end],
		Total:   total,
		Limit:   req.Limit,
		Offset:  req.Offset,
	})
}

// DLQGetEntry handles GET /api/v1/dlq/entries/{key}.
func (h *Handler) DLQGetEntry(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !h.dlqEnabled(rw) {
		return
	}

	key := chi.URLParam(r, "key")
	if key == "" {
		rw.BadRequest("Entry key is required")
		return
	}

	entry, err := h.dlqAdmin.Store.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, dlq.ErrEntryNotFound) {
			rw.NotFound("Dead-letter entry not found")
			return
		}
		logging.Error().Err(err).Str("key", key).Msg("Failed to load DLQ entry")
		rw.InternalError("Failed to load dead-letter entry")
		return
	}

	rw.Success(entry)
}

// DLQDeleteEntry handles DELETE /api/v1/dlq/entries/{key}. Deleting an
// entry abandons the event: the ledger record stays DLQ, so redelivery
// of the same key keeps skipping.
func (h *Handler) DLQDeleteEntry(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !h.dlqEnabled(rw) {
		return
	}

	key := chi.URLParam(r, "key")
	if key == "" {
		rw.BadRequest("Entry key is required")
		return
	}

	deleted, err := h.dlqAdmin.Store.Delete(r.Context(), key)
	if err != nil {
		logging.Error().Err(err).Str("key", key).Msg("Failed to delete DLQ entry")
		rw.InternalError("Failed to delete dead-letter entry")
		return
	}
	if !deleted {
		rw.NotFound("Dead-letter entry not found")
		return
	}

	rw.NoContent()
}

// DLQGetStats handles GET /api/v1/dlq/stats.
func (h *Handler) DLQGetStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !h.dlqEnabled(rw) {
		return
	}

	stats, err := h.dlqAdmin.Store.Stats(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to compute DLQ stats")
		rw.InternalError("Failed to compute dead-letter stats")
		return
	}

	rw.Success(stats)
}

// DLQRequeueEntry handles POST /api/v1/dlq/entries/{key}/requeue,
// sending one archived event back through the ingestion path.
func (h *Handler) DLQRequeueEntry(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !h.dlqEnabled(rw) {
		return
	}
	if h.dlqAdmin.Requeuer == nil {
		rw.ServiceUnavailable("Dead-letter requeue is not enabled")
		return
	}

	key := chi.URLParam(r, "key")
	if key == "" {
		rw.BadRequest("Entry key is required")
		return
	}

	id, err := h.dlqAdmin.Requeuer.Requeue(r.Context(), key)
	if err != nil {
		if errors.Is(err, dlq.ErrEntryNotFound) {
			rw.NotFound("Dead-letter entry not found")
			return
		}
		logging.Error().Err(err).Str("key", key).Msg("DLQ requeue failed")
		rw.InternalError("Failed to requeue dead-letter entry")
		return
	}

	rw.Success(DLQRequeueResponse{
		Success:       true,
		Message:       "Entry requeued for processing",
		RequeuedCount: 1,
		MessageID:     id,
	})
}

// DLQRequeueAll handles POST /api/v1/dlq/requeue-all. Individual
// failures leave their entries archived; the count reflects only the
// events actually republished.
func (h *Handler) DLQRequeueAll(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !h.dlqEnabled(rw) {
		return
	}
	if h.dlqAdmin.Requeuer == nil {
		rw.ServiceUnavailable("Dead-letter requeue is not enabled")
		return
	}

	count, err := h.dlqAdmin.Requeuer.RequeueAll(r.Context())
	if err != nil {
		logging.Error().Err(err).Int("requeued", count).Msg("DLQ bulk requeue aborted")
		rw.InternalError("Bulk requeue aborted")
		return
	}

	rw.Success(DLQRequeueResponse{
		Success:       true,
		Message:       "Archived entries requeued for processing",
		RequeuedCount: count,
	})
}

// DLQCleanup handles POST /api/v1/dlq/cleanup, deleting entries last
// seen before the retention window. An older_than_hours query parameter
// overrides the configured retention for this run.
func (h *Handler) DLQCleanup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !h.dlqEnabled(rw) {
		return
	}

	retention := h.dlqAdmin.Retention
	if v := r.URL.Query().Get("older_than_hours"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			rw.BadRequest("older_than_hours must be a positive integer")
			return
		}
		req := DLQCleanupRequest{OlderThanHours: hours}
		if !validateRequest(rw, &req) {
			return
		}
		retention = time.Duration(hours) * time.Hour
	}
	if retention <= 0 {
		rw.BadRequest("No retention configured; pass older_than_hours")
		return
	}

	olderThan := time.Now().UTC().Add(-retention)
	deleted, err := h.dlqAdmin.Store.DeleteExpired(r.Context(), olderThan)
	if err != nil {
		logging.Error().Err(err).Msg("DLQ cleanup failed")
		rw.InternalError("Failed to clean up dead-letter entries")
		return
	}

	rw.Success(DLQCleanupResponse{DeletedCount: deleted, OlderThan: olderThan})
}
