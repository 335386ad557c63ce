// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package ledger

import "time"

// Record status values. PROCESSING and FAILED are transient; COMPLETED
// and DLQ are terminal and block any further pipeline invocation for
// the key.
const (
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusDlq        = "DLQ"
)

// Decision actions returned by Begin.
const (
	// ActionProcess grants this caller exclusive ownership of the attempt.
	ActionProcess = "process"

	// ActionSkipProcessing means another worker holds a live lease.
	ActionSkipProcessing = "skip_processing"

	// ActionSkipCompleted means the record is terminal; the work is done
	// or permanently abandoned.
	ActionSkipCompleted = "skip_completed"
)

// IdempotencyRecord is the durable state for one dedupe key. It is
// created on the first Begin and mutated only through Begin,
// MarkCompleted, MarkFailed, and MarkDlq; this package never deletes
// records (retention is an external concern).
type IdempotencyRecord struct {
	Key          string `json:"key"`
	Status       string `json:"status"`
	AttemptCount int    `json:"attempt_count"`

	// Event context captured at first Begin, used by checksum dedupe to
	// narrow candidate matches.
	ObjectSize      int64  `json:"object_size,omitempty"`
	ContentType     string `json:"content_type,omitempty"`
	PipelineVersion string `json:"pipeline_version,omitempty"`
	ScopeKey        string `json:"scope_key,omitempty"`
	Checksum        string `json:"checksum,omitempty"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ExpiresAt is the lease deadline while PROCESSING; zero otherwise.
	ExpiresAt time.Time `json:"expires_at"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	// Result is set when the record reaches COMPLETED.
	Result *Result `json:"result,omitempty"`
}

// IsTerminal reports whether the record blocks further processing.
func (r *IdempotencyRecord) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusDlq
}

// Result is the summary a completed attempt leaves behind: enough for
// callers to locate the pipeline's output without re-running it.
type Result struct {
	ManifestRef string         `json:"manifest_ref,omitempty"`
	AssetID     string         `json:"asset_id,omitempty"`
	Counts      map[string]int `json:"counts,omitempty"`
	DurationMS  int64          `json:"duration_ms,omitempty"`

	// DedupeSourceKey is set when this result was copied from another
	// record by checksum dedupe, referencing the record that actually
	// ran the pipeline.
	DedupeSourceKey string `json:"dedupe_source_key,omitempty"`
}

// Decision is the outcome of Begin for one key.
type Decision struct {
	Action       string `json:"action"`
	Key          string `json:"key"`
	Status       string `json:"status"`
	AttemptCount int    `json:"attempt_count"`
}

// KeyInfo carries the event context Begin needs to create or refresh a
// record.
type KeyInfo struct {
	Key             string
	ScopeKey        string
	Checksum        string
	ObjectSize      int64
	ContentType     string
	PipelineVersion string
}

// Signature narrows a checksum dedupe lookup. Zero-valued fields do not
// narrow; a set field must match the candidate record exactly.
type Signature struct {
	Size        int64
	ContentType string
}
