// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package api

// Request structs with go-playground/validator tags. Query parameters
// are parsed leniently (a non-numeric value falls back to the default)
// and then range-checked here, so an out-of-range request gets a 400
// with the offending field named instead of a silently clamped result.

// DLQEntriesRequest represents the validated query parameters for the
// dead-letter entries listing.
type DLQEntriesRequest struct {
	Limit     int    `validate:"min=1,max=1000"`
	Offset    int    `validate:"min=0,max=1000000"`
	ErrorCode string `validate:"omitempty,max=128"`
	Modality  string `validate:"omitempty,modality"`
}

// DLQCleanupRequest represents the validated query parameters for the
// dead-letter cleanup endpoint. OlderThanHours overrides the configured
// retention window for a single run; the cap is ten years.
type DLQCleanupRequest struct {
	OlderThanHours int `validate:"omitempty,min=1,max=87600"`
}
