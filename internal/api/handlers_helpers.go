// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package api

import (
	"net/http"
	"strconv"

	"github.com/tomtom215/semel/internal/validation"
)

// validateRequest validates a struct with go-playground/validator tags
// and writes the VALIDATION_ERROR response on failure. Returns true when
// the request is valid and handling should continue.
func validateRequest(rw *ResponseWriter, v interface{}) bool {
	verr := validation.ValidateStruct(v)
	if verr == nil {
		return true
	}

	apiErr := verr.ToAPIError()
	rw.ErrorWithDetails(http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
	return false
}

// getIntParam extracts an integer query parameter, falling back to the
// default when the parameter is absent or not a number. Range checks
// belong to the request structs, not here.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}
