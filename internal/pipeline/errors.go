// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package pipeline

import (
	"errors"
	"strings"
)

// ErrorCategory categorizes pipeline failures for ledger records, DLQ
// routing, and metrics labels.
type ErrorCategory int

const (
	// ErrorCategoryUnknown is the default category for unclassified errors.
	ErrorCategoryUnknown ErrorCategory = iota
	// ErrorCategoryConnection indicates network or connection failures.
	ErrorCategoryConnection
	// ErrorCategoryTimeout indicates operation timeout.
	ErrorCategoryTimeout
	// ErrorCategoryCodec indicates undecodable or unsupported media content.
	ErrorCategoryCodec
	// ErrorCategoryValidation indicates data validation failures.
	ErrorCategoryValidation
	// ErrorCategoryStorage indicates object storage access failures.
	ErrorCategoryStorage
	// ErrorCategoryCapacity indicates resource capacity issues.
	ErrorCategoryCapacity
)

// String returns the string representation of the error category.
func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryConnection:
		return "connection"
	case ErrorCategoryTimeout:
		return "timeout"
	case ErrorCategoryCodec:
		return "codec"
	case ErrorCategoryValidation:
		return "validation"
	case ErrorCategoryStorage:
		return "storage"
	case ErrorCategoryCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// RecoverableError represents a pipeline failure worth retrying.
// These errors are typically transient (network issues, timeouts, an
// overloaded downstream service).
type RecoverableError struct {
	Message  string
	Cause    error
	Category ErrorCategory
}

// NewRecoverableError creates a new recoverable error, deriving the
// category from the message text.
func NewRecoverableError(message string, cause error) *RecoverableError {
	return &RecoverableError{
		Message:  message,
		Cause:    cause,
		Category: categorizeMessage(message),
	}
}

// Error implements the error interface.
func (e *RecoverableError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *RecoverableError) Unwrap() error {
	return e.Cause
}

// PermanentError represents a pipeline failure that retrying cannot fix.
// The content itself is the problem (unsupported format, corrupt payload),
// so the event dead-letters immediately regardless of the attempt budget.
type PermanentError struct {
	Message  string
	Cause    error
	Category ErrorCategory
}

// NewPermanentError creates a new permanent error, deriving the category
// from the message text. Unclassifiable permanent errors default to the
// validation category.
func NewPermanentError(message string, cause error) *PermanentError {
	category := categorizeMessage(message)
	if category == ErrorCategoryUnknown {
		category = ErrorCategoryValidation
	}
	return &PermanentError{
		Message:  message,
		Cause:    cause,
		Category: category,
	}
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// IsRecoverable checks if the error is recoverable.
func IsRecoverable(err error) bool {
	var recErr *RecoverableError
	return errors.As(err, &recErr)
}

// IsPermanent checks if the error is permanent (non-retryable).
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// ErrorCode returns the stable code recorded on ledger records and DLQ
// payloads for err: the upper-cased category for classified errors, INTERNAL
// for anything else.
func ErrorCode(err error) string {
	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return strings.ToUpper(permErr.Category.String())
	}
	var recErr *RecoverableError
	if errors.As(err, &recErr) {
		return strings.ToUpper(recErr.Category.String())
	}
	return "INTERNAL"
}

// categorizeMessage attempts to categorize an error based on its message.
// Codec keywords are checked before validation so "corrupt frame data" lands
// in codec rather than the generic validation bucket.
func categorizeMessage(message string) ErrorCategory {
	switch {
	case containsAny(message, "connection", "connect", "refused", "reset", "network", "unreachable"):
		return ErrorCategoryConnection
	case containsAny(message, "timeout", "deadline", "timed out"):
		return ErrorCategoryTimeout
	case containsAny(message, "codec", "decode", "unsupported", "corrupt", "truncated"):
		return ErrorCategoryCodec
	case containsAny(message, "invalid", "validation", "malformed", "schema", "parse"):
		return ErrorCategoryValidation
	case containsAny(message, "storage", "bucket", "blob", "not found"):
		return ErrorCategoryStorage
	case containsAny(message, "capacity", "full", "limit", "exceeded", "quota", "too large"):
		return ErrorCategoryCapacity
	default:
		return ErrorCategoryUnknown
	}
}

// containsAny checks if the string contains any of the substrings,
// ignoring case.
func containsAny(s string, substrs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
