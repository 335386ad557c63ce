// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package ledger

import "errors"

var (
	// ErrRecordNotFound indicates no record exists for the requested key.
	ErrRecordNotFound = errors.New("ledger record not found")

	// ErrTxnConflict indicates a read-modify-write lost its race on every
	// permitted retry. Callers should treat this as a transient
	// infrastructure fault and retry the whole operation.
	ErrTxnConflict = errors.New("ledger transaction conflict")

	// ErrUnknownBackend indicates the configured backend name matches no
	// known implementation.
	ErrUnknownBackend = errors.New("unknown ledger backend")
)
