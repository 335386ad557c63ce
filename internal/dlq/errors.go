// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package dlq

import "errors"

// ErrEntryNotFound is returned when no dead-letter entry exists for the
// requested key.
var ErrEntryNotFound = errors.New("dlq entry not found")
