// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package eventstream

import (
	"errors"
	"fmt"
)

// ErrBatcherClosed is returned when events are added after shutdown began.
var ErrBatcherClosed = errors.New("batcher is closed")

// ErrStreamNotFound is returned when the JetStream stream doesn't exist.
var ErrStreamNotFound = errors.New("stream not found")

// ErrInvalidConfig is returned when configuration is invalid.
var ErrInvalidConfig = errors.New("invalid configuration")

// BackpressureError reports that the batcher's backlog ceiling was hit.
// Callers must treat this as retriable: the event was not accepted and
// was not lost, so resubmitting after backoff is safe.
type BackpressureError struct {
	Backlog    int // events queued when the add was rejected
	BacklogMax int // configured ceiling
}

func (e *BackpressureError) Error() string {
	return fmt.Sprintf("backlog full: %d queued, max %d", e.Backlog, e.BacklogMax)
}

// IsBackpressure reports whether err is a backpressure rejection.
func IsBackpressure(err error) bool {
	var bp *BackpressureError
	return errors.As(err, &bp)
}
