// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package eventstream

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// SchemaVersion is the current event schema version.
// Increment this when making breaking changes to StreamEvent.
const SchemaVersion = 1

// StreamEvent describes one pending unit of media work. Events arrive
// from object-storage notifications or direct API pushes; the triple
// (container, name, generation) identifies the object version, and the
// remaining fields carry routing and dedupe context.
//
// Events are immutable once accepted: the batcher, the bus, and the
// coordinator all pass them through without modification.
type StreamEvent struct {
	// Schema version for forward/backward compatibility
	SchemaVersion int `json:"schema_version,omitempty"`

	// Object identity
	Container  string `json:"container"`
	Name       string `json:"name"`
	Generation string `json:"generation"`

	// Routing and dedupe context
	PartitionID string `json:"partition_id,omitempty"` // Tenant/partition qualifier
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"` // Object size in bytes
	Modality    string `json:"modality,omitempty"`

	// Checksum is the content fingerprint reported by the storage
	// notification (hex SHA-256 of the object bytes). Empty when the
	// source did not supply one; checksum dedupe is skipped for such
	// events.
	Checksum string `json:"checksum,omitempty"`

	// Capture metadata
	DeviceID string `json:"device_id,omitempty"`
	SiteID   string `json:"site_id,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}

// NewStreamEvent creates an event for the given object version with the
// receipt timestamp and schema version set.
func NewStreamEvent(container, name, generation string) *StreamEvent {
	return &StreamEvent{
		SchemaVersion: SchemaVersion,
		Container:     container,
		Name:          name,
		Generation:    generation,
		ReceivedAt:    time.Now().UTC(),
	}
}

// GetSchemaVersion returns the schema version, defaulting to 1 for legacy events.
func (e *StreamEvent) GetSchemaVersion() int {
	if e.SchemaVersion == 0 {
		return 1
	}
	return e.SchemaVersion
}

// DedupeKey returns the deterministic identity fingerprint for this
// event: the SHA-256 hex digest of "{container}/{name}#{generation}".
// The same object version always yields the same key, which is what
// makes redelivery detection in the ledger possible.
func (e *StreamEvent) DedupeKey() string {
	sum := sha256.Sum256([]byte(e.Container + "/" + e.Name + "#" + e.Generation))
	return hex.EncodeToString(sum[:])
}

// ScopeKey returns the checksum-dedupe scope for this event: the
// partition when one is set, otherwise the container. Byte-identical
// content is only matched within a single scope so tenants never see
// each other's results.
func (e *StreamEvent) ScopeKey() string {
	if e.PartitionID != "" {
		return e.PartitionID
	}
	return e.Container
}

// EnsureModality derives the modality from the content type when it is
// not already set. Call this before publishing.
func (e *StreamEvent) EnsureModality() {
	if e.Modality == "" {
		e.Modality = ModalityFromContentType(e.ContentType)
	}
}

// Validate checks required fields and returns an error if validation fails.
func (e *StreamEvent) Validate() error {
	if e.Container == "" {
		return &ValidationError{Field: "container", Message: "required"}
	}
	if e.Name == "" {
		return &ValidationError{Field: "name", Message: "required"}
	}
	if e.Generation == "" {
		return &ValidationError{Field: "generation", Message: "required"}
	}
	if e.Size < 0 {
		return &ValidationError{Field: "size", Message: "must not be negative"}
	}
	if e.Modality != "" && !validModality(e.Modality) {
		return &ValidationError{Field: "modality", Message: "must be one of: image, video, audio, unknown"}
	}
	return nil
}

// ModalityFromContentType maps a MIME content type to a modality.
// Unrecognized or empty types map to ModalityUnknown.
func ModalityFromContentType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return ModalityImage
	case strings.HasPrefix(contentType, "video/"):
		return ModalityVideo
	case strings.HasPrefix(contentType, "audio/"):
		return ModalityAudio
	default:
		return ModalityUnknown
	}
}

func validModality(m string) bool {
	switch m {
	case ModalityImage, ModalityVideo, ModalityAudio, ModalityUnknown:
		return true
	}
	return false
}

// BatchEnvelope is an ordered list of events serialized as one outbound
// bus message. The consumer unpacks it and feeds the coordinator one
// event at a time.
type BatchEnvelope struct {
	Events []StreamEvent `json:"events"`
}

// NewBatchEnvelope wraps events in an envelope, preserving order.
func NewBatchEnvelope(events ...StreamEvent) *BatchEnvelope {
	return &BatchEnvelope{Events: events}
}

// Len returns the number of events in the envelope.
func (b *BatchEnvelope) Len() int {
	return len(b.Events)
}

// Validate checks that the envelope carries at least one valid event.
func (b *BatchEnvelope) Validate() error {
	if len(b.Events) == 0 {
		return &ValidationError{Field: "events", Message: "at least one event required"}
	}
	for i := range b.Events {
		if err := b.Events[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Modality constants for event content classes.
const (
	// ModalityImage indicates still-image content.
	ModalityImage = "image"
	// ModalityVideo indicates video content.
	ModalityVideo = "video"
	// ModalityAudio indicates audio content.
	ModalityAudio = "audio"
	// ModalityUnknown indicates content of an unrecognized type.
	ModalityUnknown = "unknown"
)
