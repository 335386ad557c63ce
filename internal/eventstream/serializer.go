// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package eventstream

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Serializer handles envelope encoding/decoding for bus messages.
type Serializer struct{}

// NewSerializer creates a new serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Marshal converts an envelope to JSON bytes.
func (s *Serializer) Marshal(envelope *BatchEnvelope) ([]byte, error) {
	if err := envelope.Validate(); err != nil {
		return nil, fmt.Errorf("validate envelope: %w", err)
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	return data, nil
}

// Unmarshal converts JSON bytes to an envelope.
func (s *Serializer) Unmarshal(data []byte) (*BatchEnvelope, error) {
	var envelope BatchEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	return &envelope, nil
}

// SerializeEnvelope is a convenience function that marshals an envelope to JSON.
func SerializeEnvelope(envelope *BatchEnvelope) ([]byte, error) {
	return NewSerializer().Marshal(envelope)
}

// DeserializeEnvelope is a convenience function that unmarshals JSON to an envelope.
func DeserializeEnvelope(data []byte) (*BatchEnvelope, error) {
	return NewSerializer().Unmarshal(data)
}
