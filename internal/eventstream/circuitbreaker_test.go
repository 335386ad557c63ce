// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package eventstream

import (
	"errors"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"
)

func TestNewCircuitBreaker(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("test-breaker")
	cb := NewCircuitBreaker(cfg)

	if cb == nil {
		t.Fatal("NewCircuitBreaker() returned nil")
	}
	if cb.Name() != "test-breaker" {
		t.Errorf("Name() = %s, want test-breaker", cb.Name())
	}
	if got := CircuitBreakerState(cb); got != "closed" {
		t.Errorf("initial state = %s, want closed", got)
	}
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("failing-publisher")
	cfg.FailureThreshold = 3
	cb := NewCircuitBreaker(cfg)

	failure := errors.New("publish refused")
	for i := 0; i < 3; i++ {
		if _, err := cb.Execute(func() (interface{}, error) {
			return nil, failure
		}); !errors.Is(err, failure) {
			t.Fatalf("attempt %d: error = %v, want the publish failure", i+1, err)
		}
	}

	if got := CircuitBreakerState(cb); got != "open" {
		t.Fatalf("state after %d failures = %s, want open", cfg.FailureThreshold, got)
	}

	// An open breaker rejects without invoking the wrapped call.
	invoked := false
	_, err := cb.Execute(func() (interface{}, error) {
		invoked = true
		return nil, nil
	})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("open breaker error = %v, want %v", err, gobreaker.ErrOpenState)
	}
	if invoked {
		t.Error("wrapped call ran while the breaker was open")
	}
}

func TestCircuitBreakerStaysClosedOnSuccess(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("healthy-publisher")
	cfg.FailureThreshold = 2
	cb := NewCircuitBreaker(cfg)

	for i := 0; i < 10; i++ {
		result, err := cb.Execute(func() (interface{}, error) {
			return "ack", nil
		})
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if result != "ack" {
			t.Fatalf("Execute() = %v, want ack", result)
		}
	}

	if got := CircuitBreakerState(cb); got != "closed" {
		t.Errorf("state after successes = %s, want closed", got)
	}
}
