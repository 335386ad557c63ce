// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package ledger

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"Backend", cfg.Backend, BackendBadger},
		{"ProcessingTTL", cfg.ProcessingTTL, 10 * time.Minute},
		{"MaxAttempts", cfg.MaxAttempts, 5},
		{"Badger.Path", cfg.Badger.Path, "./data/ledger"},
		{"Badger.TxnRetries", cfg.Badger.TxnRetries, 5},
		{"NatsKV.Bucket", cfg.NatsKV.Bucket, "SEMEL_LEDGER"},
		{"NatsKV.TxnRetries", cfg.NatsKV.TxnRetries, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, expected %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid natskv", func(c *Config) { c.Backend = BackendNatsKV }, false},
		{"unknown backend", func(c *Config) { c.Backend = "redis" }, true},
		{"zero ttl", func(c *Config) { c.ProcessingTTL = 0 }, true},
		{"negative ttl", func(c *Config) { c.ProcessingTTL = -time.Second }, true},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
