// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package coordinator

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, expected 5", cfg.MaxAttempts)
	}
	if cfg.Pipeline.Version != "v1" {
		t.Errorf("Pipeline.Version = %q, expected v1", cfg.Pipeline.Version)
	}
	if cfg.Pipeline.Timeout != 5*time.Minute {
		t.Errorf("Pipeline.Timeout = %v, expected 5m", cfg.Pipeline.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"single attempt allowed", func(c *Config) { c.MaxAttempts = 1 }, false},
		{"zero max attempts", func(c *Config) { c.MaxAttempts = 0 }, true},
		{"negative max attempts", func(c *Config) { c.MaxAttempts = -1 }, true},
		{"empty pipeline version", func(c *Config) { c.Pipeline.Version = "" }, true},
		{"zero pipeline timeout", func(c *Config) { c.Pipeline.Timeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
