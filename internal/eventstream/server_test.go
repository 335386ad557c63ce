// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package eventstream

import (
	"context"
	"strings"
	"testing"
	"time"
)

// startTestServer boots an embedded server on a random port with
// JetStream storage in a per-test temp dir.
func startTestServer(t *testing.T) *EmbeddedServer {
	t.Helper()

	srv, err := NewEmbeddedServer(&ServerConfig{
		Host:              "127.0.0.1",
		Port:              -1,
		StoreDir:          t.TempDir(),
		JetStreamMaxMem:   64 << 20,
		JetStreamMaxStore: 256 << 20,
	})
	if err != nil {
		t.Fatalf("NewEmbeddedServer() error = %v", err)
	}
	return srv
}

func TestEmbeddedServerLifecycle(t *testing.T) {
	srv := startTestServer(t)

	if !srv.IsRunning() {
		t.Error("IsRunning() = false after startup")
	}
	if !srv.JetStreamEnabled() {
		t.Error("JetStreamEnabled() = false, JetStream must be on for streams and the KV ledger")
	}
	if url := srv.ClientURL(); !strings.HasPrefix(url, "nats://") {
		t.Errorf("ClientURL() = %q, want a nats:// URL", url)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}

func TestEmbeddedServerShutdownTwice(t *testing.T) {
	srv := startTestServer(t)

	ctx := context.Background()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown() error = %v", err)
	}
	// A second shutdown must not panic or block.
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}
