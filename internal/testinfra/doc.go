// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

// Package testinfra provides test infrastructure for integration testing
// with containers.
//
// This package uses testcontainers-go to manage Docker containers for
// integration tests, providing realistic broker environments that closely
// match production. Unit tests use the embedded NATS server instead; the
// containers here exist for runs against a real standalone broker,
// including restart and reconnect behavior the embedded server cannot
// exhibit.
//
// # NATS Container
//
// NATSContainer provides a JetStream-enabled NATS instance:
//
//	func TestPublishConsume(t *testing.T) {
//	    ctx := context.Background()
//	    nats, err := testinfra.NewNATSContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer nats.Terminate(ctx)
//
//	    // Use nats.URL to connect publishers and subscribers.
//	}
//
// # CI Considerations
//
// These tests require Docker and run only with the integration build tag:
//
//	go test -tags integration ./...
//
// Tests skip gracefully when Docker is unavailable. First run may need
// to download the container image; subsequent runs use the cache.
package testinfra
