// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// fakeService blocks until its context is canceled, recording that it
// ran.
type fakeService struct {
	name    string
	started atomic.Int32
}

func (f *fakeService) Serve(ctx context.Context) error {
	f.started.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeService) String() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewTree(t *testing.T) {
	t.Run("creates hierarchical supervisor tree", func(t *testing.T) {
		tree := NewTree(testLogger(), TreeConfig{
			FailureThreshold: 5,
			FailureBackoff:   time.Second,
			ShutdownTimeout:  10 * time.Second,
		})

		if tree.Root() == nil {
			t.Error("root supervisor should not be nil")
		}
	})

	t.Run("applies default values for zero config", func(t *testing.T) {
		tree := NewTree(testLogger(), TreeConfig{})

		if tree.config.FailureThreshold != 5.0 {
			t.Errorf("FailureThreshold = %f, want 5.0", tree.config.FailureThreshold)
		}
		if tree.config.FailureDecay != 30.0 {
			t.Errorf("FailureDecay = %f, want 30.0", tree.config.FailureDecay)
		}
		if tree.config.FailureBackoff != 15*time.Second {
			t.Errorf("FailureBackoff = %v, want 15s", tree.config.FailureBackoff)
		}
		if tree.config.ShutdownTimeout != 10*time.Second {
			t.Errorf("ShutdownTimeout = %v, want 10s", tree.config.ShutdownTimeout)
		}
	})
}

func TestTreeLifecycle(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   100 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	data := &fakeService{name: "fake-data"}
	messaging := &fakeService{name: "fake-messaging"}
	api := &fakeService{name: "fake-api"}
	tree.AddDataService(data)
	tree.AddMessagingService(messaging)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- tree.Serve(ctx)
	}()

	// Give all layers time to start their services.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if data.started.Load() > 0 && messaging.started.Load() > 0 && api.started.Load() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if data.started.Load() == 0 || messaging.started.Load() == 0 || api.started.Load() == 0 {
		t.Fatalf("services did not all start: data=%d messaging=%d api=%d",
			data.started.Load(), messaging.started.Load(), api.started.Load())
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want nil or context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Error("tree did not shut down in time")
	}
}

func TestTreeServeBackground(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("ServeBackground() = %v, want nil or context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Error("background tree did not stop in time")
	}
}
