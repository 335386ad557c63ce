// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

// Package logging provides centralized zerolog-based structured logging for Semel.
//
// The package exposes a process-global logger configured once at startup plus
// helpers for context propagation and component child loggers. JSON output is
// the production default; console output is available for development.
//
// # Quick Start
//
//	import "github.com/tomtom215/semel/internal/logging"
//
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logging.Info().Str("backend", "badger").Msg("Ledger opened")
//	logging.Error().Err(err).Int("attempt", n).Msg("Pipeline failed")
//
// # Component Loggers
//
// Create component-specific loggers with default fields:
//
//	coordLog := logging.WithComponent("coordinator")
//	coordLog.Info().Str("key", key).Msg("Begin decision")
//
// # Context-Aware Logging
//
// Request and correlation IDs set by the HTTP middleware flow through
// context; Ctx attaches them automatically:
//
//	logging.Ctx(ctx).Info().Msg("Processing request")
//
// # slog Adapter
//
// NewSlogLogger bridges zerolog to log/slog for libraries that require it
// (sutureslog in particular):
//
//	slogger := logging.NewSlogLogger()
//
// # Thread Safety
//
// All exported functions are safe for concurrent use. The global logger
// is protected by sync.RWMutex for configuration changes.
//
// # Testing
//
// Create test loggers that capture output:
//
//	var buf bytes.Buffer
//	logger := logging.NewTestLogger(&buf)
//	logger.Info().Msg("test message")
//	output := buf.String()
package logging
