// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

// Package supervisor builds the suture service tree that runs semel's
// long-lived components.
//
// The tree has three layers, each its own supervisor, so a crashing
// service restarts inside its layer without disturbing the others:
//
//   - data: the DLQ retention sweeper
//   - messaging: the batch flush loop, the envelope consumer, the DLQ
//     archiver
//   - api: the HTTP server
//
// Services implement suture.Service (Serve(ctx) error plus a String
// name). Supervision events are logged through sutureslog into the
// process logger.
package supervisor
