// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/semel/internal/eventstream"
	"github.com/tomtom215/semel/internal/pipeline"
)

// attachProcessor returns the media pipeline this deployment runs behind
// the coordinator. This is the integration point for real extraction
// pipelines: replace the returned Processor with one that dispatches to
// your transcoder, transcriber, or embedder and classifies its failures
// with pipeline.NewRecoverableError / pipeline.NewPermanentError.
//
// The built-in processor only acknowledges coordination: it synthesizes
// a manifest reference and asset id from the event identity, so a bare
// deployment still exercises the full ledger lifecycle end to end.
func attachProcessor() pipeline.Processor {
	return pipeline.Func(func(ctx context.Context, event *eventstream.StreamEvent, cfg pipeline.Config) (*pipeline.Result, error) {
		if err := ctx.Err(); err != nil {
			return nil, pipeline.NewRecoverableError("pipeline canceled before start", err)
		}

		start := time.Now()
		key := event.DedupeKey()

		return &pipeline.Result{
			ManifestRef: fmt.Sprintf("manifests/%s/%s.json", event.ScopeKey(), key),
			AssetID:     key[:16],
			Counts:      map[string]int{"events": 1},
			DurationMS:  time.Since(start).Milliseconds(),
		}, nil
	})
}
