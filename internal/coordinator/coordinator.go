// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/semel/internal/eventstream"
	"github.com/tomtom215/semel/internal/ledger"
	"github.com/tomtom215/semel/internal/logging"
	"github.com/tomtom215/semel/internal/metrics"
	"github.com/tomtom215/semel/internal/pipeline"
)

// ErrorCodeMaxAttempts marks records dead-lettered for exhausting the
// attempt budget rather than for the nature of the last error.
const ErrorCodeMaxAttempts = "MAX_ATTEMPTS"

// Outcome labels. Skip outcomes reuse the ledger's decision action
// strings so logs and metrics share one vocabulary.
const (
	OutcomeCompleted      = "completed"
	OutcomeDeduplicated   = "deduplicated"
	OutcomeSkipProcessing = ledger.ActionSkipProcessing
	OutcomeSkipCompleted  = ledger.ActionSkipCompleted
	OutcomeFailed         = "failed"
	OutcomeDeadLettered   = "dead_lettered"
	OutcomeRejected       = "rejected"
)

// DeadLetterPublisher is the escalation capability the coordinator
// needs from the dead-letter router.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, errorCode, errorMessage string, attemptCount int, event *eventstream.StreamEvent) (string, error)
}

// Outcome reports what one Process call did with an event.
type Outcome struct {
	Action       string         `json:"action"`
	Key          string         `json:"key"`
	AttemptCount int            `json:"attempt_count"`
	Result       *ledger.Result `json:"result,omitempty"`
}

// Coordinator drives one event at a time through the decision sequence
// described in the package documentation.
type Coordinator struct {
	ledger    ledger.Ledger
	processor pipeline.Processor
	router    DeadLetterPublisher
	config    Config
}

// New creates a coordinator. All three collaborators are required.
func New(led ledger.Ledger, processor pipeline.Processor, router DeadLetterPublisher, cfg Config) (*Coordinator, error) {
	if led == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if router == nil {
		return nil, fmt.Errorf("dead-letter router is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid coordinator config: %w", err)
	}

	return &Coordinator{
		ledger:    led,
		processor: processor,
		router:    router,
		config:    cfg,
	}, nil
}

// Process runs one event through the full decision sequence and returns
// what happened. A nil error with an Outcome covers every handled case,
// including dead-lettering. A non-nil error means this attempt did not
// reach a terminal state: validation errors preceded any ledger
// mutation, and everything else is retriable by re-submitting or by
// envelope redelivery.
func (c *Coordinator) Process(ctx context.Context, event *eventstream.StreamEvent) (*Outcome, error) {
	if event == nil {
		return nil, &eventstream.ValidationError{Field: "event", Message: "required"}
	}
	if err := event.Validate(); err != nil {
		metrics.RecordEventOutcome(OutcomeRejected)
		return nil, err
	}

	key := event.DedupeKey()
	decision, err := c.ledger.Begin(ctx, ledger.KeyInfo{
		Key:             key,
		ScopeKey:        event.ScopeKey(),
		Checksum:        event.Checksum,
		ObjectSize:      event.Size,
		ContentType:     event.ContentType,
		PipelineVersion: c.config.Pipeline.Version,
	})
	if err != nil {
		return nil, pipeline.NewRecoverableError("ledger begin failed", err)
	}

	switch decision.Action {
	case ledger.ActionSkipCompleted, ledger.ActionSkipProcessing:
		metrics.RecordEventOutcome(decision.Action)
		logging.Debug().
			Str("key", key).
			Str("action", decision.Action).
			Str("status", decision.Status).
			Msg("Event skipped")
		return &Outcome{Action: decision.Action, Key: key, AttemptCount: decision.AttemptCount}, nil
	}

	if outcome, err := c.dedupeByChecksum(ctx, decision, event); outcome != nil || err != nil {
		return outcome, err
	}

	return c.runPipeline(ctx, decision, event)
}

// ConsumeEvent adapts Process to the envelope consumer's contract.
// Malformed events ack: redelivery cannot repair them, and dropping
// them is logged. Retriable faults return non-nil so the envelope
// nacks and redelivers; the ledger turns the replay of its already
// handled events into skips.
func (c *Coordinator) ConsumeEvent(ctx context.Context, event *eventstream.StreamEvent) error {
	_, err := c.Process(ctx, event)
	if err == nil {
		return nil
	}

	var vErr *eventstream.ValidationError
	if errors.As(err, &vErr) {
		name := ""
		if event != nil {
			name = event.Name
		}
		logging.Error().Err(err).Str("name", name).
			Msg("Malformed event in batch dropped")
		return nil
	}
	return err
}

// dedupeByChecksum short-circuits processing when a byte-identical
// object already completed in the same scope. Returns (nil, nil) when
// processing should proceed. A lookup fault falls through to normal
// processing; only the MarkCompleted on a hit can surface an error.
func (c *Coordinator) dedupeByChecksum(ctx context.Context, decision *ledger.Decision, event *eventstream.StreamEvent) (*Outcome, error) {
	if event.Checksum == "" {
		return nil, nil
	}

	key := decision.Key
	start := time.Now()
	match, err := c.ledger.FindCompletedByChecksum(ctx, event.ScopeKey(), event.Checksum, ledger.Signature{
		Size:        event.Size,
		ContentType: event.ContentType,
	})
	if err != nil {
		metrics.RecordDedupeLookup(false, time.Since(start))
		logging.Warn().Err(err).Str("key", key).
			Msg("Checksum dedupe lookup failed, processing normally")
		return nil, nil
	}
	metrics.RecordDedupeLookup(match != nil, time.Since(start))
	if match == nil {
		return nil, nil
	}

	result := ledger.Result{DedupeSourceKey: match.Key}
	if match.Result != nil {
		result = *match.Result
		result.DedupeSourceKey = match.Key
	}
	if err := c.ledger.MarkCompleted(ctx, key, &result); err != nil {
		return nil, pipeline.NewRecoverableError("ledger mark completed failed", err)
	}

	metrics.RecordEventOutcome(OutcomeDeduplicated)
	logging.Info().
		Str("key", key).
		Str("source_key", match.Key).
		Str("checksum", event.Checksum).
		Msg("Byte-identical content already processed, result copied")
	return &Outcome{Action: OutcomeDeduplicated, Key: key, AttemptCount: decision.AttemptCount, Result: &result}, nil
}

// runPipeline invokes the external pipeline for an admitted attempt and
// translates its result into ledger transitions. The pipeline call runs
// under its own deadline; ledger marks use the parent context so a
// pipeline timeout does not prevent recording the failure.
func (c *Coordinator) runPipeline(ctx context.Context, decision *ledger.Decision, event *eventstream.StreamEvent) (*Outcome, error) {
	key := decision.Key

	pctx := ctx
	if c.config.Pipeline.Timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, c.config.Pipeline.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := c.processor.Process(pctx, event, c.config.Pipeline)
	metrics.RecordPipelineDuration(time.Since(start))

	if err == nil {
		summary := &ledger.Result{}
		if result != nil {
			summary = &ledger.Result{
				ManifestRef: result.ManifestRef,
				AssetID:     result.AssetID,
				Counts:      result.Counts,
				DurationMS:  result.DurationMS,
			}
		}
		if err := c.ledger.MarkCompleted(ctx, key, summary); err != nil {
			return nil, pipeline.NewRecoverableError("ledger mark completed failed", err)
		}
		metrics.RecordEventOutcome(OutcomeCompleted)
		logging.Info().
			Str("key", key).
			Str("modality", event.Modality).
			Int("attempt_count", decision.AttemptCount).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("Event processed")
		return &Outcome{Action: OutcomeCompleted, Key: key, AttemptCount: decision.AttemptCount, Result: summary}, nil
	}

	// A deadline hit is a transient fault unless the pipeline already
	// classified it.
	if !pipeline.IsRecoverable(err) && !pipeline.IsPermanent(err) && errors.Is(err, context.DeadlineExceeded) {
		err = pipeline.NewRecoverableError("pipeline processing timed out", err)
	}

	return c.escalate(ctx, decision, event, err)
}

// escalate maps a pipeline failure onto ledger transitions and the
// dead-letter channel. Permanent errors dead-letter immediately.
// Recoverable and unclassified errors mark the record FAILED so a
// future Begin can retry, until the attempt that reaches the budget
// forces a MAX_ATTEMPTS dead-letter. Unclassified errors additionally
// propagate to the caller instead of being swallowed.
func (c *Coordinator) escalate(ctx context.Context, decision *ledger.Decision, event *eventstream.StreamEvent, procErr error) (*Outcome, error) {
	key := decision.Key
	code := pipeline.ErrorCode(procErr)
	message := procErr.Error()

	if pipeline.IsPermanent(procErr) {
		return c.deadLetter(ctx, decision, event, code, message)
	}

	if err := c.ledger.MarkFailed(ctx, key, code, message); err != nil {
		return nil, pipeline.NewRecoverableError("ledger mark failed failed", err)
	}

	if decision.AttemptCount >= c.config.MaxAttempts {
		metrics.RecordTerminalAttempts(decision.AttemptCount)
		return c.deadLetter(ctx, decision, event, ErrorCodeMaxAttempts, message)
	}

	metrics.RecordEventOutcome(OutcomeFailed)
	logging.Warn().
		Str("key", key).
		Str("error_code", code).
		Int("attempt_count", decision.AttemptCount).
		Int("max_attempts", c.config.MaxAttempts).
		Msg("Event attempt failed, eligible for retry")

	if pipeline.IsRecoverable(procErr) {
		return nil, procErr
	}
	return nil, fmt.Errorf("unclassified pipeline failure for %s: %w", key, procErr)
}

// deadLetter publishes the failure context and records the terminal
// transition. The payload ships before MarkDlq: a DLQ record makes
// Begin skip the key forever, so a publish still pending at that point
// could never be retried. The reverse failure redelivers and converges
// through the archiver's per-key upsert.
func (c *Coordinator) deadLetter(ctx context.Context, decision *ledger.Decision, event *eventstream.StreamEvent, code, message string) (*Outcome, error) {
	key := decision.Key

	if _, err := c.router.Publish(ctx, code, message, decision.AttemptCount, event); err != nil {
		return nil, pipeline.NewRecoverableError("dead-letter publish failed", err)
	}
	if err := c.ledger.MarkDlq(ctx, key, code, message); err != nil {
		return nil, pipeline.NewRecoverableError("ledger mark dlq failed", err)
	}

	metrics.RecordEventOutcome(OutcomeDeadLettered)
	return &Outcome{Action: OutcomeDeadLettered, Key: key, AttemptCount: decision.AttemptCount}, nil
}
