// Semel - Exactly-Once Media Event Ingestion Coordinator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/semel

package eventstream

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/semel/internal/metrics"
)

// Subscriber wraps the Watermill subscriber with configuration.
// It provides durable JetStream consumption with queue-based load
// balancing: multiple instances share one durable consumer, and the
// ledger downstream makes redelivered batches harmless.
type Subscriber struct {
	subscriber message.Subscriber
	config     SubscriberConfig
	logger     watermill.LoggerAdapter
}

// NewSubscriber creates a durable JetStream subscriber bound to the
// pre-provisioned events stream.
func NewSubscriber(cfg *SubscriberConfig, logger watermill.LoggerAdapter) (*Subscriber, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("Subscriber disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("Subscriber reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(cfg.MaxDeliver),
		natsgo.MaxAckPending(cfg.MaxAckPending),
		natsgo.AckWait(cfg.AckWaitTimeout),
		// Deliver new messages only (use DeliverAll for replay)
		natsgo.DeliverNew(),
	}

	// Bind to the stream provisioned at startup rather than letting
	// the subscriber auto-provision one per topic.
	autoProvision := true
	if cfg.StreamName != "" {
		subOpts = append(subOpts, natsgo.BindStream(cfg.StreamName))
		autoProvision = false
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    autoProvision,
			AckAsync:         false, // Synchronous acks: redelivery over loss
			SubscribeOptions: subOpts,
			DurablePrefix:    cfg.DurableName,
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	return &Subscriber{
		subscriber: sub,
		config:     *cfg,
		logger:     logger,
	}, nil
}

// Subscribe returns a channel of messages for the given topic.
// The channel is closed when the context is canceled or the subscriber is closed.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.subscriber.Subscribe(ctx, topic)
}

// Close gracefully shuts down the subscriber.
func (s *Subscriber) Close() error {
	return s.subscriber.Close()
}

// EnvelopeHandler consumes batch envelopes from a topic and dispatches
// their events one at a time to a processing function. The message is
// acked only after every event in the envelope has been handled; any
// error nacks the whole envelope for redelivery, and the ledger makes
// the resulting re-processing of already-handled events a no-op.
type EnvelopeHandler struct {
	subscriber *Subscriber
	topic      string
	serializer *Serializer
	handler    func(ctx context.Context, event *StreamEvent) error
	logger     watermill.LoggerAdapter
}

// NewEnvelopeHandler creates a handler for batch envelopes on the given topic.
func (s *Subscriber) NewEnvelopeHandler(topic string) *EnvelopeHandler {
	return &EnvelopeHandler{
		subscriber: s,
		topic:      topic,
		serializer: NewSerializer(),
		logger:     s.logger,
	}
}

// Handle sets the per-event processing function.
func (h *EnvelopeHandler) Handle(fn func(ctx context.Context, event *StreamEvent) error) *EnvelopeHandler {
	h.handler = fn
	return h
}

// Serve processes envelopes until context cancellation.
func (h *EnvelopeHandler) Serve(ctx context.Context) error {
	messages, err := h.subscriber.Subscribe(ctx, h.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", h.topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := h.processMessage(ctx, msg); err != nil {
				h.logger.Error("Envelope processing failed", err, watermill.LogFields{
					"message_uuid": msg.UUID,
					"topic":        h.topic,
				})
			}
		}
	}
}

// String names the handler in supervisor logs.
func (h *EnvelopeHandler) String() string {
	return "eventstream-consumer"
}

func (h *EnvelopeHandler) processMessage(ctx context.Context, msg *message.Message) error {
	metrics.RecordNATSConsume()
	start := time.Now()

	envelope, err := h.serializer.Unmarshal(msg.Payload)
	if err != nil {
		// A payload that cannot parse will never parse. Ack it so the
		// consumer does not redeliver garbage forever.
		metrics.RecordNATSParseFailed()
		msg.Ack()
		return fmt.Errorf("unmarshal envelope %s: %w", msg.UUID, err)
	}

	if h.handler != nil {
		for i := range envelope.Events {
			if err := h.handler(ctx, &envelope.Events[i]); err != nil {
				msg.Nack()
				return fmt.Errorf("process event %d/%d in envelope %s: %w", i+1, envelope.Len(), msg.UUID, err)
			}
		}
	}

	msg.Ack()
	metrics.RecordNATSProcessed()
	metrics.RecordNATSProcessingDuration(time.Since(start))
	return nil
}
