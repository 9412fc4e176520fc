package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/patient-records/pkg/messaging"
	"github.com/jwalitptl/patient-records/pkg/metrics"
)

// HandlerFunc processes one decoded change event.
type HandlerFunc func(ctx context.Context, msg *messaging.Message) error

// EventConsumer reads patient change events from a broker channel and hands
// each to a handler. Undecodable messages and handler failures are logged
// and skipped; nothing is redelivered.
type EventConsumer struct {
	broker  messaging.Broker
	channel string
	handle  HandlerFunc
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewEventConsumer builds a consumer. A nil handle only logs events; m may
// be nil.
func NewEventConsumer(broker messaging.Broker, channel string, handle HandlerFunc, m *metrics.Metrics, logger zerolog.Logger) *EventConsumer {
	c := &EventConsumer{
		broker:  broker,
		channel: channel,
		handle:  handle,
		metrics: m,
		logger:  logger.With().Str("channel", channel).Logger(),
	}
	if c.handle == nil {
		c.handle = c.logEvent
	}
	return c
}

// Start blocks until ctx is done or the subscription closes.
func (c *EventConsumer) Start(ctx context.Context) error {
	messages, err := c.broker.Subscribe(ctx, c.channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.channel, err)
	}

	c.logger.Info().Msg("Worker started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Worker shutting down")
			return nil
		case raw, ok := <-messages:
			if !ok {
				c.logger.Info().Msg("Subscription closed")
				return nil
			}
			c.process(ctx, raw)
		}
	}
}

func (c *EventConsumer) process(ctx context.Context, raw []byte) {
	var msg messaging.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn().Err(err).Int("size", len(raw)).Msg("Dropping undecodable event")
		c.count("unknown", "invalid")
		return
	}

	if err := c.handle(ctx, &msg); err != nil {
		c.logger.Error().Err(err).Str("event_id", msg.ID).Str("event_type", msg.Type).Msg("Failed to handle event")
		c.count(msg.Type, "error")
		return
	}
	c.count(msg.Type, "ok")
}

func (c *EventConsumer) logEvent(_ context.Context, msg *messaging.Message) error {
	c.logger.Info().
		Str("event_id", msg.ID).
		Str("event_type", msg.Type).
		Time("occurred_at", msg.OccurredAt).
		Interface("payload", msg.Payload).
		Msg("Patient event received")
	return nil
}

func (c *EventConsumer) count(eventType, status string) {
	if c.metrics != nil {
		c.metrics.EventsConsumed.WithLabelValues(eventType, status).Inc()
	}
}
