package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/patient-records/pkg/messaging"
	"github.com/jwalitptl/patient-records/pkg/metrics"
)

type EventType string

const (
	PatientCreated     EventType = "patient.created"
	PatientUpdated     EventType = "patient.updated"
	PatientDeleted     EventType = "patient.deleted"
	PatientBulkUpdated EventType = "patient.bulk_updated"
)

// EventService publishes patient change notifications. Publishing is
// best effort: a broker failure is logged and counted, never returned to the
// request that caused the change.
type EventService struct {
	broker  messaging.Broker
	channel string
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewEventService wraps broker. m may be nil.
func NewEventService(broker messaging.Broker, channel string, m *metrics.Metrics, logger zerolog.Logger) *EventService {
	if broker == nil {
		broker = messaging.NopBroker{}
	}
	return &EventService{
		broker:  broker,
		channel: channel,
		metrics: m,
		logger:  logger.With().Str("component", "events").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *EventService) Emit(ctx context.Context, eventType EventType, payload interface{}) {
	msg := &messaging.Message{
		ID:         uuid.New().String(),
		Type:       string(eventType),
		OccurredAt: s.now(),
		Payload:    payload,
	}

	// The change is already committed; a client hanging up must not drop it.
	ctx = context.WithoutCancel(ctx)

	status := "ok"
	if err := s.broker.Publish(ctx, s.channel, msg); err != nil {
		status = "error"
		s.logger.Warn().
			Err(err).
			Str("event_type", msg.Type).
			Str("event_id", msg.ID).
			Msg("failed to publish event")
	}

	if s.metrics != nil {
		s.metrics.EventsPublished.WithLabelValues(msg.Type, status).Inc()
	}
}
