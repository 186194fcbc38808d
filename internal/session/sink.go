package session

import (
	"context"

	"chat-sync/internal/notify"
	"chat-sync/internal/observability"
)

// BusIntentSink publishes notification intents to the message bus for a push
// gateway to consume.
type BusIntentSink struct {
	routingKey string
}

// NewBusIntentSink creates a sink publishing under routingKey.
func NewBusIntentSink(routingKey string) *BusIntentSink {
	return &BusIntentSink{routingKey: routingKey}
}

// Deliver publishes the intent. A missing publisher is a silent no-op.
func (s *BusIntentSink) Deliver(ctx context.Context, intent notify.Intent) error {
	return observability.PublishEvent(ctx, s.routingKey, observability.EventEnvelope{
		EventType: "notifications",
		EventName: "intent",
		Payload:   intent,
	}, nil)
}
