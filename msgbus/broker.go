// Package msgbus abstracts the broker carrying outbox events to the
// projection side. The outbox relay publishes, projections subscribe; both
// only see this interface.
package msgbus

import (
	"context"

	"github.com/tompro/payday/eventsrc"
)

// Broker publishes and consumes outbox events by topic. Delivery is
// at-least-once; subscribers are expected to be idempotent.
type Broker interface {
	// Publish sends an event to a topic. A nil return means the broker has
	// durably accepted the event.
	Publish(ctx context.Context, topic string, evt eventsrc.OutboxEvent) error
	// Subscribe registers a durable consumer on a topic. A handler error
	// negatively acknowledges the message so it is redelivered.
	Subscribe(
		ctx context.Context,
		topic, subscriberID string,
		handler func(ctx context.Context, evt eventsrc.OutboxEvent) error,
	) error
	// Close shuts down the broker connection.
	Close()
}
