package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tompro/payday/eventsrc"
)

// NATSBroker is an implementation of the msgbus.Broker interface using NATS
// JetStream. One stream exists per topic (aggregate type); subjects inside a
// stream are partitioned by aggregate id so an aggregate's events stay in
// order.
type NATSBroker struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewNATSBroker connects to NATS and prepares a JetStream context.
func NewNATSBroker(url string) (*NATSBroker, error) {
	nc, err := nats.Connect(
		url,
		nats.Timeout(10*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NATSBroker{conn: nc, js: js}, nil
}

// ensureStream creates the stream for a topic if it does not exist yet.
func (b *NATSBroker) ensureStream(ctx context.Context, topic string) error {
	_, err := b.js.StreamInfo(topic)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) && !errors.Is(err, nats.ErrNoMatchingStream) {
		return fmt.Errorf("failed to get stream info for %s: %w", topic, err)
	}

	slog.InfoContext(ctx, "Stream not found, creating it", "stream", topic)
	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:     topic,
		Subjects: []string{fmt.Sprintf("%s.*", topic)},
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", topic, err)
	}
	return nil
}

// Publish sends an event to a NATS topic.
func (b *NATSBroker) Publish(ctx context.Context, topic string, evt eventsrc.OutboxEvent) error {
	if err := b.ensureStream(ctx, topic); err != nil {
		return err
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	// Example subject: invoices.c7c0b6f2-7a7e-4b2a-8f3b-5e4e2a1e0b5e
	subject := fmt.Sprintf("%s.%s", topic, evt.AggregateID.String())

	if _, err := b.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	slog.DebugContext(ctx, "Event published successfully", "topic", topic, "subject", subject, "eventID", evt.EventID)
	return nil
}

// Subscribe creates a durable, pull-based subscription. A restarted
// subscriber with the same subscriberID resumes where it left off.
func (b *NATSBroker) Subscribe(
	ctx context.Context,
	topic, subscriberID string,
	handler func(context.Context, eventsrc.OutboxEvent) error,
) error {
	if err := b.ensureStream(ctx, topic); err != nil {
		return err
	}

	consumerName := fmt.Sprintf("%s-%s", topic, subscriberID)
	sub, err := b.js.PullSubscribe(
		fmt.Sprintf("%s.*", topic), // Subscribe to all subjects in the stream
		consumerName,               // Durable name
		nats.PullMaxWaiting(128),
	)
	if err != nil {
		return fmt.Errorf("failed to create pull subscription: %w", err)
	}

	go func() {
		slog.InfoContext(ctx, "Subscriber started", "topic", topic, "subscriberID", subscriberID)
		for {
			select {
			case <-ctx.Done():
				slog.InfoContext(ctx, "Subscriber stopping", "topic", topic, "subscriberID", subscriberID)
				return
			default:
				msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
				if err != nil {
					if !errors.Is(err, nats.ErrTimeout) {
						slog.ErrorContext(ctx, "Failed to fetch messages", "error", err, "topic", topic)
					}
					continue
				}

				for _, msg := range msgs {
					var evt eventsrc.OutboxEvent
					if err := json.Unmarshal(msg.Data, &evt); err != nil {
						slog.ErrorContext(ctx, "Failed to unmarshal event, skipping", "error", err, "topic", topic)
						msg.Nak() // Message might be redelivered
						continue
					}

					if err := handler(ctx, evt); err != nil {
						slog.ErrorContext(ctx, "Handler failed to process event", "error", err, "eventID", evt.EventID)
						msg.Nak() // Nak to signal processing failure
					} else {
						msg.Ack()
					}
				}
			}
		}
	}()

	return nil
}

// Close gracefully closes the NATS connection.
func (b *NATSBroker) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}
