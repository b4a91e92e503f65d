// Package outbox drains the transactional outbox into the message bus. The
// relay is the only component that moves events from the write side to the
// broker; projections never read the event tables directly.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tompro/payday/eventsrc"
	"github.com/tompro/payday/msgbus"
)

// Store hands the relay locked batches of unpublished events. The whole
// fetch-publish-mark cycle runs inside one storage transaction; a failed
// publish leaves the batch unmarked for the next attempt.
type Store interface {
	ProcessOutboxBatch(
		ctx context.Context,
		batchSize int,
		processFunc func(ctx context.Context, events []eventsrc.OutboxEvent) error,
	) error
}

// TopicMapper resolves an event type to its bus topic. An empty topic drops
// the event from publication.
type TopicMapper func(eventType string) string

// Relay polls the outbox and publishes pending events to the broker. Any
// number of relay instances can run against the same outbox; row locking in
// the store keeps them from double-publishing.
type Relay struct {
	store       Store
	broker      msgbus.Broker
	topicMapper TopicMapper
	batchSize   int
	interval    time.Duration

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewRelay(store Store, broker msgbus.Broker, mapper TopicMapper, batchSize int, interval time.Duration) *Relay {
	return &Relay{
		store:       store,
		broker:      broker,
		topicMapper: mapper,
		batchSize:   batchSize,
		interval:    interval,
		quit:        make(chan struct{}),
	}
}

// Start launches the polling loop. It returns immediately; use Stop or
// cancel ctx to end the loop.
func (r *Relay) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		slog.InfoContext(ctx, "Outbox relay started", "interval", r.interval, "batchSize", r.batchSize)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.processBatch(ctx); err != nil {
					slog.ErrorContext(ctx, "Failed to process outbox batch", "error", err)
				}
			case <-r.quit:
				slog.InfoContext(ctx, "Outbox relay shutting down")
				return
			case <-ctx.Done():
				slog.InfoContext(ctx, "Context cancelled, outbox relay shutting down")
				return
			}
		}
	}()
}

// Stop ends the polling loop and waits for an in-flight batch to finish.
func (r *Relay) Stop() {
	close(r.quit)
	r.wg.Wait()
}

func (r *Relay) processBatch(ctx context.Context) error {
	return r.store.ProcessOutboxBatch(ctx, r.batchSize, r.publish)
}

// publish runs inside the store's transaction. Returning an error rolls the
// batch back so nothing is marked as published.
func (r *Relay) publish(ctx context.Context, events []eventsrc.OutboxEvent) error {
	if len(events) == 0 {
		return nil
	}

	published := 0
	for _, evt := range events {
		topic := r.topicMapper(evt.EventType)
		if topic == "" {
			slog.WarnContext(ctx, "No topic mapped for event type, skipping",
				"eventType", evt.EventType, "eventID", evt.EventID)
			continue
		}
		if err := r.broker.Publish(ctx, topic, evt); err != nil {
			return fmt.Errorf("failed to publish event %s to topic %s: %w", evt.EventID, topic, err)
		}
		published++
	}

	slog.InfoContext(ctx, "Published outbox events", "published", published, "batch", len(events))
	return nil
}
