package cqrs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tompro/payday/eventsrc"
)

// TailHandler processes one positioned event from the log.
type TailHandler func(ctx context.Context, evt eventsrc.PositionedEvent) error

// Tailer is a background worker that tails the global event log from a
// persisted offset and feeds each event to a handler. The offset is advanced
// only after the handler succeeds, so delivery is at-least-once and handlers
// must be idempotent.
type Tailer struct {
	consumerID string
	store      eventsrc.Store
	offsets    OffsetStore
	handler    TailHandler
	batchSize  int
	interval   time.Duration
	wg         sync.WaitGroup
	quit       chan struct{}
}

// NewTailer creates a new Tailer instance.
func NewTailer(
	consumerID string,
	store eventsrc.Store,
	offsets OffsetStore,
	handler TailHandler,
	batchSize int,
	interval time.Duration,
) *Tailer {
	return &Tailer{
		consumerID: consumerID,
		store:      store,
		offsets:    offsets,
		handler:    handler,
		batchSize:  batchSize,
		interval:   interval,
		quit:       make(chan struct{}),
	}
}

// Start begins the tailer's polling process in a separate goroutine.
func (t *Tailer) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		slog.InfoContext(ctx, "Log tailer started", "consumerID", t.consumerID)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := t.processBatch(ctx); err != nil {
					slog.ErrorContext(ctx, "Failed to process log batch", "error", err, "consumerID", t.consumerID)
				}
			case <-t.quit:
				slog.InfoContext(ctx, "Log tailer shutting down", "consumerID", t.consumerID)
				return
			case <-ctx.Done():
				slog.InfoContext(ctx, "Context cancelled, log tailer shutting down", "consumerID", t.consumerID)
				return
			}
		}
	}()
}

// processBatch reads the next batch after the stored offset and hands each
// event to the handler, advancing the offset per processed event.
func (t *Tailer) processBatch(ctx context.Context) error {
	offset, err := t.offsets.GetOffset(ctx, t.consumerID)
	if err != nil {
		return fmt.Errorf("failed to load offset for consumer %s: %w", t.consumerID, err)
	}

	events, err := t.store.LoadAllSince(ctx, int64(offset), t.batchSize)
	if err != nil {
		return fmt.Errorf("failed to load events after position %d: %w", offset, err)
	}

	for _, evt := range events {
		if err := t.handler(ctx, evt); err != nil {
			// Stop the batch here: the offset stays put and the event is
			// redelivered on the next tick.
			return fmt.Errorf("handler failed at position %d: %w", evt.Position, err)
		}
		if err := t.offsets.SetOffset(ctx, t.consumerID, uint64(evt.Position)); err != nil {
			return fmt.Errorf("failed to advance offset to %d: %w", evt.Position, err)
		}
	}
	return nil
}

// Stop gracefully stops the tailer.
func (t *Tailer) Stop() {
	close(t.quit)
	t.wg.Wait()
}

// TailInto adapts a projection handler to the tailer. The global log
// interleaves every aggregate type, so the adapter filters to one type and
// repacks each event into the envelope projections consume. This is how
// projections run when no broker is configured.
func TailInto(aggType eventsrc.AggregateType, handler ProjectionHandler) TailHandler {
	return func(ctx context.Context, evt eventsrc.PositionedEvent) error {
		if evt.Event.AggregateType() != aggType {
			return nil
		}
		oe, err := AsOutboxEvent(evt.Event)
		if err != nil {
			return err
		}
		return handler(ctx, oe)
	}
}

// AsOutboxEvent converts a stored event into the envelope projections
// consume, re-marshaling the payload.
func AsOutboxEvent(evt eventsrc.Event) (eventsrc.OutboxEvent, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return eventsrc.OutboxEvent{}, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return eventsrc.OutboxEvent{
		EventID:       evt.EventID(),
		AggregateID:   evt.AggregateID(),
		AggregateType: evt.AggregateType(),
		EventType:     evt.EventType(),
		Payload:       payload,
		Sequence:      evt.Sequence(),
		Ts:            evt.Timestamp(),
	}, nil
}
