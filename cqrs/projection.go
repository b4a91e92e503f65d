package cqrs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tompro/payday/eventsrc"
)

// ErrOutOfOrderEvent is returned when an event is received with a sequence
// that is not the expected next sequence for its aggregate's view.
var ErrOutOfOrderEvent = errors.New("out of order event")

// ProjectionHandler main logic for projecting a view.
type ProjectionHandler func(ctx context.Context, evt eventsrc.OutboxEvent) error

// Projection is a decorator that wraps a business logic handler
// with idempotency checks, ordering checks and retry logic.
type Projection struct {
	subscriberID   string
	idempStore     IdempotencyStore
	versionStore   VersionedStore
	transactor     Transactor
	handler        ProjectionHandler
	maxElapsedTime time.Duration
}

// ProjectionOption is a function that configures a Projection.
type ProjectionOption func(*Projection)

// WithMaxElapsedTime is an option to provide a custom backoff max elapsed time.
func WithMaxElapsedTime(maxElapsedTime time.Duration) ProjectionOption {
	return func(h *Projection) {
		h.maxElapsedTime = maxElapsedTime
	}
}

// NewProjection creates a new idempotent projection.
func NewProjection(
	subscriberID string,
	idempStore IdempotencyStore,
	versionStore VersionedStore,
	transactor Transactor,
	handler ProjectionHandler,
	opts ...ProjectionOption,
) *Projection {
	h := &Projection{
		subscriberID:   subscriberID,
		idempStore:     idempStore,
		versionStore:   versionStore,
		transactor:     transactor,
		handler:        handler,
		maxElapsedTime: 1 * time.Minute, // Set default
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Handle processes an event with idempotency and retry logic.
func (h *Projection) Handle(ctx context.Context, evt eventsrc.OutboxEvent) error {
	// 1. Idempotency Check
	isProcessed, err := h.idempStore.IsProcessed(ctx, evt.EventID, h.subscriberID)
	if err != nil {
		return fmt.Errorf("failed to check for event idempotency: %w", err)
	}
	if isProcessed {
		slog.WarnContext(ctx, "Event already processed, skipping", "eventID", evt.EventID, "subscriber", h.subscriberID)
		return nil
	}

	// Retry Logic with Exponential Backoff
	operation := func() (any, error) {
		// 2. Ordering Check (by sequence) - this happens INSIDE the retry loop
		// so a reload sees progress made by concurrent consumers.
		currentSeq, err := h.versionStore.GetSequence(ctx, evt.AggregateID)
		if err != nil {
			// Transient error with the database, retry.
			return nil, fmt.Errorf("failed to get current view sequence: %w", err)
		}
		if evt.Sequence <= currentSeq {
			slog.WarnContext(ctx, "Received old or duplicate event sequence, skipping",
				"eventID", evt.EventID, "eventSequence", evt.Sequence, "currentSequence", currentSeq)
			// Still mark the event as processed in the idempotency store
			// to prevent it from being re-evaluated if it arrives again.
			return nil, backoff.Permanent(h.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
				return h.idempStore.MarkAsProcessed(txCtx, evt.EventID, h.subscriberID)
			}))
		}

		if evt.Sequence != currentSeq+1 {
			slog.WarnContext(ctx, "Received out-of-order event, will be retried by the broker",
				"eventID", evt.EventID, "eventSequence", evt.Sequence, "expectedSequence", currentSeq+1)
			// The broker infrastructure decides how to handle this (e.g. NAK
			// with delay). This is a final state for this attempt.
			return nil, backoff.Permanent(ErrOutOfOrderEvent)
		}

		// 3. Transactional Execution: business logic and marking the event as
		// processed happen atomically.
		txErr := h.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := h.handler(txCtx, evt); err != nil {
				return fmt.Errorf("handler business logic failed: %w", err)
			}
			if err := h.idempStore.MarkAsProcessed(txCtx, evt.EventID, h.subscriberID); err != nil {
				return fmt.Errorf("failed to mark event as processed: %w", err)
			}
			return nil
		})

		// Don't retry on certain application-level errors
		if txErr != nil && errors.Is(txErr, context.Canceled) {
			return nil, backoff.Permanent(txErr)
		}
		return nil, txErr
	}

	bo := backoff.NewExponentialBackOff()

	_, err = backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(h.maxElapsedTime))
	if err != nil {
		slog.ErrorContext(
			ctx,
			"Failed to process event after multiple retries",
			"error",
			err,
			"eventID",
			evt.EventID,
			"subscriber",
			h.subscriberID,
		)
		// Return error to have the message NAK'd and possibly redelivered or
		// sent to a dead-letter queue.
		return err
	}

	slog.InfoContext(
		ctx,
		"Event processed successfully by projection",
		"eventID",
		evt.EventID,
		"subscriber",
		h.subscriberID,
	)
	return nil
}
