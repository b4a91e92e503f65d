package cqrs

import (
	"context"

	"github.com/google/uuid"
)

// IdempotencyStore defines the interface for checking and storing processed
// event IDs.
type IdempotencyStore interface {
	IsProcessed(ctx context.Context, eventID uuid.UUID, subscriberID string) (bool, error)
	MarkAsProcessed(ctx context.Context, eventID uuid.UUID, subscriberID string) error
}

// VersionedStore defines an interface for read models that support
// versioning by aggregate sequence.
type VersionedStore interface {
	// GetSequence retrieves the sequence of the last event applied to an
	// aggregate's view model. It should return 0 if the view model does not
	// exist yet.
	GetSequence(ctx context.Context, aggregateID uuid.UUID) (int, error)
}

// OffsetStore is the durable cursor of a named consumer tailing the event
// log. Offsets are monotonically non-decreasing; consumers must tolerate
// at-least-once redelivery.
type OffsetStore interface {
	// GetOffset returns the consumer's current offset, 0 if none is stored.
	GetOffset(ctx context.Context, consumerID string) (uint64, error)
	// SetOffset advances the consumer's offset.
	SetOffset(ctx context.Context, consumerID string, offset uint64) error
}

// TransactionalHandler defines a function that executes business logic
// within a transaction.
type TransactionalHandler func(ctx context.Context) error

// Transactor defines an interface for an object that can execute a function
// within a transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn TransactionalHandler) error
}
