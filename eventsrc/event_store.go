package eventsrc

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Store defines the interface for persisting and retrieving aggregates.
// The implementation is responsible for handling events and snapshots
// transparently, and for enforcing optimistic concurrency on append.
type Store interface {
	// Save persists the uncommitted events of an aggregate atomically: either
	// all events in the batch are durably written with contiguous sequence
	// numbers, or none are. A concurrent writer that already claimed any of
	// those sequences causes ErrConcurrency. The implementation decides
	// whether to write a snapshot as part of the same operation.
	Save(ctx context.Context, aggregate Aggregate) error

	// Load reconstructs an aggregate. The implementation should first try
	// to load the latest snapshot and then load all subsequent events.
	// It returns the snapshot payload (if any), the sequence the snapshot was
	// taken at, and the history of events with a greater sequence.
	Load(
		ctx context.Context,
		aggType AggregateType,
		aggregateID uuid.UUID,
	) (snapshot json.RawMessage, sequence int, history []Event, err error)

	// LoadAllSince returns up to limit events with a global position strictly
	// greater than position, ordered by position ascending. Ordering across
	// aggregates is monotonic by position but not necessarily commit order.
	LoadAllSince(ctx context.Context, position int64, limit int) ([]PositionedEvent, error)
}
