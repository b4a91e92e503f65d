package eventsrc

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrConcurrency is returned when an event store append fails because another
// writer already advanced the aggregate's stream. The uniqueness constraint on
// (aggregate_type, aggregate_id, sequence) is the sole detection mechanism.
type ErrConcurrency struct {
	Msg string
}

func (e ErrConcurrency) Error() string {
	return e.Msg
}

// InvalidTransitionError is returned when an event cannot legally be applied
// to the aggregate's current state. During replay this indicates a modeling
// bug or out-of-order delivery and is surfaced, never silently dropped.
type InvalidTransitionError struct {
	AggregateType AggregateType
	AggregateID   uuid.UUID
	Sequence      int
	EventType     string
	State         string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf(
		"invalid transition: event %s (seq %d) not applicable to %s/%s in state %q",
		e.EventType, e.Sequence, e.AggregateType, e.AggregateID, e.State,
	)
}
