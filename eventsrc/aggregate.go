package eventsrc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// AggregateType defines the type of an aggregate (e.g., "invoices", "payouts").
type AggregateType string

// Aggregate is the interface that event-sourced aggregates must implement.
// It embeds the standard JSON marshaling interfaces for snapshotting.
type Aggregate interface {
	json.Marshaler
	json.Unmarshaler

	// ID returns the unique identifier of the aggregate.
	ID() uuid.UUID
	// AggregateType returns the type of the aggregate.
	AggregateType() AggregateType
	// Sequence returns the sequence of the last applied event.
	Sequence() int
	// GetUncommittedEvents returns the list of new, uncommitted events.
	GetUncommittedEvents() []Event
	// ClearUncommittedEvents clears the list of uncommitted events.
	ClearUncommittedEvents()
	// LoadFromHistory rehydrates the aggregate's state from a stream of past
	// events. An apply failure is surfaced to the caller; history must never
	// contain events the state machine rejects.
	LoadFromHistory(ctx context.Context, events []Event) error
	// Apply applies a single event to the aggregate, changing its state.
	Apply(ctx context.Context, evt Event) error
	// Validate checks if the aggregate's current state is valid.
	Validate() error
}

// AggregateRoot is a base implementation for event-sourced aggregates.
// It tracks the aggregate's ID, sequence, and uncommitted events.
type AggregateRoot struct {
	id            uuid.UUID
	aggType       AggregateType
	sequence      int
	events        []Event
	applyMethod   func(context.Context, Event) error
	validateState func() error
}

// NewAggregateRoot is a constructor for AggregateRoot.
// It requires references to the concrete aggregate's apply and validate methods.
func NewAggregateRoot(
	aggType AggregateType,
	applyMethod func(context.Context, Event) error,
	validateState func() error,
) *AggregateRoot {
	return &AggregateRoot{
		aggType:       aggType,
		applyMethod:   applyMethod,
		validateState: validateState,
	}
}

func (a *AggregateRoot) ID() uuid.UUID                 { return a.id }
func (a *AggregateRoot) AggregateType() AggregateType  { return a.aggType }
func (a *AggregateRoot) Sequence() int                 { return a.sequence }
func (a *AggregateRoot) GetUncommittedEvents() []Event { return a.events }
func (a *AggregateRoot) ClearUncommittedEvents()       { a.events = nil }

// TrackChange records a new event by applying it, validating the new state,
// and adding it to the list of uncommitted events.
func (a *AggregateRoot) TrackChange(ctx context.Context, evt Event) error {
	if err := a.applyMethod(ctx, evt); err != nil {
		return err
	}
	if err := a.validateState(); err != nil {
		return fmt.Errorf("state validation failed after applying event %s: %w", evt.EventType(), err)
	}
	a.events = append(a.events, evt)
	return nil
}

// LoadFromHistory rehydrates the aggregate's state by applying a series of
// past events. It does NOT validate the state after each event, as historical
// events were validated when first recorded. A rejected event indicates a
// modeling bug and is returned to the caller.
func (a *AggregateRoot) LoadFromHistory(ctx context.Context, history []Event) error {
	for _, evt := range history {
		if err := a.applyMethod(ctx, evt); err != nil {
			return fmt.Errorf("replay of %s/%s halted at seq %d: %w",
				a.aggType, evt.AggregateID(), evt.Sequence(), err)
		}
	}
	return nil
}

// Apply delegates to the concrete aggregate's apply method.
func (a *AggregateRoot) Apply(ctx context.Context, evt Event) error {
	return a.applyMethod(ctx, evt)
}

// Validate delegates to the concrete aggregate's validator.
func (a *AggregateRoot) Validate() error {
	return a.validateState()
}

// Setters used internally by apply methods of the concrete aggregate.
func (a *AggregateRoot) SetID(id uuid.UUID)        { a.id = id }
func (a *AggregateRoot) SetSequence(sequence int)  { a.sequence = sequence }
