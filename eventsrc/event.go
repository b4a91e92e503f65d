package eventsrc

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the interface that all domain events must implement.
type Event interface {
	EventID() uuid.UUID
	AggregateID() uuid.UUID
	AggregateType() AggregateType
	EventType() string
	// SchemaVersion identifies the payload schema, not the position in the
	// stream. Bump it when the payload shape changes.
	SchemaVersion() string
	// Sequence is the position of the event in its aggregate's stream.
	// Sequences are contiguous and start at 1.
	Sequence() int
	Timestamp() time.Time
}

// BaseEvent provides a common implementation for the Event interface.
// Domain events can embed this struct to reduce boilerplate.
type BaseEvent struct {
	ID      uuid.UUID     `json:"id"`
	AggID   uuid.UUID     `json:"aggregate_id"`
	AggType AggregateType `json:"aggregate_type"`
	Seq     int           `json:"sequence"`
	Schema  string        `json:"schema_version"`
	Ts      time.Time     `json:"ts"`
}

func (b BaseEvent) EventID() uuid.UUID           { return b.ID }
func (b BaseEvent) AggregateID() uuid.UUID       { return b.AggID }
func (b BaseEvent) AggregateType() AggregateType { return b.AggType }
func (b BaseEvent) SchemaVersion() string        { return b.Schema }
func (b BaseEvent) Sequence() int                { return b.Seq }
func (b BaseEvent) Timestamp() time.Time         { return b.Ts }

// NewBase builds a BaseEvent for the next position in an aggregate's stream.
func NewBase(aggType AggregateType, aggID uuid.UUID, sequence int) BaseEvent {
	return BaseEvent{
		ID:      uuid.New(),
		AggID:   aggID,
		AggType: aggType,
		Seq:     sequence,
		Schema:  "1.0.0",
		Ts:      time.Now().UTC(),
	}
}

// OutboxEvent represents the structure of an event stored in the outbox table.
type OutboxEvent struct {
	EventID       uuid.UUID
	AggregateID   uuid.UUID
	AggregateType AggregateType
	EventType     string
	Payload       json.RawMessage
	Sequence      int
	Ts            time.Time
}

// PositionedEvent pairs an event with its global log position, as returned
// when tailing the full event log.
type PositionedEvent struct {
	Position int64
	Event    Event
}
