// Package memstore provides in-memory implementations of the persistence
// contracts. It backs unit tests and single-process deployments where
// durability is not required.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tompro/payday/cqrs"
	"github.com/tompro/payday/eventsrc"
)

type streamKey struct {
	aggType eventsrc.AggregateType
	aggID   uuid.UUID
}

type snapshotEntry struct {
	sequence int
	payload  json.RawMessage
}

// Store is an in-memory eventsrc.Store. All operations are safe for
// concurrent use; appends for one aggregate contend on the same sequence
// exactly like rows under the Postgres primary key.
type Store struct {
	mu                sync.Mutex
	streams           map[streamKey][]eventsrc.Event
	snapshots         map[streamKey]snapshotEntry
	log               []eventsrc.PositionedEvent
	snapshotFrequency int
}

// NewStore creates an empty in-memory event store.
func NewStore(snapshotFrequency int) *Store {
	return &Store{
		streams:           make(map[streamKey][]eventsrc.Event),
		snapshots:         make(map[streamKey]snapshotEntry),
		snapshotFrequency: snapshotFrequency,
	}
}

// Save appends an aggregate's uncommitted events. The whole batch is applied
// atomically; a sequence collision rejects the batch with ErrConcurrency.
func (s *Store) Save(ctx context.Context, aggregate eventsrc.Aggregate) error {
	events := aggregate.GetUncommittedEvents()
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey{aggType: aggregate.AggregateType(), aggID: aggregate.ID()}
	stream := s.streams[key]
	lastSeq := 0
	if len(stream) > 0 {
		lastSeq = stream[len(stream)-1].Sequence()
	}

	for i, evt := range events {
		want := lastSeq + i + 1
		if evt.Sequence() != want {
			return eventsrc.ErrConcurrency{
				Msg: fmt.Sprintf("concurrency error: %s/%s sequence %d already exists",
					key.aggType, key.aggID, evt.Sequence()),
			}
		}
	}

	for _, evt := range events {
		s.streams[key] = append(s.streams[key], evt)
		s.log = append(s.log, eventsrc.PositionedEvent{Position: int64(len(s.log) + 1), Event: evt})
	}

	if s.snapshotFrequency > 0 && aggregate.Sequence()%s.snapshotFrequency == 0 {
		if payload, err := json.Marshal(aggregate); err == nil {
			s.snapshots[key] = snapshotEntry{sequence: aggregate.Sequence(), payload: payload}
		}
	}

	return nil
}

// Load returns the latest snapshot and all events past it.
func (s *Store) Load(
	ctx context.Context,
	aggType eventsrc.AggregateType,
	aggID uuid.UUID,
) (json.RawMessage, int, []eventsrc.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey{aggType: aggType, aggID: aggID}
	snap, hasSnap := s.snapshots[key]

	var fromSeq int
	var snapshot json.RawMessage
	if hasSnap {
		fromSeq = snap.sequence
		snapshot = snap.payload
	}

	var events []eventsrc.Event
	for _, evt := range s.streams[key] {
		if evt.Sequence() > fromSeq {
			events = append(events, evt)
		}
	}
	return snapshot, fromSeq, events, nil
}

// LoadAllSince returns up to limit events past the given global position.
func (s *Store) LoadAllSince(ctx context.Context, position int64, limit int) ([]eventsrc.PositionedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []eventsrc.PositionedEvent
	for _, pe := range s.log {
		if pe.Position <= position {
			continue
		}
		out = append(out, pe)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Transactor is a no-op cqrs.Transactor for the in-memory backend. The
// store's own mutex provides per-append atomicity; there is nothing to
// roll back.
type Transactor struct{}

func (Transactor) WithTransaction(ctx context.Context, fn cqrs.TransactionalHandler) error {
	return fn(ctx)
}
