package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tompro/payday/eventsrc"
)

// eventMetadata is the operational envelope stored next to each event payload.
type eventMetadata struct {
	EventID    uuid.UUID `json:"event_id"`
	AppendedAt time.Time `json:"appended_at"`
}

// Store implements the eventsrc.Store interface for PostgreSQL.
type Store struct {
	db                *DB
	outbox            *OutboxStore
	snapshotFrequency int
}

// NewEventStore creates a new PostgreSQL event store.
func NewEventStore(db *DB, outbox *OutboxStore, snapshotFrequency int) *Store {
	return &Store{
		db:                db,
		outbox:            outbox,
		snapshotFrequency: snapshotFrequency,
	}
}

// Save persists an aggregate's uncommitted events and potentially a snapshot.
func (s *Store) Save(ctx context.Context, aggregate eventsrc.Aggregate) error {
	events := aggregate.GetUncommittedEvents()
	if len(events) == 0 {
		return nil
	}

	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return fmt.Errorf("Save must be called within a transaction")
	}

	if err := s.saveEventsInTx(ctx, tx, events); err != nil {
		return err
	}
	if err := s.outbox.SaveEvents(ctx, events); err != nil {
		return err
	}

	if s.shouldSnapshot(aggregate) {
		if err := s.saveSnapshotInTx(ctx, tx, aggregate); err != nil {
			slog.ErrorContext(ctx, "Failed to save snapshot", "aggregateID", aggregate.ID(), "error", err)
		} else {
			slog.InfoContext(ctx, "Snapshot saved successfully", "aggregateID", aggregate.ID(), "sequence", aggregate.Sequence())
		}
	}

	return nil
}

// Load reconstructs an aggregate by loading its latest snapshot and subsequent events.
func (s *Store) Load(
	ctx context.Context,
	aggType eventsrc.AggregateType,
	aggID uuid.UUID,
) (json.RawMessage, int, []eventsrc.Event, error) {
	snapshot, sequence, err := s.loadSnapshot(ctx, aggType, aggID)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	events, err := s.loadEvents(ctx, aggType, aggID, sequence)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to load events: %w", err)
	}

	return snapshot, sequence, events, nil
}

// LoadAllSince returns up to limit events with a global position greater than
// the given position, in commit order.
func (s *Store) LoadAllSince(ctx context.Context, position int64, limit int) ([]eventsrc.PositionedEvent, error) {
	query := `
        SELECT global_position, event_type, payload
        FROM events
        WHERE global_position > $1
        ORDER BY global_position ASC
        LIMIT $2
    `
	rows, err := s.db.Pool.Query(ctx, query, position, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events since position %d: %w", position, err)
	}
	defer rows.Close()

	var events []eventsrc.PositionedEvent
	for rows.Next() {
		var pos int64
		var eventType string
		var payload json.RawMessage
		if err := rows.Scan(&pos, &eventType, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		evtData, err := eventsrc.CreateEvent(eventType)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, evtData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
		}
		events = append(events, eventsrc.PositionedEvent{Position: pos, Event: evtData})
	}
	return events, rows.Err()
}

func (s *Store) saveEventsInTx(ctx context.Context, tx pgx.Tx, events []eventsrc.Event) error {
	b := &pgx.Batch{}
	stmt := `
        INSERT INTO events (aggregate_type, aggregate_id, sequence, event_type, event_version, payload, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	for _, evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
		meta, err := json.Marshal(eventMetadata{EventID: evt.EventID(), AppendedAt: evt.Timestamp()})
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %w", err)
		}
		b.Queue(stmt, evt.AggregateType(), evt.AggregateID(), evt.Sequence(), evt.EventType(), evt.SchemaVersion(), payload, meta)
	}

	br := tx.SendBatch(ctx, b)
	defer br.Close()

	for range len(events) {
		if _, err := br.Exec(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return eventsrc.ErrConcurrency{Msg: fmt.Sprintf("concurrency error: %s", err.Error())}
			}
			return fmt.Errorf("failed to insert event into batch: %w", err)
		}
	}
	return br.Close()
}

func (s *Store) loadEvents(
	ctx context.Context,
	aggType eventsrc.AggregateType,
	aggID uuid.UUID,
	fromSequence int,
) ([]eventsrc.Event, error) {
	query := `
        SELECT event_type, payload
        FROM events
        WHERE aggregate_type = $1 AND aggregate_id = $2 AND sequence > $3
        ORDER BY sequence ASC
    `
	rows, err := s.db.Pool.Query(ctx, query, aggType, aggID, fromSequence)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []eventsrc.Event
	for rows.Next() {
		var eventType string
		var payload json.RawMessage
		if err := rows.Scan(&eventType, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		evtData, err := eventsrc.CreateEvent(eventType)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, evtData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
		}
		events = append(events, evtData)
	}
	return events, rows.Err()
}

func (s *Store) shouldSnapshot(aggregate eventsrc.Aggregate) bool {
	if s.snapshotFrequency <= 0 {
		return false
	}
	return aggregate.Sequence()%s.snapshotFrequency == 0
}

func (s *Store) saveSnapshotInTx(ctx context.Context, tx pgx.Tx, aggregate eventsrc.Aggregate) error {
	payload, err := json.Marshal(aggregate)
	if err != nil {
		return fmt.Errorf("failed to marshal aggregate for snapshot: %w", err)
	}

	// The write runs under a savepoint: snapshots are best-effort, and a
	// failed insert must not abort the transaction carrying the events.
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to open snapshot savepoint: %w", err)
	}

	query := `
        INSERT INTO snapshots (aggregate_type, aggregate_id, last_sequence, current_snapshot, payload)
        VALUES ($1, $2, $3,
            COALESCE((SELECT MAX(current_snapshot) FROM snapshots WHERE aggregate_type = $1 AND aggregate_id = $2), 0) + 1,
            $4)
        ON CONFLICT (aggregate_type, aggregate_id, last_sequence) DO NOTHING
    `
	_, err = sp.Exec(ctx, query, aggregate.AggregateType(), aggregate.ID(), aggregate.Sequence(), payload)
	if err != nil {
		_ = sp.Rollback(ctx)
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return sp.Commit(ctx)
}

func (s *Store) loadSnapshot(
	ctx context.Context,
	aggType eventsrc.AggregateType,
	aggID uuid.UUID,
) (json.RawMessage, int, error) {
	query := `
        SELECT last_sequence, payload
        FROM snapshots
        WHERE aggregate_type = $1 AND aggregate_id = $2
        ORDER BY last_sequence DESC
        LIMIT 1
    `
	var sequence int
	var payload json.RawMessage
	err := s.db.Pool.QueryRow(ctx, query, aggType, aggID).Scan(&sequence, &payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, nil // No snapshot found, not an error
		}
		return nil, 0, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return payload, sequence, nil
}
