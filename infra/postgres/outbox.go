package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tompro/payday/eventsrc"
)

// OutboxStore implements the outbox.Store interface on the outbox table.
// Rows are written in the same transaction as the event log and drained by
// the relay under FOR UPDATE SKIP LOCKED, so multiple relay workers never
// publish the same row twice.
type OutboxStore struct {
	db *DB
}

func NewOutboxStore(db *DB) *OutboxStore {
	return &OutboxStore{db: db}
}

// SaveEvents queues events for publication. It must be called in the same
// transaction that appends the events, so the log and the outbox stay
// consistent.
func (s *OutboxStore) SaveEvents(ctx context.Context, events []eventsrc.Event) error {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return fmt.Errorf("SaveEvents must be called within a transaction")
	}

	const stmt = `
        INSERT INTO outbox (event_id, aggregate_id, aggregate_type, event_type, payload, sequence, ts)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	batch := &pgx.Batch{}
	for _, evt := range events {
		payload, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("failed to marshal outbox payload for event %s: %w", evt.EventID(), err)
		}
		batch.Queue(stmt,
			evt.EventID(), evt.AggregateID(), evt.AggregateType(),
			evt.EventType(), payload, evt.Sequence(), evt.Timestamp())
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to queue event for publication: %w", err)
		}
	}
	return results.Close()
}

// ProcessOutboxBatch locks a batch of unpublished rows, runs processFunc on
// them and marks them published, all in one transaction. If processFunc
// fails nothing is marked and the rows become visible to the next worker.
func (s *OutboxStore) ProcessOutboxBatch(
	ctx context.Context,
	batchSize int,
	processFunc func(ctx context.Context, events []eventsrc.OutboxEvent) error,
) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin outbox transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	events, err := s.lockUnpublished(ctx, tx, batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	if err := processFunc(ctx, events); err != nil {
		return fmt.Errorf("outbox batch processing failed: %w", err)
	}

	if err := s.markPublished(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *OutboxStore) lockUnpublished(ctx context.Context, tx pgx.Tx, batchSize int) ([]eventsrc.OutboxEvent, error) {
	// Column order matches the eventsrc.OutboxEvent field order for
	// RowToStructByPos.
	const query = `
        SELECT event_id, aggregate_id, aggregate_type, event_type, payload, sequence, ts
        FROM outbox
        WHERE published = FALSE
        ORDER BY ts
        LIMIT $1
        FOR UPDATE SKIP LOCKED
    `
	rows, err := tx.Query(ctx, query, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to lock unpublished outbox rows: %w", err)
	}
	defer rows.Close()

	return pgx.CollectRows(rows, pgx.RowToStructByPos[eventsrc.OutboxEvent])
}

func (s *OutboxStore) markPublished(ctx context.Context, tx pgx.Tx, events []eventsrc.OutboxEvent) error {
	ids := make([]uuid.UUID, len(events))
	for i, evt := range events {
		ids[i] = evt.EventID
	}

	tag, err := tx.Exec(ctx, `UPDATE outbox SET published = TRUE WHERE event_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to mark outbox rows as published: %w", err)
	}
	if tag.RowsAffected() != int64(len(ids)) {
		// The rows are locked by this transaction, so a mismatch means the
		// table was mutated underneath us.
		return fmt.Errorf("consistency error: marked %d of %d outbox rows", tag.RowsAffected(), len(ids))
	}
	return nil
}
