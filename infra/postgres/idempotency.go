package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// IdempotencyStore records which events each subscriber has already applied.
// It implements cqrs.IdempotencyStore on the processed_events table.
type IdempotencyStore struct {
	db *DB
}

func NewIdempotencyStore(db *DB) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// IsProcessed reports whether the subscriber has already applied the event.
func (s *IdempotencyStore) IsProcessed(ctx context.Context, eventID uuid.UUID, subscriberID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1 AND subscriber_id = $2)`

	var processed bool
	if err := s.db.Pool.QueryRow(ctx, query, eventID, subscriberID).Scan(&processed); err != nil {
		return false, fmt.Errorf("failed to check processed event %s for %s: %w", eventID, subscriberID, err)
	}
	return processed, nil
}

// MarkAsProcessed records the event for the subscriber. It must run inside
// the same transaction as the view update so the two commit or roll back
// together. A unique violation means a concurrent consumer won the race,
// which is equivalent to success.
func (s *IdempotencyStore) MarkAsProcessed(ctx context.Context, eventID uuid.UUID, subscriberID string) error {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return fmt.Errorf("MarkAsProcessed must be called within a transaction")
	}

	const query = `INSERT INTO processed_events (event_id, subscriber_id) VALUES ($1, $2)`
	if _, err := tx.Exec(ctx, query, eventID, subscriberID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil
		}
		return fmt.Errorf("failed to mark event %s as processed for %s: %w", eventID, subscriberID, err)
	}
	return nil
}
