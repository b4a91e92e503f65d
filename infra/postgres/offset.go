package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// OffsetStore implements the cqrs.OffsetStore for PostgreSQL.
type OffsetStore struct {
	db *DB
}

func NewOffsetStore(db *DB) *OffsetStore {
	return &OffsetStore{db: db}
}

// GetOffset returns the consumer's current offset, 0 if none is stored.
func (s *OffsetStore) GetOffset(ctx context.Context, consumerID string) (uint64, error) {
	var offset uint64
	query := `SELECT current_offset FROM offsets WHERE id = $1`
	err := s.db.Pool.QueryRow(ctx, query, consumerID).Scan(&offset)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load offset for consumer %s: %w", consumerID, err)
	}
	return offset, nil
}

// SetOffset advances the consumer's offset. The GREATEST guard keeps the
// stored offset monotonic when notifications arrive out of order.
func (s *OffsetStore) SetOffset(ctx context.Context, consumerID string, offset uint64) error {
	query := `
        INSERT INTO offsets (id, current_offset)
        VALUES ($1, $2)
        ON CONFLICT (id) DO UPDATE
        SET current_offset = GREATEST(offsets.current_offset, EXCLUDED.current_offset)
    `
	if _, err := s.db.Pool.Exec(ctx, query, consumerID, offset); err != nil {
		return fmt.Errorf("failed to store offset for consumer %s: %w", consumerID, err)
	}
	return nil
}
