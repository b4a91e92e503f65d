package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// BlockHeightStore tracks the last scanned chain height per on-chain node so
// transaction subscriptions can resume after a restart.
type BlockHeightStore struct {
	db *DB
}

func NewBlockHeightStore(db *DB) *BlockHeightStore {
	return &BlockHeightStore{db: db}
}

// GetBlockHeight returns the last scanned height for a node, 0 if none is stored.
func (s *BlockHeightStore) GetBlockHeight(ctx context.Context, nodeID string) (uint64, error) {
	var height uint64
	query := `SELECT block_height FROM block_heights WHERE node_id = $1`
	err := s.db.Pool.QueryRow(ctx, query, nodeID).Scan(&height)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load block height for node %s: %w", nodeID, err)
	}
	return height, nil
}

// SetBlockHeight records the last scanned height for a node.
func (s *BlockHeightStore) SetBlockHeight(ctx context.Context, nodeID string, height uint64) error {
	query := `
        INSERT INTO block_heights (node_id, block_height)
        VALUES ($1, $2)
        ON CONFLICT (node_id) DO UPDATE
        SET block_height = GREATEST(block_heights.block_height, EXCLUDED.block_height)
    `
	if _, err := s.db.Pool.Exec(ctx, query, nodeID, height); err != nil {
		return fmt.Errorf("failed to store block height for node %s: %w", nodeID, err)
	}
	return nil
}
