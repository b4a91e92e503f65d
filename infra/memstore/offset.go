package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// OffsetStore is an in-memory cqrs.OffsetStore.
type OffsetStore struct {
	mu      sync.Mutex
	offsets map[string]uint64
}

func NewOffsetStore() *OffsetStore {
	return &OffsetStore{offsets: make(map[string]uint64)}
}

func (s *OffsetStore) GetOffset(ctx context.Context, consumerID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offsets[consumerID], nil
}

func (s *OffsetStore) SetOffset(ctx context.Context, consumerID string, offset uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset > s.offsets[consumerID] {
		s.offsets[consumerID] = offset
	}
	return nil
}

// BlockHeightStore is an in-memory reconcile.BlockHeightStore.
type BlockHeightStore struct {
	mu      sync.Mutex
	heights map[string]uint64
}

func NewBlockHeightStore() *BlockHeightStore {
	return &BlockHeightStore{heights: make(map[string]uint64)}
}

func (s *BlockHeightStore) GetBlockHeight(ctx context.Context, nodeID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heights[nodeID], nil
}

func (s *BlockHeightStore) SetBlockHeight(ctx context.Context, nodeID string, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if height > s.heights[nodeID] {
		s.heights[nodeID] = height
	}
	return nil
}

// IdempotencyStore is an in-memory cqrs.IdempotencyStore.
type IdempotencyStore struct {
	mu        sync.Mutex
	processed map[string]struct{}
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{processed: make(map[string]struct{})}
}

func (s *IdempotencyStore) IsProcessed(ctx context.Context, eventID uuid.UUID, subscriberID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[eventID.String()+"/"+subscriberID]
	return ok, nil
}

func (s *IdempotencyStore) MarkAsProcessed(ctx context.Context, eventID uuid.UUID, subscriberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[eventID.String()+"/"+subscriberID] = struct{}{}
	return nil
}
