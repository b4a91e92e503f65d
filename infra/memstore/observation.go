package memstore

import (
	"context"
	"sync"

	"github.com/tompro/payday/domain/model"
)

// ObservationStore is an in-memory reconcile.ObservationRecorder.
type ObservationStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
	list []model.PaymentObservation
}

func NewObservationStore() *ObservationStore {
	return &ObservationStore{seen: make(map[string]struct{})}
}

func (s *ObservationStore) RecordObservation(ctx context.Context, o model.PaymentObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(o.Kind) + "/" + o.Reference
	if _, ok := s.seen[key]; ok {
		return nil
	}
	s.seen[key] = struct{}{}
	s.list = append(s.list, o)
	return nil
}

// Observations returns a copy of all recorded sightings in insertion order.
func (s *ObservationStore) Observations() []model.PaymentObservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.PaymentObservation(nil), s.list...)
}
