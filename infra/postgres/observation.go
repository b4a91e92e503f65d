package postgres

import (
	"context"
	"fmt"

	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/payment"
)

// ObservationStore persists payment sightings that no aggregate owns. Kind
// plus reference is the primary key, so redelivered sightings of the same
// payment collapse into one row.
type ObservationStore struct {
	db *DB
}

func NewObservationStore(db *DB) *ObservationStore {
	return &ObservationStore{db: db}
}

// RecordObservation stores a sighting. Recording the same kind and
// reference twice is a no-op.
func (s *ObservationStore) RecordObservation(ctx context.Context, o model.PaymentObservation) error {
	query := `
        INSERT INTO payment_observations (kind, reference, currency, amount, details, observed_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (kind, reference) DO NOTHING
    `
	_, err := s.db.Pool.Exec(ctx, query,
		o.Kind, o.Reference, o.Amount.Currency, o.Amount.Value, o.Details, o.ObservedAt)
	if err != nil {
		return fmt.Errorf("failed to record payment observation %s/%s: %w", o.Kind, o.Reference, err)
	}
	return nil
}

// ListObservationsByKind returns stored sightings of one kind, oldest first.
func (s *ObservationStore) ListObservationsByKind(
	ctx context.Context,
	kind model.ObservationKind,
	limit int,
) ([]model.PaymentObservation, error) {
	query := `
        SELECT kind, reference, currency, amount, details, observed_at
        FROM payment_observations
        WHERE kind = $1
        ORDER BY observed_at ASC
        LIMIT $2
    `
	rows, err := s.db.Pool.Query(ctx, query, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment observations: %w", err)
	}
	defer rows.Close()

	var observations []model.PaymentObservation
	for rows.Next() {
		var o model.PaymentObservation
		var currency string
		if err := rows.Scan(&o.Kind, &o.Reference, &currency, &o.Amount.Value, &o.Details, &o.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment observation: %w", err)
		}
		o.Amount.Currency = payment.Currency(currency)
		observations = append(observations, o)
	}
	return observations, rows.Err()
}
