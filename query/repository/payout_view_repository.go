package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tompro/payday/query/view"
)

// PayoutViewRepository maintains the payout read model. It also satisfies
// the cqrs.VersionedStore interface for the projection ordering check.
type PayoutViewRepository struct {
	pool *pgxpool.Pool
}

func NewPayoutViewRepository(pool *pgxpool.Pool) *PayoutViewRepository {
	return &PayoutViewRepository{pool: pool}
}

// GetSequence retrieves the sequence of the last event applied to the
// payout view. It satisfies the cqrs.VersionedStore interface.
func (r *PayoutViewRepository) GetSequence(ctx context.Context, aggregateID uuid.UUID) (int, error) {
	var sequence int
	query := `SELECT sequence FROM payout_views WHERE id = $1`
	err := r.pool.QueryRow(ctx, query, aggregateID).Scan(&sequence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil // Return 0 if the view doesn't exist yet.
		}
		return 0, fmt.Errorf("failed to get payout view sequence: %w", err)
	}
	return sequence, nil
}

// SavePayoutView inserts or updates the payout read model.
func (r *PayoutViewRepository) SavePayoutView(ctx context.Context, v view.PayoutView) error {
	query := `
        INSERT INTO payout_views (
            id, node_id, payment_request, payment_hash, currency, amount, fee,
            status, failure_reason, created_at, settled_at, sequence
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (id) DO UPDATE SET
            payment_hash = EXCLUDED.payment_hash,
            fee = EXCLUDED.fee,
            status = EXCLUDED.status,
            failure_reason = EXCLUDED.failure_reason,
            settled_at = EXCLUDED.settled_at,
            sequence = EXCLUDED.sequence
    `
	_, err := r.pool.Exec(ctx, query,
		v.ID, v.NodeID, v.PaymentRequest, v.PaymentHash, v.Currency, v.Amount, v.Fee,
		v.Status, v.FailureReason, v.CreatedAt, v.SettledAt, v.Sequence,
	)
	if err != nil {
		return fmt.Errorf("failed to save payout view: %w", err)
	}
	return nil
}

// GetPayoutViewByID retrieves the payout view by its ID.
func (r *PayoutViewRepository) GetPayoutViewByID(ctx context.Context, aggregateID uuid.UUID) (*view.PayoutView, error) {
	query := selectPayoutView + ` WHERE id = $1`
	v, err := scanPayoutView(r.pool.QueryRow(ctx, query, aggregateID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Return nil if the view doesn't exist yet.
		}
		return nil, fmt.Errorf("failed to get payout view by ID: %w", err)
	}
	return &v, nil
}

// ListPayoutViewsByStatus returns payouts in the given status, oldest first.
// The reconciler uses this at startup to resolve payouts that were still in
// flight when the process stopped.
func (r *PayoutViewRepository) ListPayoutViewsByStatus(
	ctx context.Context,
	status string,
	limit int,
) ([]view.PayoutView, error) {
	query := selectPayoutView + ` WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payout views by status: %w", err)
	}
	defer rows.Close()

	var views []view.PayoutView
	for rows.Next() {
		v, err := scanPayoutView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

const selectPayoutView = `
    SELECT id, node_id, payment_request, payment_hash, currency, amount, fee,
           status, failure_reason, created_at, settled_at, sequence
    FROM payout_views
`

func scanPayoutView(row pgx.Row) (view.PayoutView, error) {
	var v view.PayoutView
	err := row.Scan(
		&v.ID, &v.NodeID, &v.PaymentRequest, &v.PaymentHash, &v.Currency, &v.Amount, &v.Fee,
		&v.Status, &v.FailureReason, &v.CreatedAt, &v.SettledAt, &v.Sequence,
	)
	return v, err
}
