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

// InvoiceViewRepository maintains the invoice read model. It also satisfies
// the cqrs.VersionedStore interface for the projection ordering check.
type InvoiceViewRepository struct {
	pool *pgxpool.Pool
}

func NewInvoiceViewRepository(pool *pgxpool.Pool) *InvoiceViewRepository {
	return &InvoiceViewRepository{pool: pool}
}

// GetSequence retrieves the sequence of the last event applied to the
// invoice view. It satisfies the cqrs.VersionedStore interface.
func (r *InvoiceViewRepository) GetSequence(ctx context.Context, aggregateID uuid.UUID) (int, error) {
	var sequence int
	query := `SELECT sequence FROM invoice_views WHERE id = $1`
	err := r.pool.QueryRow(ctx, query, aggregateID).Scan(&sequence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil // Return 0 if the view doesn't exist yet.
		}
		return 0, fmt.Errorf("failed to get invoice view sequence: %w", err)
	}
	return sequence, nil
}

// SaveInvoiceView inserts or updates the invoice read model.
func (r *InvoiceViewRepository) SaveInvoiceView(ctx context.Context, v view.InvoiceView) error {
	query := `
        INSERT INTO invoice_views (
            id, node_id, r_hash, payment_request, memo, currency,
            amount_requested, amount_received, overpaid, status, failure_reason,
            created_at, expires_at, settled_at, sequence
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
        ON CONFLICT (id) DO UPDATE SET
            amount_received = EXCLUDED.amount_received,
            overpaid = EXCLUDED.overpaid,
            status = EXCLUDED.status,
            failure_reason = EXCLUDED.failure_reason,
            settled_at = EXCLUDED.settled_at,
            sequence = EXCLUDED.sequence
    `
	_, err := r.pool.Exec(ctx, query,
		v.ID, v.NodeID, v.RHash, v.PaymentRequest, v.Memo, v.Currency,
		v.AmountRequested, v.AmountReceived, v.Overpaid, v.Status, v.FailureReason,
		v.CreatedAt, v.ExpiresAt, v.SettledAt, v.Sequence,
	)
	if err != nil {
		return fmt.Errorf("failed to save invoice view: %w", err)
	}
	return nil
}

// GetInvoiceViewByID retrieves the invoice view by its ID.
func (r *InvoiceViewRepository) GetInvoiceViewByID(ctx context.Context, aggregateID uuid.UUID) (*view.InvoiceView, error) {
	query := selectInvoiceView + ` WHERE id = $1`
	return r.queryOne(ctx, query, aggregateID)
}

// GetInvoiceViewByRHash resolves the node's external invoice reference to
// the owning invoice. Used by the settlement reconciler.
func (r *InvoiceViewRepository) GetInvoiceViewByRHash(ctx context.Context, rHash string) (*view.InvoiceView, error) {
	query := selectInvoiceView + ` WHERE r_hash = $1`
	return r.queryOne(ctx, query, rHash)
}

// ListInvoiceViewsByStatus returns invoices in the given status, oldest first.
func (r *InvoiceViewRepository) ListInvoiceViewsByStatus(
	ctx context.Context,
	status string,
	limit int,
) ([]view.InvoiceView, error) {
	query := selectInvoiceView + ` WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice views by status: %w", err)
	}
	defer rows.Close()

	var views []view.InvoiceView
	for rows.Next() {
		v, err := scanInvoiceView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

const selectInvoiceView = `
    SELECT id, node_id, r_hash, payment_request, memo, currency,
           amount_requested, amount_received, overpaid, status, failure_reason,
           created_at, expires_at, settled_at, sequence
    FROM invoice_views
`

func (r *InvoiceViewRepository) queryOne(ctx context.Context, query string, arg any) (*view.InvoiceView, error) {
	v, err := scanInvoiceView(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Return nil if the view doesn't exist yet.
		}
		return nil, fmt.Errorf("failed to get invoice view: %w", err)
	}
	return &v, nil
}

func scanInvoiceView(row pgx.Row) (view.InvoiceView, error) {
	var v view.InvoiceView
	err := row.Scan(
		&v.ID, &v.NodeID, &v.RHash, &v.PaymentRequest, &v.Memo, &v.Currency,
		&v.AmountRequested, &v.AmountReceived, &v.Overpaid, &v.Status, &v.FailureReason,
		&v.CreatedAt, &v.ExpiresAt, &v.SettledAt, &v.Sequence,
	)
	return v, err
}
