package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tompro/payday/cqrs"
	"github.com/tompro/payday/domain/repository"
	"github.com/tompro/payday/payment"
)

// SettleInvoice records a settlement observed on the node against the owning
// invoice aggregate. It is issued by the reconciler, never directly by
// clients.
type SettleInvoice struct {
	InvoiceID uuid.UUID
	Received  payment.Amount
	SettledAt time.Time
}

// SettleInvoiceHandler handles the SettleInvoice command.
type SettleInvoiceHandler struct {
	repo       *repository.InvoiceRepository
	transactor cqrs.Transactor
}

func NewSettleInvoiceHandler(repo *repository.InvoiceRepository, transactor cqrs.Transactor) *SettleInvoiceHandler {
	return &SettleInvoiceHandler{repo: repo, transactor: transactor}
}

// Handle applies the settlement under optimistic concurrency with bounded
// retries. The returned bool reports whether the settlement had any effect;
// a redelivered notification against an already terminal invoice is a no-op.
func (h *SettleInvoiceHandler) Handle(ctx context.Context, cmd SettleInvoice) (bool, error) {
	var applied bool
	err := withConflictRetry(ctx, func(ctx context.Context) error {
		return h.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
			a, err := h.repo.Load(txCtx, cmd.InvoiceID)
			if err != nil {
				return err
			}

			applied, err = a.Settle(txCtx, cmd.Received, cmd.SettledAt)
			if err != nil {
				return fmt.Errorf("track invoice settlement failed: %w", err)
			}
			if !applied {
				slog.WarnContext(txCtx, "Duplicate settlement notification ignored",
					"invoiceID", cmd.InvoiceID, "status", a.Invoice.Status)
				return nil
			}
			return h.repo.Save(txCtx, a)
		})
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to handle SettleInvoice", "error", err, "invoiceID", cmd.InvoiceID)
		return false, err
	}
	return applied, nil
}
