package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tompro/payday/cqrs"
	"github.com/tompro/payday/domain/repository"
)

// ExpireInvoice marks an invoice whose expiry has passed without settlement.
type ExpireInvoice struct {
	InvoiceID uuid.UUID
	At        time.Time
}

// ExpireInvoiceHandler handles the ExpireInvoice command.
type ExpireInvoiceHandler struct {
	repo       *repository.InvoiceRepository
	transactor cqrs.Transactor
}

func NewExpireInvoiceHandler(repo *repository.InvoiceRepository, transactor cqrs.Transactor) *ExpireInvoiceHandler {
	return &ExpireInvoiceHandler{repo: repo, transactor: transactor}
}

// Handle expires the invoice. A settlement that won the race is respected:
// expiring an already terminal invoice reports a no-op, not an error.
func (h *ExpireInvoiceHandler) Handle(ctx context.Context, cmd ExpireInvoice) (bool, error) {
	var applied bool
	err := withConflictRetry(ctx, func(ctx context.Context) error {
		return h.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
			a, err := h.repo.Load(txCtx, cmd.InvoiceID)
			if err != nil {
				return err
			}

			applied, err = a.Expire(txCtx, cmd.At)
			if err != nil {
				return err
			}
			if !applied {
				slog.DebugContext(txCtx, "Expiry skipped, invoice already terminal",
					"invoiceID", cmd.InvoiceID, "status", a.Invoice.Status)
				return nil
			}
			return h.repo.Save(txCtx, a)
		})
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to handle ExpireInvoice", "error", err, "invoiceID", cmd.InvoiceID)
		return false, err
	}
	return applied, nil
}
