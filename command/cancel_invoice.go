package command

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tompro/payday/cqrs"
	"github.com/tompro/payday/domain/repository"
)

// CancelInvoice voids an invoice that is still awaiting payment, e.g. when
// an order is abandoned. Canceling a settled invoice is an invalid
// transition and is rejected.
type CancelInvoice struct {
	InvoiceID uuid.UUID
	Reason    string
}

// CancelInvoiceHandler handles the CancelInvoice command.
type CancelInvoiceHandler struct {
	repo       *repository.InvoiceRepository
	transactor cqrs.Transactor
}

func NewCancelInvoiceHandler(repo *repository.InvoiceRepository, transactor cqrs.Transactor) *CancelInvoiceHandler {
	return &CancelInvoiceHandler{repo: repo, transactor: transactor}
}

func (h *CancelInvoiceHandler) Handle(ctx context.Context, cmd CancelInvoice) (bool, error) {
	var applied bool
	err := withConflictRetry(ctx, func(ctx context.Context) error {
		return h.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
			a, err := h.repo.Load(txCtx, cmd.InvoiceID)
			if err != nil {
				return err
			}

			applied, err = a.Cancel(txCtx, cmd.Reason)
			if err != nil {
				return err
			}
			if !applied {
				return nil
			}
			return h.repo.Save(txCtx, a)
		})
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to handle CancelInvoice", "error", err, "invoiceID", cmd.InvoiceID)
		return false, err
	}
	return applied, nil
}
