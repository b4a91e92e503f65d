package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tompro/payday/cqrs"
	"github.com/tompro/payday/domain/aggregate"
	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/domain/repository"
	"github.com/tompro/payday/eventsrc"
	"github.com/tompro/payday/node"
	"github.com/tompro/payday/payment"
)

// CreateInvoice is the command for registering a new incoming invoice.
type CreateInvoice struct {
	ID     uuid.UUID
	Amount payment.Amount
	Memo   string
	TTL    time.Duration
}

// CreateInvoiceHandler handles the CreateInvoice command.
type CreateInvoiceHandler struct {
	repo       *repository.InvoiceRepository
	transactor cqrs.Transactor
	node       node.LightningNode
}

func NewCreateInvoiceHandler(
	repo *repository.InvoiceRepository,
	transactor cqrs.Transactor,
	ln node.LightningNode,
) *CreateInvoiceHandler {
	return &CreateInvoiceHandler{
		repo:       repo,
		transactor: transactor,
		node:       ln,
	}
}

// Handle registers the invoice on the node first so InvoiceCreated carries
// the real external reference. If the node call fails, no event is appended.
func (h *CreateInvoiceHandler) Handle(ctx context.Context, cmd CreateInvoice) (model.Invoice, error) {
	slog.InfoContext(ctx, "Handling CreateInvoice", "invoiceID", cmd.ID, "amount", cmd.Amount.String())

	ref, err := h.node.CreateInvoice(ctx, cmd.Amount, cmd.Memo, cmd.TTL)
	if err != nil {
		return model.Invoice{}, fmt.Errorf("node failed to create invoice %s: %w", cmd.ID, err)
	}

	var created model.Invoice
	err = h.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		a := aggregate.NewInvoiceAggregateEmpty()
		if err := a.Create(txCtx, cmd.ID, aggregate.CreateInvoiceParams{
			NodeID:         h.node.NodeID(),
			RHash:          ref.RHash,
			PaymentRequest: ref.PaymentRequest,
			Memo:           cmd.Memo,
			Amount:         cmd.Amount,
			ExpiresAt:      ref.ExpiresAt,
		}); err != nil {
			return fmt.Errorf("track invoice creation failed: %w", err)
		}
		if err := h.repo.Save(txCtx, a); err != nil {
			return err
		}
		created = a.Invoice
		return nil
	})
	if err != nil {
		// A concurrency conflict on creation means the id is already taken.
		// Reloading would not make the command valid, so there is no retry.
		var conflict eventsrc.ErrConcurrency
		if errors.As(err, &conflict) {
			return model.Invoice{}, fmt.Errorf("%w: invoice %s already exists", ErrConflict, cmd.ID)
		}
		slog.ErrorContext(ctx, "Failed to handle CreateInvoice", "error", err, "invoiceID", cmd.ID)
		return model.Invoice{}, err
	}

	slog.InfoContext(ctx, "Invoice created", "invoiceID", cmd.ID, "rHash", ref.RHash)
	return created, nil
}
