package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tompro/payday/command"
	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/query/view"
)

// InvoiceLister lists invoice views by status. Implemented by the invoice
// view repository.
type InvoiceLister interface {
	ListInvoiceViewsByStatus(ctx context.Context, status string, limit int) ([]view.InvoiceView, error)
}

const expirySweepBatch = 100

// ExpirySweeper periodically expires invoices whose expiry passed without a
// settlement. A settlement that races the sweep wins; expiring an already
// settled invoice is a no-op in the aggregate.
type ExpirySweeper struct {
	lister   InvoiceLister
	expirer  *command.ExpireInvoiceHandler
	interval time.Duration

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewExpirySweeper(
	lister InvoiceLister,
	expirer *command.ExpireInvoiceHandler,
	interval time.Duration,
) *ExpirySweeper {
	return &ExpirySweeper{
		lister:   lister,
		expirer:  expirer,
		interval: interval,
		quit:     make(chan struct{}),
	}
}

// Start begins the periodic sweep.
func (s *ExpirySweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		slog.InfoContext(ctx, "Expiry sweeper started", "interval", s.interval)
		for {
			select {
			case <-s.quit:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Stop signals the sweeper to stop and waits for a running sweep to finish.
func (s *ExpirySweeper) Stop() {
	close(s.quit)
	s.wg.Wait()
	slog.Info("Expiry sweeper stopped")
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	now := time.Now().UTC()
	invoices, err := s.lister.ListInvoiceViewsByStatus(ctx, string(model.InvoiceAwaitingPayment), expirySweepBatch)
	if err != nil {
		slog.ErrorContext(ctx, "Expiry sweep failed to list invoices", "error", err)
		return
	}

	for _, inv := range invoices {
		if now.Before(inv.ExpiresAt) {
			continue
		}
		applied, err := s.expirer.Handle(ctx, command.ExpireInvoice{InvoiceID: inv.ID, At: now})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to expire invoice", "invoiceID", inv.ID, "error", err)
			continue
		}
		if applied {
			slog.InfoContext(ctx, "Invoice expired", "invoiceID", inv.ID, "expiresAt", inv.ExpiresAt)
		}
	}
}
