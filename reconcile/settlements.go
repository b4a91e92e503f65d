// Package reconcile keeps the event-sourced core in sync with the node. It
// consumes the node's asynchronous notifications and turns them into
// commands, resuming from durable cursors after a restart. All commands it
// issues are idempotent, so redelivery after a crash is harmless.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tompro/payday/command"
	"github.com/tompro/payday/cqrs"
	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/node"
	"github.com/tompro/payday/query/view"
)

// InvoiceLookup resolves node references to invoice views. Implemented by
// the invoice view repository.
type InvoiceLookup interface {
	GetInvoiceViewByRHash(ctx context.Context, rHash string) (*view.InvoiceView, error)
}

// SettlementConsumerID is the offset store key for the Lightning settlement
// cursor.
const SettlementConsumerID = "lightning-settlements"

// lookupMaxElapsed bounds how long a settlement waits for the projection to
// catch up before the notification is dropped.
const lookupMaxElapsed = 30 * time.Second

// SettlementReconciler consumes the node's settlement subscription and
// settles the owning invoices.
type SettlementReconciler struct {
	ln           node.LightningNode
	lookup       InvoiceLookup
	settler      *command.SettleInvoiceHandler
	offsets      cqrs.OffsetStore
	observations ObservationRecorder

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewSettlementReconciler(
	ln node.LightningNode,
	lookup InvoiceLookup,
	settler *command.SettleInvoiceHandler,
	offsets cqrs.OffsetStore,
	observations ObservationRecorder,
) *SettlementReconciler {
	return &SettlementReconciler{
		ln:           ln,
		lookup:       lookup,
		settler:      settler,
		offsets:      offsets,
		observations: observations,
		quit:         make(chan struct{}),
	}
}

// Start resumes the settlement subscription from the stored settle index and
// processes notifications until Stop is called or ctx ends.
func (r *SettlementReconciler) Start(ctx context.Context) error {
	sinceIndex, err := r.offsets.GetOffset(ctx, SettlementConsumerID)
	if err != nil {
		return fmt.Errorf("failed to load settle index: %w", err)
	}

	settlements, err := r.ln.SubscribeSettlements(ctx, sinceIndex)
	if err != nil {
		return fmt.Errorf("failed to subscribe to settlements: %w", err)
	}

	slog.InfoContext(ctx, "Settlement reconciler started",
		"nodeID", r.ln.NodeID(), "sinceIndex", sinceIndex)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.quit:
				return
			case <-ctx.Done():
				return
			case s, ok := <-settlements:
				if !ok {
					slog.WarnContext(ctx, "Settlement subscription closed")
					return
				}
				r.process(ctx, s)
			}
		}
	}()
	return nil
}

// Stop signals the reconciler to stop and waits for in-flight processing.
func (r *SettlementReconciler) Stop() {
	close(r.quit)
	r.wg.Wait()
	slog.Info("Settlement reconciler stopped")
}

// process settles the invoice owning the notification and advances the
// durable settle index. The index advances even when the reference cannot be
// resolved so one broken notification does not wedge the subscription; the
// payment is recorded as an unexpected-settlement observation instead.
func (r *SettlementReconciler) process(ctx context.Context, s node.Settlement) {
	invoiceView, err := r.resolveRHash(ctx, s.RHash)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to resolve settlement reference",
			"rHash", s.RHash, "settleIndex", s.SettleIndex, "error", err)
		recordObservation(ctx, r.observations, model.PaymentObservation{
			Kind:       model.ObservationUnexpectedSettlement,
			Reference:  s.RHash,
			Amount:     s.Amount,
			ObservedAt: s.SettledAt,
		})
	} else {
		applied, err := r.settler.Handle(ctx, command.SettleInvoice{
			InvoiceID: invoiceView.ID,
			Received:  s.Amount,
			SettledAt: s.SettledAt,
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to settle invoice",
				"invoiceID", invoiceView.ID, "rHash", s.RHash, "error", err)
			return // Leave the cursor so the notification is redelivered.
		}
		if applied {
			slog.InfoContext(ctx, "Invoice settled from node notification",
				"invoiceID", invoiceView.ID, "amount", s.Amount, "settleIndex", s.SettleIndex)
		}
	}

	if err := r.offsets.SetOffset(ctx, SettlementConsumerID, s.SettleIndex); err != nil {
		slog.ErrorContext(ctx, "Failed to persist settle index",
			"settleIndex", s.SettleIndex, "error", err)
	}
}

// resolveRHash maps the node reference to an invoice view, retrying with
// backoff while the projection catches up to a just-created invoice.
func (r *SettlementReconciler) resolveRHash(ctx context.Context, rHash string) (*view.InvoiceView, error) {
	return resolveInvoiceRef(ctx, r.lookup, rHash)
}

func resolveInvoiceRef(ctx context.Context, lookup InvoiceLookup, rHash string) (*view.InvoiceView, error) {
	return backoff.Retry(
		ctx,
		func() (*view.InvoiceView, error) {
			v, err := lookup.GetInvoiceViewByRHash(ctx, rHash)
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			if v == nil {
				return nil, fmt.Errorf("no invoice for reference %s", rHash)
			}
			return v, nil
		},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(lookupMaxElapsed),
	)
}
