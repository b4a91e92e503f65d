package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tompro/payday/command"
	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/node"
)

// BlockHeightStore is the durable cursor of the on-chain transaction
// subscription, one height per node.
type BlockHeightStore interface {
	GetBlockHeight(ctx context.Context, nodeID string) (uint64, error)
	SetBlockHeight(ctx context.Context, nodeID string, height uint64) error
}

// minConfirmations is how deep a transaction must be before it settles an
// invoice.
const minConfirmations = 3

// OnChainReconciler consumes the on-chain transaction subscription and
// settles invoices whose receive address was paid. On-chain invoices carry
// their address as the node reference, so confirmed transactions resolve
// through the same lookup as Lightning settlements.
type OnChainReconciler struct {
	chain        node.OnChainNode
	lookup       InvoiceLookup
	settler      *command.SettleInvoiceHandler
	heights      BlockHeightStore
	observations ObservationRecorder

	quit chan struct{}
	wg   sync.WaitGroup
}

func NewOnChainReconciler(
	chain node.OnChainNode,
	lookup InvoiceLookup,
	settler *command.SettleInvoiceHandler,
	heights BlockHeightStore,
	observations ObservationRecorder,
) *OnChainReconciler {
	return &OnChainReconciler{
		chain:        chain,
		lookup:       lookup,
		settler:      settler,
		heights:      heights,
		observations: observations,
		quit:         make(chan struct{}),
	}
}

// Start resumes the transaction subscription from the last scanned height
// and processes events until Stop is called or ctx ends.
func (r *OnChainReconciler) Start(ctx context.Context) error {
	height, err := r.heights.GetBlockHeight(ctx, r.chain.NodeID())
	if err != nil {
		return fmt.Errorf("failed to load block height: %w", err)
	}

	txs, err := r.chain.SubscribeTransactions(ctx, height)
	if err != nil {
		return fmt.Errorf("failed to subscribe to transactions: %w", err)
	}

	slog.InfoContext(ctx, "On-chain reconciler started",
		"nodeID", r.chain.NodeID(), "startHeight", height)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.quit:
				return
			case <-ctx.Done():
				return
			case tx, ok := <-txs:
				if !ok {
					slog.WarnContext(ctx, "Transaction subscription closed")
					return
				}
				r.process(ctx, tx)
			}
		}
	}()
	return nil
}

// Stop signals the reconciler to stop and waits for in-flight processing.
func (r *OnChainReconciler) Stop() {
	close(r.quit)
	r.wg.Wait()
	slog.Info("On-chain reconciler stopped")
}

func (r *OnChainReconciler) process(ctx context.Context, tx node.OnChainTxEvent) {
	if !tx.Confirmed || tx.Confirmations < minConfirmations {
		// Not actionable yet, but the sighting itself is worth keeping: it
		// tells the operator money is on the way.
		recordObservation(ctx, r.observations, model.PaymentObservation{
			Kind:       model.ObservationUnconfirmedDeposit,
			Reference:  tx.TxID,
			Amount:     tx.Amount,
			Details:    fmt.Sprintf("address %s, %d confirmations", tx.Address, tx.Confirmations),
			ObservedAt: tx.Timestamp,
		})
		return
	}

	invoiceView, err := resolveInvoiceRef(ctx, r.lookup, tx.Address)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to resolve on-chain address",
			"txID", tx.TxID, "address", tx.Address, "error", err)
		recordObservation(ctx, r.observations, model.PaymentObservation{
			Kind:       model.ObservationUnexpectedDeposit,
			Reference:  tx.TxID,
			Amount:     tx.Amount,
			Details:    "address " + tx.Address,
			ObservedAt: tx.Timestamp,
		})
	} else {
		applied, err := r.settler.Handle(ctx, command.SettleInvoice{
			InvoiceID: invoiceView.ID,
			Received:  tx.Amount,
			SettledAt: tx.Timestamp,
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to settle invoice from on-chain tx",
				"invoiceID", invoiceView.ID, "txID", tx.TxID, "error", err)
			return // Leave the cursor so the event is redelivered.
		}
		if applied {
			slog.InfoContext(ctx, "Invoice settled from on-chain transaction",
				"invoiceID", invoiceView.ID, "txID", tx.TxID, "amount", tx.Amount)
		}
	}

	if tx.BlockHeight > 0 {
		if err := r.heights.SetBlockHeight(ctx, r.chain.NodeID(), tx.BlockHeight); err != nil {
			slog.ErrorContext(ctx, "Failed to persist block height",
				"height", tx.BlockHeight, "error", err)
		}
	}
}

