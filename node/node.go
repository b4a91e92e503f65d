// Package node defines the capability interfaces the payment core depends on.
// One implementation exists per node vendor, selected at startup via
// configuration; the core never inspects the concrete type.
package node

import (
	"context"
	"time"

	"github.com/tompro/payday/payment"
)

// InvoiceRef is the node's view of a freshly created invoice. RHash is the
// opaque external reference later settlement notifications are keyed by.
type InvoiceRef struct {
	RHash          string
	PaymentRequest string
	ExpiresAt      time.Time
}

// Settlement is an asynchronous notification that an invoice was paid.
// SettleIndex is the node's monotonically increasing settlement cursor,
// persisted by the reconciler so a subscription can resume after restart.
type Settlement struct {
	RHash       string
	Amount      payment.Amount
	SettledAt   time.Time
	SettleIndex uint64
}

// AttemptState is the node-reported state of an outgoing payment attempt.
type AttemptState string

const (
	AttemptInFlight  AttemptState = "in_flight"
	AttemptSucceeded AttemptState = "succeeded"
	AttemptFailed    AttemptState = "failed"
)

// AttemptResult is the outcome of submitting or polling an outgoing payment.
type AttemptResult struct {
	PaymentHash string
	State       AttemptState
	Reason      payment.FailureReason
	Fee         payment.Amount
}

// LightningNode is the capability set the core requires from a Lightning
// node backend.
type LightningNode interface {
	// NodeID identifies the node instance this client talks to.
	NodeID() string
	// CreateInvoice registers a new invoice on the node and returns its
	// external reference.
	CreateInvoice(ctx context.Context, amount payment.Amount, memo string, ttl time.Duration) (InvoiceRef, error)
	// Pay submits an outgoing payment attempt. The attempt may still complete
	// on the node after the caller gives up; callers must durably record the
	// attempt before invoking this.
	Pay(ctx context.Context, paymentRequest string, amount payment.Amount) (AttemptResult, error)
	// SubscribeSettlements streams settlement notifications with a settle
	// index greater than sinceIndex. The channel is closed when ctx ends.
	SubscribeSettlements(ctx context.Context, sinceIndex uint64) (<-chan Settlement, error)
	// PaymentStatus reports the current state of a previously submitted
	// payment, used to resolve in-flight attempts after a restart.
	PaymentStatus(ctx context.Context, paymentHash string) (AttemptResult, error)
}

// OnChainTxEvent is an observed on-chain transaction touching one of our
// addresses. Confirmed events feed the same reconciliation path as Lightning
// settlements.
type OnChainTxEvent struct {
	TxID          string
	Address       string
	Amount        payment.Amount
	Confirmations uint32
	BlockHeight   uint64
	Confirmed     bool
	Timestamp     time.Time
}

// OnChainNode is the capability set for on-chain settlement sources.
type OnChainNode interface {
	NodeID() string
	// NewAddress returns a fresh receive address for the wallet.
	NewAddress(ctx context.Context) (string, error)
	// SendCoins broadcasts an on-chain send and returns the transaction id.
	SendCoins(ctx context.Context, amount payment.Amount, address string, satsPerVByte uint64) (string, error)
	// SubscribeTransactions streams wallet-relevant transaction events
	// starting at startHeight. The channel is closed when ctx ends.
	SubscribeTransactions(ctx context.Context, startHeight uint64) (<-chan OnChainTxEvent, error)
}
