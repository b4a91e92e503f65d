package node

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/tompro/payday/payment"
)

// DevNode is an in-process node simulator for local development. It
// implements both LightningNode and OnChainNode. Invoices can be settled
// programmatically via SettleInvoice and deposits confirmed via
// ConfirmDeposit, which feed the respective subscriptions exactly like a
// real node would. Payments always succeed with a zero fee.
type DevNode struct {
	id string

	mu            sync.Mutex
	invoices      map[string]InvoiceRef
	settleIndex   uint64
	subscribers   []chan Settlement
	addresses     map[string]bool
	blockHeight   uint64
	txSubscribers []chan OnChainTxEvent
}

func NewDevNode(id string) *DevNode {
	return &DevNode{
		id:        id,
		invoices:  make(map[string]InvoiceRef),
		addresses: make(map[string]bool),
	}
}

func (n *DevNode) NodeID() string { return n.id }

func (n *DevNode) CreateInvoice(
	ctx context.Context,
	amount payment.Amount,
	memo string,
	ttl time.Duration,
) (InvoiceRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ref := InvoiceRef{
		RHash:          randomHex(32),
		PaymentRequest: "lndev1" + randomHex(16),
		ExpiresAt:      time.Now().UTC().Add(ttl),
	}
	n.invoices[ref.RHash] = ref
	return ref, nil
}

func (n *DevNode) Pay(ctx context.Context, paymentRequest string, amount payment.Amount) (AttemptResult, error) {
	return AttemptResult{
		PaymentHash: randomHex(32),
		State:       AttemptSucceeded,
		Fee:         payment.Zero(amount.Currency),
	}, nil
}

func (n *DevNode) SubscribeSettlements(ctx context.Context, sinceIndex uint64) (<-chan Settlement, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan Settlement, 16)
	n.subscribers = append(n.subscribers, ch)

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, sub := range n.subscribers {
			if sub == ch {
				n.subscribers = append(n.subscribers[:i], n.subscribers[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

func (n *DevNode) PaymentStatus(ctx context.Context, paymentHash string) (AttemptResult, error) {
	return AttemptResult{PaymentHash: paymentHash, State: AttemptSucceeded}, nil
}

// SettleInvoice simulates an incoming payment for a previously created
// invoice and notifies all settlement subscribers.
func (n *DevNode) SettleInvoice(rHash string, amount payment.Amount) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.invoices[rHash]; !ok {
		return fmt.Errorf("unknown invoice reference %s", rHash)
	}

	n.settleIndex++
	s := Settlement{
		RHash:       rHash,
		Amount:      amount,
		SettledAt:   time.Now().UTC(),
		SettleIndex: n.settleIndex,
	}
	for _, sub := range n.subscribers {
		sub <- s
	}
	return nil
}

func (n *DevNode) NewAddress(ctx context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	addr := "bcrt1" + randomHex(20)
	n.addresses[addr] = true
	return addr, nil
}

func (n *DevNode) SendCoins(ctx context.Context, amount payment.Amount, address string, satsPerVByte uint64) (string, error) {
	return randomHex(32), nil
}

func (n *DevNode) SubscribeTransactions(ctx context.Context, startHeight uint64) (<-chan OnChainTxEvent, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan OnChainTxEvent, 16)
	n.txSubscribers = append(n.txSubscribers, ch)

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, sub := range n.txSubscribers {
			if sub == ch {
				n.txSubscribers = append(n.txSubscribers[:i], n.txSubscribers[i+1:]...)
				close(ch)
				break
			}
		}
	}()

	return ch, nil
}

// ConfirmDeposit simulates a deeply confirmed on-chain deposit to a
// previously issued address and notifies all transaction subscribers.
func (n *DevNode) ConfirmDeposit(address string, amount payment.Amount) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.addresses[address] {
		return fmt.Errorf("unknown address %s", address)
	}

	n.blockHeight++
	tx := OnChainTxEvent{
		TxID:          randomHex(32),
		Address:       address,
		Amount:        amount,
		Confirmations: 6,
		BlockHeight:   n.blockHeight,
		Confirmed:     true,
		Timestamp:     time.Now().UTC(),
	}
	for _, sub := range n.txSubscribers {
		sub <- tx
	}
	return nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}
