package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tompro/payday/node"
	"github.com/tompro/payday/payment"
)

// MockLightningNode is a scriptable node.LightningNode test double. Each
// behavior can be overridden per test; unset behaviors return sensible
// defaults. Calls are recorded for assertions.
type MockLightningNode struct {
	mu sync.Mutex

	CreateInvoiceFn func(ctx context.Context, amount payment.Amount, memo string, ttl time.Duration) (node.InvoiceRef, error)
	PayFn           func(ctx context.Context, paymentRequest string, amount payment.Amount) (node.AttemptResult, error)
	StatusFn        func(ctx context.Context, paymentHash string) (node.AttemptResult, error)

	CreateInvoiceCalls int
	PayCalls           int
	StatusCalls        int

	settlements chan node.Settlement
	settleIndex uint64
}

func NewMockLightningNode() *MockLightningNode {
	return &MockLightningNode{settlements: make(chan node.Settlement, 16)}
}

func (m *MockLightningNode) NodeID() string { return "mock-node" }

func (m *MockLightningNode) CreateInvoice(
	ctx context.Context,
	amount payment.Amount,
	memo string,
	ttl time.Duration,
) (node.InvoiceRef, error) {
	m.mu.Lock()
	m.CreateInvoiceCalls++
	n := m.CreateInvoiceCalls
	fn := m.CreateInvoiceFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, amount, memo, ttl)
	}
	return node.InvoiceRef{
		RHash:          fmt.Sprintf("rhash-%d", n),
		PaymentRequest: fmt.Sprintf("lnbc-%d", n),
		ExpiresAt:      time.Now().UTC().Add(ttl),
	}, nil
}

func (m *MockLightningNode) Pay(
	ctx context.Context,
	paymentRequest string,
	amount payment.Amount,
) (node.AttemptResult, error) {
	m.mu.Lock()
	m.PayCalls++
	n := m.PayCalls
	fn := m.PayFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, paymentRequest, amount)
	}
	return node.AttemptResult{
		PaymentHash: fmt.Sprintf("hash-%d", n),
		State:       node.AttemptSucceeded,
		Fee:         payment.Zero(amount.Currency),
	}, nil
}

func (m *MockLightningNode) SubscribeSettlements(
	ctx context.Context,
	sinceIndex uint64,
) (<-chan node.Settlement, error) {
	return m.settlements, nil
}

func (m *MockLightningNode) PaymentStatus(ctx context.Context, paymentHash string) (node.AttemptResult, error) {
	m.mu.Lock()
	m.StatusCalls++
	fn := m.StatusFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, paymentHash)
	}
	return node.AttemptResult{PaymentHash: paymentHash, State: node.AttemptSucceeded}, nil
}

// EmitSettlement pushes a settlement notification to subscribers with the
// next settle index.
func (m *MockLightningNode) EmitSettlement(rHash string, amount payment.Amount) node.Settlement {
	m.mu.Lock()
	m.settleIndex++
	s := node.Settlement{
		RHash:       rHash,
		Amount:      amount,
		SettledAt:   time.Now().UTC(),
		SettleIndex: m.settleIndex,
	}
	m.mu.Unlock()

	m.settlements <- s
	return s
}

// CloseSettlements closes the settlement channel, simulating the node
// dropping the subscription.
func (m *MockLightningNode) CloseSettlements() {
	close(m.settlements)
}
