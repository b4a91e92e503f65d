package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tompro/payday/node"
	"github.com/tompro/payday/payment"
)

// MockOnChainNode is a scriptable node.OnChainNode test double. Transaction
// events are pushed through EmitTransaction; addresses and sends are
// recorded for assertions.
type MockOnChainNode struct {
	mu sync.Mutex

	SendCoinsFn func(ctx context.Context, amount payment.Amount, address string, satsPerVByte uint64) (string, error)

	NewAddressCalls int
	SendCoinsCalls  int

	txs    chan node.OnChainTxEvent
	height uint64
}

func NewMockOnChainNode() *MockOnChainNode {
	return &MockOnChainNode{txs: make(chan node.OnChainTxEvent, 16)}
}

func (m *MockOnChainNode) NodeID() string { return "mock-chain-node" }

func (m *MockOnChainNode) NewAddress(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.NewAddressCalls++
	n := m.NewAddressCalls
	m.mu.Unlock()

	return fmt.Sprintf("bcrt1-addr-%d", n), nil
}

func (m *MockOnChainNode) SendCoins(
	ctx context.Context,
	amount payment.Amount,
	address string,
	satsPerVByte uint64,
) (string, error) {
	m.mu.Lock()
	m.SendCoinsCalls++
	n := m.SendCoinsCalls
	fn := m.SendCoinsFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, amount, address, satsPerVByte)
	}
	return fmt.Sprintf("txid-%d", n), nil
}

func (m *MockOnChainNode) SubscribeTransactions(
	ctx context.Context,
	startHeight uint64,
) (<-chan node.OnChainTxEvent, error) {
	return m.txs, nil
}

// EmitTransaction pushes a transaction event to subscribers. Confirmed
// events get the next block height.
func (m *MockOnChainNode) EmitTransaction(address string, amount payment.Amount, confirmations uint32) node.OnChainTxEvent {
	m.mu.Lock()
	confirmed := confirmations > 0
	if confirmed {
		m.height++
	}
	tx := node.OnChainTxEvent{
		TxID:          fmt.Sprintf("tx-%s-%d", address, m.height),
		Address:       address,
		Amount:        amount,
		Confirmations: confirmations,
		BlockHeight:   m.height,
		Confirmed:     confirmed,
		Timestamp:     time.Now().UTC(),
	}
	m.mu.Unlock()

	m.txs <- tx
	return tx
}
