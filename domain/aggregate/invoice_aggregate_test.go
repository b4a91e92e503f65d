package aggregate_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tompro/payday/domain/aggregate"
	"github.com/tompro/payday/domain/event"
	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/eventsrc"
	"github.com/tompro/payday/payment"
)

func newTestInvoice(t *testing.T, amount uint64) *aggregate.InvoiceAggregate {
	t.Helper()
	a := aggregate.NewInvoiceAggregateEmpty()
	err := a.Create(context.Background(), uuid.New(), aggregate.CreateInvoiceParams{
		NodeID:         "node-1",
		RHash:          "abc123",
		PaymentRequest: "lnbc1...",
		Memo:           "test invoice",
		Amount:         payment.Sats(amount),
		ExpiresAt:      time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)
	return a
}

func TestInvoiceCreate(t *testing.T) {
	a := newTestInvoice(t, 1000)

	assert.Equal(t, model.InvoiceAwaitingPayment, a.Invoice.Status)
	assert.Equal(t, "abc123", a.Invoice.RHash)
	assert.Equal(t, 1, a.Sequence())
	require.Len(t, a.GetUncommittedEvents(), 1)
	assert.Equal(t, event.InvoiceCreatedEventType, a.GetUncommittedEvents()[0].EventType())
}

func TestInvoiceCreateTwiceRejected(t *testing.T) {
	a := newTestInvoice(t, 1000)

	err := a.Create(context.Background(), uuid.New(), aggregate.CreateInvoiceParams{
		RHash:  "other",
		Amount: payment.Sats(1),
	})
	var invalid eventsrc.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestInvoiceSettleExact(t *testing.T) {
	a := newTestInvoice(t, 1000)
	settledAt := time.Now().UTC()

	applied, err := a.Settle(context.Background(), payment.Sats(1000), settledAt)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, model.InvoiceSettled, a.Invoice.Status)
	assert.Equal(t, uint64(1000), a.Invoice.AmountReceived.Value)
	assert.False(t, a.Invoice.Overpaid)
	require.NotNil(t, a.Invoice.SettledAt)
	assert.Equal(t, settledAt, *a.Invoice.SettledAt)
}

func TestInvoiceSettleOverpaid(t *testing.T) {
	a := newTestInvoice(t, 1000)

	applied, err := a.Settle(context.Background(), payment.Sats(1500), time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, model.InvoiceSettled, a.Invoice.Status)
	assert.True(t, a.Invoice.Overpaid)
	assert.Equal(t, uint64(1500), a.Invoice.AmountReceived.Value)
}

func TestInvoiceSettleUnderpaidFails(t *testing.T) {
	a := newTestInvoice(t, 1000)

	applied, err := a.Settle(context.Background(), payment.Sats(999), time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, model.InvoiceFailed, a.Invoice.Status)
	assert.Equal(t, payment.ReasonUnderpaid, a.Invoice.FailureReason)
	assert.Equal(t, uint64(999), a.Invoice.AmountReceived.Value)
}

func TestInvoiceDuplicateSettleIsNoOp(t *testing.T) {
	a := newTestInvoice(t, 1000)

	applied, err := a.Settle(context.Background(), payment.Sats(1000), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, applied)

	seq := a.Sequence()
	applied, err = a.Settle(context.Background(), payment.Sats(1000), time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, applied, "redelivered settlement must be absorbed")
	assert.Equal(t, seq, a.Sequence(), "no event may be appended by a no-op")
}

func TestInvoiceExpireAfterSettleIsNoOp(t *testing.T) {
	a := newTestInvoice(t, 1000)

	applied, err := a.Settle(context.Background(), payment.Sats(1000), time.Now().UTC())
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = a.Expire(context.Background(), time.Now().UTC().Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, applied, "settlement wins over expiry")
	assert.Equal(t, model.InvoiceSettled, a.Invoice.Status)
}

func TestInvoiceExpireBeforeExpiryRejected(t *testing.T) {
	a := newTestInvoice(t, 1000)

	_, err := a.Expire(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.Equal(t, model.InvoiceAwaitingPayment, a.Invoice.Status)
}

func TestInvoiceExpire(t *testing.T) {
	a := newTestInvoice(t, 1000)

	applied, err := a.Expire(context.Background(), time.Now().UTC().Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, model.InvoiceExpired, a.Invoice.Status)
}

func TestInvoiceCancel(t *testing.T) {
	a := newTestInvoice(t, 1000)

	applied, err := a.Cancel(context.Background(), "customer gave up")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, model.InvoiceCanceled, a.Invoice.Status)

	// Cancel again: no-op
	applied, err = a.Cancel(context.Background(), "again")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestInvoiceCancelAfterSettleRejected(t *testing.T) {
	a := newTestInvoice(t, 1000)

	_, err := a.Settle(context.Background(), payment.Sats(1000), time.Now().UTC())
	require.NoError(t, err)

	_, err = a.Cancel(context.Background(), "too late")
	var invalid eventsrc.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, string(model.InvoiceSettled), invalid.State)
}

func TestInvoiceReplayFromHistory(t *testing.T) {
	a := newTestInvoice(t, 1000)
	_, err := a.Settle(context.Background(), payment.Sats(1200), time.Now().UTC())
	require.NoError(t, err)

	history := a.GetUncommittedEvents()
	require.Len(t, history, 2)

	replayed := aggregate.NewInvoiceAggregateEmpty()
	require.NoError(t, replayed.LoadFromHistory(context.Background(), history))

	assert.Equal(t, a.Invoice, replayed.Invoice)
	assert.Equal(t, a.Sequence(), replayed.Sequence())
	assert.Empty(t, replayed.GetUncommittedEvents(), "replay must not track uncommitted events")
}

func TestInvoiceReplayRejectsEventAfterTerminal(t *testing.T) {
	a := newTestInvoice(t, 1000)
	_, err := a.Settle(context.Background(), payment.Sats(1000), time.Now().UTC())
	require.NoError(t, err)

	history := a.GetUncommittedEvents()
	// Forge an expiry after the terminal settlement.
	corrupt := append(history, &event.InvoiceExpired{
		BaseEvent: eventsrc.NewBase(aggregate.InvoiceAggregateType, a.ID(), a.Sequence()+1),
		At:        time.Now().UTC(),
	})

	replayed := aggregate.NewInvoiceAggregateEmpty()
	err = replayed.LoadFromHistory(context.Background(), corrupt)
	var invalid eventsrc.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, event.InvoiceExpiredEventType, invalid.EventType)
}

func TestInvoiceSnapshotRoundTrip(t *testing.T) {
	a := newTestInvoice(t, 1000)
	_, err := a.Settle(context.Background(), payment.Sats(1000), time.Now().UTC())
	require.NoError(t, err)

	data, err := json.Marshal(a)
	require.NoError(t, err)

	restored := aggregate.NewInvoiceAggregateEmpty()
	require.NoError(t, json.Unmarshal(data, restored))

	assert.Equal(t, a.Invoice.ID, restored.ID())
	assert.Equal(t, a.Invoice, restored.Invoice)
	assert.Equal(t, a.Sequence(), restored.Sequence(),
		"a restored snapshot must append at the right position even with no tail events")
}
