package command_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tompro/payday/command"
	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/domain/repository"
	"github.com/tompro/payday/infra/memstore"
	"github.com/tompro/payday/payment"
	"github.com/tompro/payday/testutil"
)

type invoiceFixture struct {
	store   *memstore.Store
	repo    *repository.InvoiceRepository
	ln      *testutil.MockLightningNode
	invoice model.Invoice
}

func newInvoiceFixture(t *testing.T, amount uint64) *invoiceFixture {
	t.Helper()
	f := &invoiceFixture{
		store: memstore.NewStore(0),
		ln:    testutil.NewMockLightningNode(),
	}
	f.repo = repository.NewInvoiceRepository(f.store)

	create := command.NewCreateInvoiceHandler(f.repo, memstore.Transactor{}, f.ln)
	invoice, err := create.Handle(context.Background(), command.CreateInvoice{
		ID:     uuid.New(),
		Amount: payment.Sats(amount),
		TTL:    time.Hour,
	})
	require.NoError(t, err)
	f.invoice = invoice
	return f
}

func TestSettleInvoice(t *testing.T) {
	f := newInvoiceFixture(t, 1000)
	handler := command.NewSettleInvoiceHandler(f.repo, memstore.Transactor{})

	applied, err := handler.Handle(context.Background(), command.SettleInvoice{
		InvoiceID: f.invoice.ID,
		Received:  payment.Sats(1000),
		SettledAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, applied)

	loaded, err := f.repo.Load(context.Background(), f.invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceSettled, loaded.Invoice.Status)
}

func TestSettleInvoiceRedeliveryIsNoOp(t *testing.T) {
	f := newInvoiceFixture(t, 1000)
	handler := command.NewSettleInvoiceHandler(f.repo, memstore.Transactor{})

	cmd := command.SettleInvoice{
		InvoiceID: f.invoice.ID,
		Received:  payment.Sats(1000),
		SettledAt: time.Now().UTC(),
	}
	applied, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, applied, "a redelivered notification must be absorbed without error")

	all, err := f.store.LoadAllSince(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2, "create + settle, the duplicate must not append")
}

func TestSettleInvoiceUnderpaidFailsInvoice(t *testing.T) {
	f := newInvoiceFixture(t, 1000)
	handler := command.NewSettleInvoiceHandler(f.repo, memstore.Transactor{})

	applied, err := handler.Handle(context.Background(), command.SettleInvoice{
		InvoiceID: f.invoice.ID,
		Received:  payment.Sats(500),
		SettledAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, applied)

	loaded, err := f.repo.Load(context.Background(), f.invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceFailed, loaded.Invoice.Status)
	assert.Equal(t, payment.ReasonUnderpaid, loaded.Invoice.FailureReason)
}

func TestExpireThenSettleRace(t *testing.T) {
	f := newInvoiceFixture(t, 1000)
	settle := command.NewSettleInvoiceHandler(f.repo, memstore.Transactor{})
	expire := command.NewExpireInvoiceHandler(f.repo, memstore.Transactor{})

	applied, err := settle.Handle(context.Background(), command.SettleInvoice{
		InvoiceID: f.invoice.ID,
		Received:  payment.Sats(1000),
		SettledAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = expire.Handle(context.Background(), command.ExpireInvoice{
		InvoiceID: f.invoice.ID,
		At:        time.Now().UTC().Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, applied, "the settlement that won the race must stand")

	loaded, err := f.repo.Load(context.Background(), f.invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceSettled, loaded.Invoice.Status)
}

func TestCancelInvoice(t *testing.T) {
	f := newInvoiceFixture(t, 1000)
	handler := command.NewCancelInvoiceHandler(f.repo, memstore.Transactor{})

	applied, err := handler.Handle(context.Background(), command.CancelInvoice{
		InvoiceID: f.invoice.ID,
		Reason:    "order voided",
	})
	require.NoError(t, err)
	assert.True(t, applied)

	loaded, err := f.repo.Load(context.Background(), f.invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceCanceled, loaded.Invoice.Status)
}
