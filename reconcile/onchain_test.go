package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tompro/payday/command"
	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/domain/repository"
	"github.com/tompro/payday/infra/memstore"
	"github.com/tompro/payday/payment"
	"github.com/tompro/payday/query/view"
	"github.com/tompro/payday/reconcile"
	"github.com/tompro/payday/testutil"
)

type onChainFixture struct {
	store   *memstore.Store
	repo    *repository.InvoiceRepository
	chain   *testutil.MockOnChainNode
	lookup  *stubInvoiceLookup
	heights *memstore.BlockHeightStore
	obs     *memstore.ObservationStore
	invoice model.Invoice
	address string
}

func newOnChainFixture(t *testing.T, sats uint64) *onChainFixture {
	t.Helper()
	f := &onChainFixture{
		store:   memstore.NewStore(0),
		chain:   testutil.NewMockOnChainNode(),
		lookup:  newStubInvoiceLookup(),
		heights: memstore.NewBlockHeightStore(),
		obs:     memstore.NewObservationStore(),
	}
	f.repo = repository.NewInvoiceRepository(f.store)

	ln := testutil.NewMockLightningNode()
	create := command.NewCreateInvoiceHandler(f.repo, memstore.Transactor{}, ln)
	invoice, err := create.Handle(context.Background(), command.CreateInvoice{
		ID:     uuid.New(),
		Amount: payment.Sats(sats),
		TTL:    time.Hour,
	})
	require.NoError(t, err)
	f.invoice = invoice

	// On-chain invoices carry their receive address as the lookup reference.
	f.address, err = f.chain.NewAddress(context.Background())
	require.NoError(t, err)
	f.lookup.add(f.address, &view.InvoiceView{ID: invoice.ID, RHash: invoice.RHash})
	return f
}

func (f *onChainFixture) start(t *testing.T) *reconcile.OnChainReconciler {
	t.Helper()
	settler := command.NewSettleInvoiceHandler(f.repo, memstore.Transactor{})
	rec := reconcile.NewOnChainReconciler(f.chain, f.lookup, settler, f.heights, f.obs)
	require.NoError(t, rec.Start(context.Background()))
	return rec
}

func (f *onChainFixture) invoiceStatus(t *testing.T) model.InvoiceStatus {
	t.Helper()
	loaded, err := f.repo.Load(context.Background(), f.invoice.ID)
	require.NoError(t, err)
	return loaded.Invoice.Status
}

func TestOnChainReconcilerSettlesConfirmedDeposit(t *testing.T) {
	f := newOnChainFixture(t, 1000)
	rec := f.start(t)
	defer rec.Stop()

	tx := f.chain.EmitTransaction(f.address, payment.Sats(1000), 6)

	require.Eventually(t, func() bool {
		h, err := f.heights.GetBlockHeight(context.Background(), f.chain.NodeID())
		return err == nil && h == tx.BlockHeight
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, model.InvoiceSettled, f.invoiceStatus(t))
}

func TestOnChainReconcilerIgnoresShallowTransactions(t *testing.T) {
	f := newOnChainFixture(t, 1000)
	rec := f.start(t)
	defer rec.Stop()

	// A mempool sighting must not settle anything, but is kept as an
	// observation. The confirmed follow-up doubles as a barrier proving the
	// first event was consumed.
	shallow := f.chain.EmitTransaction(f.address, payment.Sats(1000), 0)
	tx := f.chain.EmitTransaction(f.address, payment.Sats(1000), 6)

	require.Eventually(t, func() bool {
		h, err := f.heights.GetBlockHeight(context.Background(), f.chain.NodeID())
		return err == nil && h == tx.BlockHeight
	}, 2*time.Second, 10*time.Millisecond)

	loaded, err := f.repo.Load(context.Background(), f.invoice.ID)
	require.NoError(t, err)
	require.Equal(t, model.InvoiceSettled, loaded.Invoice.Status)
	// Created plus one settlement; the shallow event appended nothing.
	require.Equal(t, 2, loaded.Sequence())

	recorded := f.obs.Observations()
	require.Len(t, recorded, 1)
	require.Equal(t, model.ObservationUnconfirmedDeposit, recorded[0].Kind)
	require.Equal(t, shallow.TxID, recorded[0].Reference)
}

func TestOnChainReconcilerAdvancesPastUnknownAddress(t *testing.T) {
	f := newOnChainFixture(t, 1000)
	rec := f.start(t)
	defer rec.Stop()

	// Deposits to addresses we never issued move the scan cursor without
	// touching any invoice; the money is kept as an observation.
	stranger := f.chain.EmitTransaction("bcrt1-stranger", payment.Sats(500), 6)
	tx := f.chain.EmitTransaction(f.address, payment.Sats(1000), 6)

	require.Eventually(t, func() bool {
		h, err := f.heights.GetBlockHeight(context.Background(), f.chain.NodeID())
		return err == nil && h == tx.BlockHeight
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, model.InvoiceSettled, f.invoiceStatus(t))

	recorded := f.obs.Observations()
	require.Len(t, recorded, 1)
	require.Equal(t, model.ObservationUnexpectedDeposit, recorded[0].Kind)
	require.Equal(t, stranger.TxID, recorded[0].Reference)
	require.Equal(t, payment.Sats(500), recorded[0].Amount)
}
