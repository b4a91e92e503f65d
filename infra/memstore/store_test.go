package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tompro/payday/domain/aggregate"
	"github.com/tompro/payday/domain/repository"
	"github.com/tompro/payday/eventsrc"
	"github.com/tompro/payday/infra/memstore"
	"github.com/tompro/payday/payment"
)

func createInvoice(t *testing.T, repo *repository.InvoiceRepository, id uuid.UUID) {
	t.Helper()
	a := aggregate.NewInvoiceAggregateEmpty()
	require.NoError(t, a.Create(context.Background(), id, aggregate.CreateInvoiceParams{
		NodeID:         "node-1",
		RHash:          "ref-" + id.String(),
		PaymentRequest: "lnbc1...",
		Amount:         payment.Sats(1000),
		ExpiresAt:      time.Now().UTC().Add(time.Hour),
	}))
	require.NoError(t, repo.Save(context.Background(), a))
}

func TestStoreSaveAndLoad(t *testing.T) {
	store := memstore.NewStore(0)
	repo := repository.NewInvoiceRepository(store)
	id := uuid.New()

	createInvoice(t, repo, id)

	loaded, err := repo.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, loaded.ID())
	assert.Equal(t, 1, loaded.Sequence())
	assert.Equal(t, "ref-"+id.String(), loaded.Invoice.RHash)
}

func TestStoreConcurrentAppendConflicts(t *testing.T) {
	store := memstore.NewStore(0)
	repo := repository.NewInvoiceRepository(store)
	id := uuid.New()
	createInvoice(t, repo, id)

	// Two writers load the same state and race to append sequence 2.
	first, err := repo.Load(context.Background(), id)
	require.NoError(t, err)
	second, err := repo.Load(context.Background(), id)
	require.NoError(t, err)

	_, err = first.Settle(context.Background(), payment.Sats(1000), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), first))

	_, err = second.Settle(context.Background(), payment.Sats(1000), time.Now().UTC())
	require.NoError(t, err)
	err = repo.Save(context.Background(), second)

	var conflict eventsrc.ErrConcurrency
	require.ErrorAs(t, err, &conflict, "the losing writer must observe a concurrency conflict")
}

func TestStoreLoadAllSince(t *testing.T) {
	store := memstore.NewStore(0)
	repo := repository.NewInvoiceRepository(store)

	for range 3 {
		createInvoice(t, repo, uuid.New())
	}

	all, err := store.LoadAllSince(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, pe := range all {
		assert.Equal(t, int64(i+1), pe.Position, "positions must be monotonic in commit order")
	}

	tail, err := store.LoadAllSince(context.Background(), all[1].Position, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, all[2].Position, tail[0].Position)

	limited, err := store.LoadAllSince(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStoreSnapshotRestore(t *testing.T) {
	// Snapshot on every event so the load path is exercised.
	store := memstore.NewStore(1)
	repo := repository.NewInvoiceRepository(store)
	id := uuid.New()
	createInvoice(t, repo, id)

	loaded, err := repo.Load(context.Background(), id)
	require.NoError(t, err)
	_, err = loaded.Settle(context.Background(), payment.Sats(1000), time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), loaded))

	restored, err := repo.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, restored.Sequence())
	assert.Equal(t, loaded.Invoice, restored.Invoice)
}
