package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/tompro/payday/domain/aggregate"
	"github.com/tompro/payday/domain/event"
	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/domain/repository"
	"github.com/tompro/payday/eventsrc"
	"github.com/tompro/payday/infra/postgres"
	"github.com/tompro/payday/payment"
	"github.com/tompro/payday/testutil"
)

type EventStoreIntegrationSuite struct {
	testutil.DBIntegrationSuite
	db    *postgres.DB
	store *postgres.Store
	repo  *repository.InvoiceRepository
}

func TestEventStoreIntegrationSuite(t *testing.T) {
	suite.Run(t, new(EventStoreIntegrationSuite))
}

func (s *EventStoreIntegrationSuite) SetupTest() {
	s.db = &postgres.DB{Pool: s.Pool}
	s.store = postgres.NewEventStore(s.db, postgres.NewOutboxStore(s.db), 2)
	s.repo = repository.NewInvoiceRepository(s.store)
	s.TruncateTables("events", "snapshots", "outbox")
}

func (s *EventStoreIntegrationSuite) TestSaveAndLoadRoundTrip() {
	ctx := context.Background()
	id := s.createInvoice(ctx, 2100)

	loaded, err := s.repo.Load(ctx, id)
	s.Require().NoError(err)
	s.Equal(model.InvoiceAwaitingPayment, loaded.Invoice.Status)
	s.Equal(payment.Sats(2100), loaded.Invoice.AmountRequested)
	s.Equal(1, loaded.Sequence())

	// Append a second event and reload.
	settledAt := time.Now().UTC()
	applied, err := loaded.Settle(ctx, payment.Sats(2100), settledAt)
	s.Require().NoError(err)
	s.Require().True(applied)
	s.Require().NoError(s.db.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.repo.Save(txCtx, loaded)
	}))

	reloaded, err := s.repo.Load(ctx, id)
	s.Require().NoError(err)
	s.Equal(model.InvoiceSettled, reloaded.Invoice.Status)
	s.Equal(2, reloaded.Sequence())

	// Every appended event also lands in the outbox in the same transaction.
	var outboxCount int
	err = s.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM outbox WHERE aggregate_id = $1", id).Scan(&outboxCount)
	s.Require().NoError(err)
	s.Equal(2, outboxCount)
}

func (s *EventStoreIntegrationSuite) TestSaveOutsideTransactionFails() {
	ctx := context.Background()
	agg := aggregate.NewInvoiceAggregateEmpty()
	s.Require().NoError(agg.Create(ctx, uuid.New(), aggregate.CreateInvoiceParams{
		NodeID:         "node-a",
		RHash:          "rhash-raw",
		PaymentRequest: "lnbc-raw",
		Amount:         payment.Sats(500),
		ExpiresAt:      time.Now().Add(time.Hour),
	}))

	err := s.store.Save(ctx, agg)
	s.Require().Error(err)
}

func (s *EventStoreIntegrationSuite) TestConcurrentAppendConflicts() {
	ctx := context.Background()
	id := s.createInvoice(ctx, 1000)

	// Two writers load the same stream head and race to append sequence 2.
	first, err := s.repo.Load(ctx, id)
	s.Require().NoError(err)
	second, err := s.repo.Load(ctx, id)
	s.Require().NoError(err)

	_, err = first.Settle(ctx, payment.Sats(1000), time.Now().UTC())
	s.Require().NoError(err)
	_, err = second.Cancel(ctx, "operator request")
	s.Require().NoError(err)

	s.Require().NoError(s.db.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.repo.Save(txCtx, first)
	}))

	err = s.db.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.repo.Save(txCtx, second)
	})
	s.Require().Error(err)
	var conflict eventsrc.ErrConcurrency
	s.Require().ErrorAs(err, &conflict)

	// The loser's transaction left nothing behind.
	loaded, err := s.repo.Load(ctx, id)
	s.Require().NoError(err)
	s.Equal(model.InvoiceSettled, loaded.Invoice.Status)
	s.Equal(2, loaded.Sequence())
}

func (s *EventStoreIntegrationSuite) TestSnapshotWrittenAtFrequency() {
	ctx := context.Background()
	id := s.createInvoice(ctx, 1500)

	loaded, err := s.repo.Load(ctx, id)
	s.Require().NoError(err)
	_, err = loaded.Settle(ctx, payment.Sats(1500), time.Now().UTC())
	s.Require().NoError(err)
	s.Require().NoError(s.db.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.repo.Save(txCtx, loaded)
	}))

	// snapshotFrequency is 2, so the save at sequence 2 wrote revision 1.
	var lastSequence, revision int
	err = s.Pool.QueryRow(ctx,
		"SELECT last_sequence, current_snapshot FROM snapshots WHERE aggregate_type = $1 AND aggregate_id = $2",
		aggregate.InvoiceAggregateType, id,
	).Scan(&lastSequence, &revision)
	s.Require().NoError(err)
	s.Equal(2, lastSequence)
	s.Equal(1, revision)

	// A load after the snapshot still reconstructs the full state.
	restored, err := s.repo.Load(ctx, id)
	s.Require().NoError(err)
	s.Equal(model.InvoiceSettled, restored.Invoice.Status)
	s.Equal(2, restored.Sequence())
	s.Equal(payment.Sats(1500), restored.Invoice.AmountReceived)
}

func (s *EventStoreIntegrationSuite) TestSnapshotFailureDoesNotAbortAppend() {
	ctx := context.Background()
	id := s.createInvoice(ctx, 1500)

	loaded, err := s.repo.Load(ctx, id)
	s.Require().NoError(err)
	_, err = loaded.Settle(ctx, payment.Sats(1500), time.Now().UTC())
	s.Require().NoError(err)

	// Break the snapshot write while leaving the events table intact.
	_, err = s.Pool.Exec(ctx, "ALTER TABLE snapshots RENAME TO snapshots_disabled")
	s.Require().NoError(err)
	defer func() {
		_, err := s.Pool.Exec(ctx, "ALTER TABLE snapshots_disabled RENAME TO snapshots")
		s.Require().NoError(err)
	}()

	// The save at sequence 2 triggers a snapshot, which fails. The event
	// append must still commit.
	s.Require().NoError(s.db.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.repo.Save(txCtx, loaded)
	}))

	var count int
	err = s.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM events WHERE aggregate_id = $1", id).Scan(&count)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *EventStoreIntegrationSuite) TestLoadAllSinceTailsInCommitOrder() {
	ctx := context.Background()
	firstID := s.createInvoice(ctx, 100)
	secondID := s.createInvoice(ctx, 200)

	all, err := s.store.LoadAllSince(ctx, 0, 10)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Less(all[0].Position, all[1].Position)

	created, ok := all[0].Event.(*event.InvoiceCreated)
	s.Require().True(ok)
	s.Equal(firstID, created.AggregateID())

	// Resuming from the first position returns only the tail.
	tail, err := s.store.LoadAllSince(ctx, all[0].Position, 10)
	s.Require().NoError(err)
	s.Require().Len(tail, 1)
	s.Equal(secondID, tail[0].Event.AggregateID())

	// The limit caps the batch.
	limited, err := s.store.LoadAllSince(ctx, 0, 1)
	s.Require().NoError(err)
	s.Len(limited, 1)
}

func (s *EventStoreIntegrationSuite) createInvoice(ctx context.Context, sats uint64) uuid.UUID {
	s.T().Helper()
	id := uuid.New()
	agg := aggregate.NewInvoiceAggregateEmpty()
	s.Require().NoError(agg.Create(ctx, id, aggregate.CreateInvoiceParams{
		NodeID:         "node-a",
		RHash:          "rhash-" + id.String(),
		PaymentRequest: "lnbc-" + id.String(),
		Memo:           "round trip",
		Amount:         payment.Sats(sats),
		ExpiresAt:      time.Now().Add(time.Hour).UTC(),
	}))
	s.Require().NoError(s.db.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.repo.Save(txCtx, agg)
	}))
	return id
}
