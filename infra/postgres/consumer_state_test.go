package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/infra/postgres"
	"github.com/tompro/payday/payment"
	"github.com/tompro/payday/testutil"
)

type ConsumerStateIntegrationSuite struct {
	testutil.DBIntegrationSuite
	db           *postgres.DB
	offsets      *postgres.OffsetStore
	idempotency  *postgres.IdempotencyStore
	blockHeights *postgres.BlockHeightStore
	observations *postgres.ObservationStore
}

func TestConsumerStateIntegrationSuite(t *testing.T) {
	suite.Run(t, new(ConsumerStateIntegrationSuite))
}

func (s *ConsumerStateIntegrationSuite) SetupTest() {
	s.db = &postgres.DB{Pool: s.Pool}
	s.offsets = postgres.NewOffsetStore(s.db)
	s.idempotency = postgres.NewIdempotencyStore(s.db)
	s.blockHeights = postgres.NewBlockHeightStore(s.db)
	s.observations = postgres.NewObservationStore(s.db)
	s.TruncateTables("offsets", "processed_events", "block_heights", "payment_observations")
}

func (s *ConsumerStateIntegrationSuite) TestOffsetDefaultsToZero() {
	offset, err := s.offsets.GetOffset(context.Background(), "unknown-consumer")
	s.Require().NoError(err)
	s.Equal(uint64(0), offset)
}

func (s *ConsumerStateIntegrationSuite) TestOffsetIsMonotonic() {
	ctx := context.Background()
	consumerID := "lightning-settlements"

	s.Require().NoError(s.offsets.SetOffset(ctx, consumerID, 7))
	offset, err := s.offsets.GetOffset(ctx, consumerID)
	s.Require().NoError(err)
	s.Equal(uint64(7), offset)

	// A stale write never moves the cursor backwards.
	s.Require().NoError(s.offsets.SetOffset(ctx, consumerID, 3))
	offset, err = s.offsets.GetOffset(ctx, consumerID)
	s.Require().NoError(err)
	s.Equal(uint64(7), offset)

	s.Require().NoError(s.offsets.SetOffset(ctx, consumerID, 12))
	offset, err = s.offsets.GetOffset(ctx, consumerID)
	s.Require().NoError(err)
	s.Equal(uint64(12), offset)
}

func (s *ConsumerStateIntegrationSuite) TestOffsetsAreIndependentPerConsumer() {
	ctx := context.Background()
	s.Require().NoError(s.offsets.SetOffset(ctx, "consumer-a", 5))

	offset, err := s.offsets.GetOffset(ctx, "consumer-b")
	s.Require().NoError(err)
	s.Equal(uint64(0), offset)
}

func (s *ConsumerStateIntegrationSuite) TestMarkAsProcessedRequiresTransaction() {
	err := s.idempotency.MarkAsProcessed(context.Background(), uuid.New(), "sub-1")
	s.Require().Error(err)
}

func (s *ConsumerStateIntegrationSuite) TestMarkAsProcessedIsPerSubscriber() {
	ctx := context.Background()
	eventID := uuid.New()

	s.Require().NoError(s.db.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.idempotency.MarkAsProcessed(txCtx, eventID, "sub-1")
	}))

	processed, err := s.idempotency.IsProcessed(ctx, eventID, "sub-1")
	s.Require().NoError(err)
	s.True(processed)

	// The same event is still fresh for a different subscriber.
	processed, err = s.idempotency.IsProcessed(ctx, eventID, "sub-2")
	s.Require().NoError(err)
	s.False(processed)
}

func (s *ConsumerStateIntegrationSuite) TestMarkAsProcessedToleratesConcurrentDuplicate() {
	ctx := context.Background()
	eventID := uuid.New()

	for range 2 {
		s.Require().NoError(s.db.WithTransaction(ctx, func(txCtx context.Context) error {
			return s.idempotency.MarkAsProcessed(txCtx, eventID, "sub-1")
		}))
	}

	processed, err := s.idempotency.IsProcessed(ctx, eventID, "sub-1")
	s.Require().NoError(err)
	s.True(processed)
}

func (s *ConsumerStateIntegrationSuite) TestBlockHeightIsMonotonicPerNode() {
	ctx := context.Background()

	height, err := s.blockHeights.GetBlockHeight(ctx, "node-a")
	s.Require().NoError(err)
	s.Equal(uint64(0), height)

	s.Require().NoError(s.blockHeights.SetBlockHeight(ctx, "node-a", 820100))
	s.Require().NoError(s.blockHeights.SetBlockHeight(ctx, "node-a", 820050))

	height, err = s.blockHeights.GetBlockHeight(ctx, "node-a")
	s.Require().NoError(err)
	s.Equal(uint64(820100), height)

	height, err = s.blockHeights.GetBlockHeight(ctx, "node-b")
	s.Require().NoError(err)
	s.Equal(uint64(0), height)
}

func (s *ConsumerStateIntegrationSuite) TestObservationsDeduplicateByKindAndReference() {
	ctx := context.Background()

	first := model.PaymentObservation{
		Kind:       model.ObservationUnexpectedSettlement,
		Reference:  "rhash-stranger",
		Amount:     payment.Sats(500),
		ObservedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.observations.RecordObservation(ctx, first))

	// Redelivered sightings of the same payment collapse into one row.
	dup := first
	dup.Amount = payment.Sats(999)
	s.Require().NoError(s.observations.RecordObservation(ctx, dup))

	recorded, err := s.observations.ListObservationsByKind(ctx, model.ObservationUnexpectedSettlement, 10)
	s.Require().NoError(err)
	s.Require().Len(recorded, 1)
	s.Equal("rhash-stranger", recorded[0].Reference)
	s.Equal(payment.Sats(500), recorded[0].Amount)
}

func (s *ConsumerStateIntegrationSuite) TestObservationsListByKind() {
	ctx := context.Background()
	now := time.Now().UTC()

	s.Require().NoError(s.observations.RecordObservation(ctx, model.PaymentObservation{
		Kind:       model.ObservationStrandedPayout,
		Reference:  "payout-1",
		Amount:     payment.Sats(2000),
		Details:    "payment request lnbc-1",
		ObservedAt: now,
	}))
	s.Require().NoError(s.observations.RecordObservation(ctx, model.PaymentObservation{
		Kind:       model.ObservationUnconfirmedDeposit,
		Reference:  "tx-1",
		Amount:     payment.Sats(300),
		ObservedAt: now,
	}))

	stranded, err := s.observations.ListObservationsByKind(ctx, model.ObservationStrandedPayout, 10)
	s.Require().NoError(err)
	s.Require().Len(stranded, 1)
	s.Equal("payout-1", stranded[0].Reference)
	s.Equal("payment request lnbc-1", stranded[0].Details)

	unconfirmed, err := s.observations.ListObservationsByKind(ctx, model.ObservationUnconfirmedDeposit, 10)
	s.Require().NoError(err)
	s.Require().Len(unconfirmed, 1)
	s.Equal("tx-1", unconfirmed[0].Reference)
}
