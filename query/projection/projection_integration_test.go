package projection_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/tompro/payday/cqrs"
	"github.com/tompro/payday/domain/aggregate"
	"github.com/tompro/payday/domain/event"
	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/eventsrc"
	"github.com/tompro/payday/payment"
	"github.com/tompro/payday/query/projection"
	"github.com/tompro/payday/query/query"
	"github.com/tompro/payday/query/repository"
	"github.com/tompro/payday/testutil"
)

type ProjectionHandlerSuite struct {
	testutil.DBIntegrationSuite
	invoiceViews   *repository.InvoiceViewRepository
	payoutViews    *repository.PayoutViewRepository
	invoiceHandler *projection.InvoiceProjectionHandler
	payoutHandler  *projection.PayoutProjectionHandler
}

func TestProjectionHandlerSuite(t *testing.T) {
	suite.Run(t, new(ProjectionHandlerSuite))
}

func (s *ProjectionHandlerSuite) SetupTest() {
	s.invoiceViews = repository.NewInvoiceViewRepository(s.Pool)
	s.payoutViews = repository.NewPayoutViewRepository(s.Pool)
	s.invoiceHandler = projection.NewInvoiceProjectionHandler(s.invoiceViews)
	s.payoutHandler = projection.NewPayoutProjectionHandler(s.payoutViews)
	s.TruncateTables("invoice_views", "payout_views")
}

func (s *ProjectionHandlerSuite) apply(handler func(context.Context, eventsrc.OutboxEvent) error, evt eventsrc.Event) {
	s.T().Helper()
	outboxEvt, err := cqrs.AsOutboxEvent(evt)
	s.Require().NoError(err)
	s.Require().NoError(handler(context.Background(), outboxEvt))
}

func (s *ProjectionHandlerSuite) TestInvoiceLifecycleProjection() {
	ctx := context.Background()
	id := uuid.New()
	expiresAt := time.Now().Add(time.Hour).UTC()

	s.apply(s.invoiceHandler.Handle, &event.InvoiceCreated{
		BaseEvent:      eventsrc.NewBase(aggregate.InvoiceAggregateType, id, 1),
		NodeID:         "node-a",
		RHash:          "rhash-proj",
		PaymentRequest: "lnbc-proj",
		Memo:           "projection test",
		Amount:         payment.Sats(1000),
		ExpiresAt:      expiresAt,
	})

	v, err := s.invoiceViews.GetInvoiceViewByID(ctx, id)
	s.Require().NoError(err)
	s.Require().NotNil(v)
	s.Equal(string(model.InvoiceAwaitingPayment), v.Status)
	s.Equal("rhash-proj", v.RHash)
	s.Equal(uint64(1000), v.AmountRequested)
	s.Equal(1, v.Sequence)

	settledAt := time.Now().UTC()
	s.apply(s.invoiceHandler.Handle, &event.InvoiceSettled{
		BaseEvent: eventsrc.NewBase(aggregate.InvoiceAggregateType, id, 2),
		Received:  payment.Sats(1200),
		Overpaid:  true,
		SettledAt: settledAt,
	})

	v, err = s.invoiceViews.GetInvoiceViewByID(ctx, id)
	s.Require().NoError(err)
	s.Require().NotNil(v)
	s.Equal(string(model.InvoiceSettled), v.Status)
	s.Equal(uint64(1200), v.AmountReceived)
	s.True(v.Overpaid)
	s.Require().NotNil(v.SettledAt)
	s.WithinDuration(settledAt, *v.SettledAt, time.Second)
	s.Equal(2, v.Sequence)

	// The reference index resolves the settled invoice too.
	byRef, err := s.invoiceViews.GetInvoiceViewByRHash(ctx, "rhash-proj")
	s.Require().NoError(err)
	s.Require().NotNil(byRef)
	s.Equal(id, byRef.ID)
}

func (s *ProjectionHandlerSuite) TestUnderpaymentProjectsAsFailed() {
	ctx := context.Background()
	id := uuid.New()

	s.apply(s.invoiceHandler.Handle, &event.InvoiceCreated{
		BaseEvent:      eventsrc.NewBase(aggregate.InvoiceAggregateType, id, 1),
		NodeID:         "node-a",
		RHash:          "rhash-under",
		PaymentRequest: "lnbc-under",
		Amount:         payment.Sats(1000),
		ExpiresAt:      time.Now().Add(time.Hour),
	})
	s.apply(s.invoiceHandler.Handle, &event.InvoiceFailed{
		BaseEvent: eventsrc.NewBase(aggregate.InvoiceAggregateType, id, 2),
		Reason:    payment.ReasonUnderpaid,
		Received:  payment.Sats(400),
	})

	v, err := s.invoiceViews.GetInvoiceViewByID(ctx, id)
	s.Require().NoError(err)
	s.Require().NotNil(v)
	s.Equal(string(model.InvoiceFailed), v.Status)
	s.Equal(payment.ReasonUnderpaid, v.FailureReason)
	s.Equal(uint64(400), v.AmountReceived)
}

func (s *ProjectionHandlerSuite) TestUpdateWithoutViewFails() {
	outboxEvt, err := cqrs.AsOutboxEvent(&event.InvoiceSettled{
		BaseEvent: eventsrc.NewBase(aggregate.InvoiceAggregateType, uuid.New(), 2),
		Received:  payment.Sats(1000),
		SettledAt: time.Now().UTC(),
	})
	s.Require().NoError(err)

	err = s.invoiceHandler.Handle(context.Background(), outboxEvt)
	s.Require().Error(err)
}

func (s *ProjectionHandlerSuite) TestPayoutLifecycleProjection() {
	ctx := context.Background()
	id := uuid.New()

	s.apply(s.payoutHandler.Handle, &event.PaymentInitiated{
		BaseEvent:      eventsrc.NewBase(aggregate.PayoutAggregateType, id, 1),
		NodeID:         "node-a",
		PaymentRequest: "lnbc-payout",
		Amount:         payment.Sats(5000),
	})
	s.apply(s.payoutHandler.Handle, &event.PaymentInFlight{
		BaseEvent:   eventsrc.NewBase(aggregate.PayoutAggregateType, id, 2),
		PaymentHash: "hash-proj",
	})

	inFlight, err := s.payoutViews.ListPayoutViewsByStatus(ctx, string(model.PayoutInFlight), 10)
	s.Require().NoError(err)
	s.Require().Len(inFlight, 1)
	s.Equal("hash-proj", inFlight[0].PaymentHash)

	settledAt := time.Now().UTC()
	s.apply(s.payoutHandler.Handle, &event.PaymentSucceeded{
		BaseEvent:   eventsrc.NewBase(aggregate.PayoutAggregateType, id, 3),
		PaymentHash: "hash-proj",
		Fee:         payment.Sats(3),
		SettledAt:   settledAt,
	})

	v, err := s.payoutViews.GetPayoutViewByID(ctx, id)
	s.Require().NoError(err)
	s.Require().NotNil(v)
	s.Equal(string(model.PayoutSucceeded), v.Status)
	s.Equal(uint64(3), v.Fee)
	s.Require().NotNil(v.SettledAt)
	s.Equal(3, v.Sequence)

	// Nothing is left in flight.
	inFlight, err = s.payoutViews.ListPayoutViewsByStatus(ctx, string(model.PayoutInFlight), 10)
	s.Require().NoError(err)
	s.Empty(inFlight)
}

func (s *ProjectionHandlerSuite) TestQueryHandlers() {
	ctx := context.Background()
	id := uuid.New()

	s.apply(s.invoiceHandler.Handle, &event.InvoiceCreated{
		BaseEvent:      eventsrc.NewBase(aggregate.InvoiceAggregateType, id, 1),
		NodeID:         "node-a",
		RHash:          "rhash-query",
		PaymentRequest: "lnbc-query",
		Amount:         payment.Sats(1000),
		ExpiresAt:      time.Now().Add(time.Hour),
	})

	getInvoice := query.NewGetInvoiceByIDHandler(s.invoiceViews)
	found, err := getInvoice.Query(ctx, query.GetInvoiceByID{ID: id})
	s.Require().NoError(err)
	s.Equal(id, found.ID)

	_, err = getInvoice.Query(ctx, query.GetInvoiceByID{ID: uuid.New()})
	s.Require().ErrorIs(err, query.ErrInvoiceNotFound)

	getPayout := query.NewGetPayoutByIDHandler(s.payoutViews)
	_, err = getPayout.Query(ctx, query.GetPayoutByID{ID: uuid.New()})
	s.Require().ErrorIs(err, query.ErrPayoutNotFound)
}
