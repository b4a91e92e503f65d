package aggregate

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/tompro/payday/domain/event"
	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/eventsrc"
	"github.com/tompro/payday/payment"
)

// CreateInvoiceParams carries everything the initial event needs. RHash and
// PaymentRequest come from the node, which is called before the event is
// appended.
type CreateInvoiceParams struct {
	NodeID         string
	RHash          string
	PaymentRequest string
	Memo           string
	Amount         payment.Amount
	ExpiresAt      time.Time
}

// Create records the initial InvoiceCreated event. It fails if the stream
// already exists.
func (a *InvoiceAggregate) Create(ctx context.Context, id uuid.UUID, p CreateInvoiceParams) error {
	if a.Invoice.Status != "" {
		return a.invalidTransition(event.InvoiceCreatedEventType)
	}
	return a.TrackChange(ctx, &event.InvoiceCreated{
		BaseEvent:      eventsrc.NewBase(InvoiceAggregateType, id, a.Sequence()+1),
		NodeID:         p.NodeID,
		RHash:          p.RHash,
		PaymentRequest: p.PaymentRequest,
		Memo:           p.Memo,
		Amount:         p.Amount,
		ExpiresAt:      p.ExpiresAt,
	})
}

// Settle records a settlement notification against the invoice. It returns
// false when the notification has no effect: the invoice is already terminal,
// so a redelivered settlement is absorbed instead of double-applied. An
// underpaid settlement transitions the invoice to failed, never to settled.
func (a *InvoiceAggregate) Settle(ctx context.Context, received payment.Amount, at time.Time) (bool, error) {
	if a.Invoice.Status.Terminal() {
		return false, nil
	}
	if received.Value < a.Invoice.AmountRequested.Value {
		err := a.TrackChange(ctx, &event.InvoiceFailed{
			BaseEvent: eventsrc.NewBase(InvoiceAggregateType, a.ID(), a.Sequence()+1),
			Reason:    payment.ReasonUnderpaid,
			Received:  received,
		})
		return err == nil, err
	}
	err := a.TrackChange(ctx, &event.InvoiceSettled{
		BaseEvent: eventsrc.NewBase(InvoiceAggregateType, a.ID(), a.Sequence()+1),
		Received:  received,
		Overpaid:  received.Value > a.Invoice.AmountRequested.Value,
		SettledAt: at,
	})
	return err == nil, err
}

// Expire records the passing of the invoice's expiry. A settlement that was
// appended first wins: expiring a terminal invoice is a no-op. Expiry before
// the recorded expiry time is rejected.
func (a *InvoiceAggregate) Expire(ctx context.Context, at time.Time) (bool, error) {
	if a.Invoice.Status.Terminal() {
		return false, nil
	}
	if at.Before(a.Invoice.ExpiresAt) {
		return false, fmt.Errorf("invoice %s does not expire until %s", a.ID(), a.Invoice.ExpiresAt)
	}
	err := a.TrackChange(ctx, &event.InvoiceExpired{
		BaseEvent: eventsrc.NewBase(InvoiceAggregateType, a.ID(), a.Sequence()+1),
		At:        at,
	})
	return err == nil, err
}

// Cancel voids an invoice that is still awaiting payment.
func (a *InvoiceAggregate) Cancel(ctx context.Context, reason string) (bool, error) {
	if a.Invoice.Status == model.InvoiceCanceled {
		return false, nil
	}
	if a.Invoice.Status != model.InvoiceAwaitingPayment {
		return false, a.invalidTransition(event.InvoiceCanceledEventType)
	}
	err := a.TrackChange(ctx, &event.InvoiceCanceled{
		BaseEvent: eventsrc.NewBase(InvoiceAggregateType, a.ID(), a.Sequence()+1),
		Reason:    reason,
	})
	return err == nil, err
}

// Apply changes the state of the aggregate based on an event. An event that
// is not applicable to the current state yields an InvalidTransitionError;
// such events are surfaced, never silently applied or dropped.
func (a *InvoiceAggregate) Apply(ctx context.Context, evt eventsrc.Event) error {
	var err error
	switch e := evt.(type) {
	case *event.InvoiceCreated:
		err = a.onInvoiceCreated(e)
	case *event.InvoiceSettled:
		err = a.onInvoiceSettled(e)
	case *event.InvoiceExpired:
		err = a.onInvoiceExpired(e)
	case *event.InvoiceCanceled:
		err = a.onInvoiceCanceled(e)
	case *event.InvoiceFailed:
		err = a.onInvoiceFailed(e)
	default:
		err = fmt.Errorf("unknown event type: %s", reflect.TypeOf(evt))
	}
	if err != nil {
		return err
	}
	a.SetSequence(evt.Sequence())
	return nil
}

func (a *InvoiceAggregate) onInvoiceCreated(evt *event.InvoiceCreated) error {
	if a.Invoice.Status != "" {
		return a.invalidTransitionAt(evt.EventType(), evt.Sequence())
	}
	a.SetID(evt.AggregateID())
	a.Invoice = model.Invoice{
		ID:              evt.AggregateID(),
		NodeID:          evt.NodeID,
		RHash:           evt.RHash,
		PaymentRequest:  evt.PaymentRequest,
		Memo:            evt.Memo,
		AmountRequested: evt.Amount,
		AmountReceived:  payment.Zero(evt.Amount.Currency),
		Status:          model.InvoiceAwaitingPayment,
		CreatedAt:       evt.Timestamp(),
		ExpiresAt:       evt.ExpiresAt,
	}
	return nil
}

func (a *InvoiceAggregate) onInvoiceSettled(evt *event.InvoiceSettled) error {
	if a.Invoice.Status != model.InvoiceAwaitingPayment {
		return a.invalidTransitionAt(evt.EventType(), evt.Sequence())
	}
	settledAt := evt.SettledAt
	a.Invoice.AmountReceived = evt.Received
	a.Invoice.Overpaid = evt.Overpaid
	a.Invoice.Status = model.InvoiceSettled
	a.Invoice.SettledAt = &settledAt
	return nil
}

func (a *InvoiceAggregate) onInvoiceExpired(evt *event.InvoiceExpired) error {
	if a.Invoice.Status != model.InvoiceAwaitingPayment {
		return a.invalidTransitionAt(evt.EventType(), evt.Sequence())
	}
	a.Invoice.Status = model.InvoiceExpired
	return nil
}

func (a *InvoiceAggregate) onInvoiceCanceled(evt *event.InvoiceCanceled) error {
	if a.Invoice.Status != model.InvoiceAwaitingPayment {
		return a.invalidTransitionAt(evt.EventType(), evt.Sequence())
	}
	a.Invoice.Status = model.InvoiceCanceled
	a.Invoice.FailureReason = ""
	return nil
}

func (a *InvoiceAggregate) onInvoiceFailed(evt *event.InvoiceFailed) error {
	if a.Invoice.Status != model.InvoiceAwaitingPayment {
		return a.invalidTransitionAt(evt.EventType(), evt.Sequence())
	}
	a.Invoice.AmountReceived = evt.Received
	a.Invoice.Status = model.InvoiceFailed
	a.Invoice.FailureReason = evt.Reason
	return nil
}

func (a *InvoiceAggregate) invalidTransition(eventType string) error {
	return a.invalidTransitionAt(eventType, a.Sequence()+1)
}

func (a *InvoiceAggregate) invalidTransitionAt(eventType string, sequence int) error {
	return eventsrc.InvalidTransitionError{
		AggregateType: InvoiceAggregateType,
		AggregateID:   a.ID(),
		Sequence:      sequence,
		EventType:     eventType,
		State:         string(a.Invoice.Status),
	}
}
