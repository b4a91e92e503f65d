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

// Initiate records the durable intent to pay, before any node call is made.
func (a *PayoutAggregate) Initiate(ctx context.Context, id uuid.UUID, nodeID, paymentRequest string, amount payment.Amount) error {
	if a.Payout.Status != "" {
		return a.invalidTransition(event.PaymentInitiatedEventType)
	}
	return a.TrackChange(ctx, &event.PaymentInitiated{
		BaseEvent:      eventsrc.NewBase(PayoutAggregateType, id, a.Sequence()+1),
		NodeID:         nodeID,
		PaymentRequest: paymentRequest,
		Amount:         amount,
	})
}

// MarkInFlight records that the node accepted the attempt.
func (a *PayoutAggregate) MarkInFlight(ctx context.Context, paymentHash string) (bool, error) {
	if a.Payout.Status == model.PayoutInFlight {
		return false, nil
	}
	if a.Payout.Status != model.PayoutInitiated {
		return false, a.invalidTransition(event.PaymentInFlightEventType)
	}
	err := a.TrackChange(ctx, &event.PaymentInFlight{
		BaseEvent:   eventsrc.NewBase(PayoutAggregateType, a.ID(), a.Sequence()+1),
		PaymentHash: paymentHash,
	})
	return err == nil, err
}

// Succeed records the terminal success of the attempt. A redelivered success
// for an already settled payout is absorbed as a no-op.
func (a *PayoutAggregate) Succeed(ctx context.Context, paymentHash string, fee payment.Amount, at time.Time) (bool, error) {
	if a.Payout.Status == model.PayoutSucceeded {
		return false, nil
	}
	if a.Payout.Status.Terminal() {
		return false, a.invalidTransition(event.PaymentSucceededEventType)
	}
	err := a.TrackChange(ctx, &event.PaymentSucceeded{
		BaseEvent:   eventsrc.NewBase(PayoutAggregateType, a.ID(), a.Sequence()+1),
		PaymentHash: paymentHash,
		Fee:         fee,
		SettledAt:   at,
	})
	return err == nil, err
}

// Fail records the terminal failure of the attempt with its reason.
func (a *PayoutAggregate) Fail(ctx context.Context, reason payment.FailureReason) (bool, error) {
	if a.Payout.Status == model.PayoutFailed {
		return false, nil
	}
	if a.Payout.Status.Terminal() {
		return false, a.invalidTransition(event.PaymentFailedEventType)
	}
	err := a.TrackChange(ctx, &event.PaymentFailed{
		BaseEvent: eventsrc.NewBase(PayoutAggregateType, a.ID(), a.Sequence()+1),
		Reason:    reason,
	})
	return err == nil, err
}

// Apply changes the state of the aggregate based on an event.
func (a *PayoutAggregate) Apply(ctx context.Context, evt eventsrc.Event) error {
	var err error
	switch e := evt.(type) {
	case *event.PaymentInitiated:
		err = a.onPaymentInitiated(e)
	case *event.PaymentInFlight:
		err = a.onPaymentInFlight(e)
	case *event.PaymentSucceeded:
		err = a.onPaymentSucceeded(e)
	case *event.PaymentFailed:
		err = a.onPaymentFailed(e)
	default:
		err = fmt.Errorf("unknown event type: %s", reflect.TypeOf(evt))
	}
	if err != nil {
		return err
	}
	a.SetSequence(evt.Sequence())
	return nil
}

func (a *PayoutAggregate) onPaymentInitiated(evt *event.PaymentInitiated) error {
	if a.Payout.Status != "" {
		return a.invalidTransitionAt(evt.EventType(), evt.Sequence())
	}
	a.SetID(evt.AggregateID())
	a.Payout = model.Payout{
		ID:             evt.AggregateID(),
		NodeID:         evt.NodeID,
		PaymentRequest: evt.PaymentRequest,
		Amount:         evt.Amount,
		Fee:            payment.Zero(evt.Amount.Currency),
		Status:         model.PayoutInitiated,
		CreatedAt:      evt.Timestamp(),
	}
	return nil
}

func (a *PayoutAggregate) onPaymentInFlight(evt *event.PaymentInFlight) error {
	if a.Payout.Status != model.PayoutInitiated {
		return a.invalidTransitionAt(evt.EventType(), evt.Sequence())
	}
	a.Payout.PaymentHash = evt.PaymentHash
	a.Payout.Status = model.PayoutInFlight
	return nil
}

func (a *PayoutAggregate) onPaymentSucceeded(evt *event.PaymentSucceeded) error {
	if a.Payout.Status.Terminal() {
		return a.invalidTransitionAt(evt.EventType(), evt.Sequence())
	}
	settledAt := evt.SettledAt
	a.Payout.PaymentHash = evt.PaymentHash
	a.Payout.Fee = evt.Fee
	a.Payout.Status = model.PayoutSucceeded
	a.Payout.SettledAt = &settledAt
	return nil
}

func (a *PayoutAggregate) onPaymentFailed(evt *event.PaymentFailed) error {
	if a.Payout.Status.Terminal() {
		return a.invalidTransitionAt(evt.EventType(), evt.Sequence())
	}
	a.Payout.Status = model.PayoutFailed
	a.Payout.FailureReason = evt.Reason
	return nil
}

func (a *PayoutAggregate) invalidTransition(eventType string) error {
	return a.invalidTransitionAt(eventType, a.Sequence()+1)
}

func (a *PayoutAggregate) invalidTransitionAt(eventType string, sequence int) error {
	return eventsrc.InvalidTransitionError{
		AggregateType: PayoutAggregateType,
		AggregateID:   a.ID(),
		Sequence:      sequence,
		EventType:     eventType,
		State:         string(a.Payout.Status),
	}
}
