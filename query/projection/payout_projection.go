package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tompro/payday/domain/event"
	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/eventsrc"
	"github.com/tompro/payday/query/repository"
	"github.com/tompro/payday/query/view"
)

// PayoutProjectionHandler maintains the denormalized payout view from the
// payout event stream.
type PayoutProjectionHandler struct {
	repo *repository.PayoutViewRepository
}

func NewPayoutProjectionHandler(repo *repository.PayoutViewRepository) *PayoutProjectionHandler {
	return &PayoutProjectionHandler{repo: repo}
}

func (p *PayoutProjectionHandler) Handle(ctx context.Context, evt eventsrc.OutboxEvent) error {
	switch evt.EventType {
	case event.PaymentInitiatedEventType:
		return p.handlePaymentInitiated(ctx, evt)
	case event.PaymentInFlightEventType:
		return p.handlePaymentInFlight(ctx, evt)
	case event.PaymentSucceededEventType:
		return p.handlePaymentSucceeded(ctx, evt)
	case event.PaymentFailedEventType:
		return p.handlePaymentFailed(ctx, evt)
	}
	return nil
}

func (p *PayoutProjectionHandler) handlePaymentInitiated(ctx context.Context, evt eventsrc.OutboxEvent) error {
	var initiated event.PaymentInitiated
	if err := json.Unmarshal(evt.Payload, &initiated); err != nil {
		return fmt.Errorf("failed to unmarshal PaymentInitiated event: %w", err)
	}

	slog.InfoContext(ctx, "Projecting PayoutView",
		"payoutID", initiated.AggregateID(),
		"amount", initiated.Amount)

	return p.repo.SavePayoutView(ctx, view.PayoutView{
		ID:             initiated.AggregateID(),
		NodeID:         initiated.NodeID,
		PaymentRequest: initiated.PaymentRequest,
		Currency:       initiated.Amount.Currency,
		Amount:         initiated.Amount.Value,
		Status:         string(model.PayoutInitiated),
		CreatedAt:      initiated.Timestamp(),
		Sequence:       initiated.Sequence(),
	})
}

func (p *PayoutProjectionHandler) handlePaymentInFlight(ctx context.Context, evt eventsrc.OutboxEvent) error {
	var inFlight event.PaymentInFlight
	if err := json.Unmarshal(evt.Payload, &inFlight); err != nil {
		return fmt.Errorf("failed to unmarshal PaymentInFlight event: %w", err)
	}

	return p.update(ctx, evt, func(v *view.PayoutView) {
		v.PaymentHash = inFlight.PaymentHash
		v.Status = string(model.PayoutInFlight)
	})
}

func (p *PayoutProjectionHandler) handlePaymentSucceeded(ctx context.Context, evt eventsrc.OutboxEvent) error {
	var succeeded event.PaymentSucceeded
	if err := json.Unmarshal(evt.Payload, &succeeded); err != nil {
		return fmt.Errorf("failed to unmarshal PaymentSucceeded event: %w", err)
	}

	return p.update(ctx, evt, func(v *view.PayoutView) {
		v.PaymentHash = succeeded.PaymentHash
		v.Fee = succeeded.Fee.Value
		v.Status = string(model.PayoutSucceeded)
		settledAt := succeeded.SettledAt
		v.SettledAt = &settledAt
	})
}

func (p *PayoutProjectionHandler) handlePaymentFailed(ctx context.Context, evt eventsrc.OutboxEvent) error {
	var failed event.PaymentFailed
	if err := json.Unmarshal(evt.Payload, &failed); err != nil {
		return fmt.Errorf("failed to unmarshal PaymentFailed event: %w", err)
	}

	return p.update(ctx, evt, func(v *view.PayoutView) {
		v.Status = string(model.PayoutFailed)
		v.FailureReason = failed.Reason
	})
}

func (p *PayoutProjectionHandler) update(
	ctx context.Context,
	evt eventsrc.OutboxEvent,
	fn func(v *view.PayoutView),
) error {
	v, err := p.repo.GetPayoutViewByID(ctx, evt.AggregateID)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("payout view %s not found for event %s", evt.AggregateID, evt.EventType)
	}
	fn(v)
	v.Sequence = evt.Sequence
	return p.repo.SavePayoutView(ctx, *v)
}
