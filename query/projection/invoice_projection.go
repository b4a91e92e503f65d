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

// InvoiceProjectionHandler maintains the denormalized invoice view from the
// invoice event stream.
type InvoiceProjectionHandler struct {
	repo *repository.InvoiceViewRepository
}

func NewInvoiceProjectionHandler(repo *repository.InvoiceViewRepository) *InvoiceProjectionHandler {
	return &InvoiceProjectionHandler{repo: repo}
}

func (p *InvoiceProjectionHandler) Handle(ctx context.Context, evt eventsrc.OutboxEvent) error {
	switch evt.EventType {
	case event.InvoiceCreatedEventType:
		return p.handleInvoiceCreated(ctx, evt)
	case event.InvoiceSettledEventType:
		return p.handleInvoiceSettled(ctx, evt)
	case event.InvoiceExpiredEventType:
		return p.handleInvoiceExpired(ctx, evt)
	case event.InvoiceCanceledEventType:
		return p.handleInvoiceCanceled(ctx, evt)
	case event.InvoiceFailedEventType:
		return p.handleInvoiceFailed(ctx, evt)
	}
	return nil
}

func (p *InvoiceProjectionHandler) handleInvoiceCreated(ctx context.Context, evt eventsrc.OutboxEvent) error {
	var created event.InvoiceCreated
	if err := json.Unmarshal(evt.Payload, &created); err != nil {
		return fmt.Errorf("failed to unmarshal InvoiceCreated event: %w", err)
	}

	slog.InfoContext(ctx, "Projecting InvoiceView",
		"invoiceID", created.AggregateID(),
		"rHash", created.RHash,
		"amount", created.Amount)

	return p.repo.SaveInvoiceView(ctx, view.InvoiceView{
		ID:              created.AggregateID(),
		NodeID:          created.NodeID,
		RHash:           created.RHash,
		PaymentRequest:  created.PaymentRequest,
		Memo:            created.Memo,
		Currency:        created.Amount.Currency,
		AmountRequested: created.Amount.Value,
		Status:          string(model.InvoiceAwaitingPayment),
		CreatedAt:       created.Timestamp(),
		ExpiresAt:       created.ExpiresAt,
		Sequence:        created.Sequence(),
	})
}

func (p *InvoiceProjectionHandler) handleInvoiceSettled(ctx context.Context, evt eventsrc.OutboxEvent) error {
	var settled event.InvoiceSettled
	if err := json.Unmarshal(evt.Payload, &settled); err != nil {
		return fmt.Errorf("failed to unmarshal InvoiceSettled event: %w", err)
	}

	return p.update(ctx, evt, func(v *view.InvoiceView) {
		v.AmountReceived = settled.Received.Value
		v.Overpaid = settled.Overpaid
		v.Status = string(model.InvoiceSettled)
		settledAt := settled.SettledAt
		v.SettledAt = &settledAt
	})
}

func (p *InvoiceProjectionHandler) handleInvoiceExpired(ctx context.Context, evt eventsrc.OutboxEvent) error {
	var expired event.InvoiceExpired
	if err := json.Unmarshal(evt.Payload, &expired); err != nil {
		return fmt.Errorf("failed to unmarshal InvoiceExpired event: %w", err)
	}

	return p.update(ctx, evt, func(v *view.InvoiceView) {
		v.Status = string(model.InvoiceExpired)
	})
}

func (p *InvoiceProjectionHandler) handleInvoiceCanceled(ctx context.Context, evt eventsrc.OutboxEvent) error {
	var canceled event.InvoiceCanceled
	if err := json.Unmarshal(evt.Payload, &canceled); err != nil {
		return fmt.Errorf("failed to unmarshal InvoiceCanceled event: %w", err)
	}

	return p.update(ctx, evt, func(v *view.InvoiceView) {
		v.Status = string(model.InvoiceCanceled)
	})
}

func (p *InvoiceProjectionHandler) handleInvoiceFailed(ctx context.Context, evt eventsrc.OutboxEvent) error {
	var failed event.InvoiceFailed
	if err := json.Unmarshal(evt.Payload, &failed); err != nil {
		return fmt.Errorf("failed to unmarshal InvoiceFailed event: %w", err)
	}

	return p.update(ctx, evt, func(v *view.InvoiceView) {
		v.Status = string(model.InvoiceFailed)
		v.FailureReason = failed.Reason
		v.AmountReceived = failed.Received.Value
	})
}

// update loads the existing view, applies fn and saves it with the event's
// sequence. The projection decorator guarantees in-order delivery, so a
// missing view here means the stream is corrupt.
func (p *InvoiceProjectionHandler) update(
	ctx context.Context,
	evt eventsrc.OutboxEvent,
	fn func(v *view.InvoiceView),
) error {
	v, err := p.repo.GetInvoiceViewByID(ctx, evt.AggregateID)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("invoice view %s not found for event %s", evt.AggregateID, evt.EventType)
	}
	fn(v)
	v.Sequence = evt.Sequence
	return p.repo.SaveInvoiceView(ctx, *v)
}
