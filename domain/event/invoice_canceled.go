package event

import "github.com/tompro/payday/eventsrc"

const InvoiceCanceledEventType = "InvoiceCanceled"

// InvoiceCanceled marks an operator-initiated cancellation of an invoice
// that was still awaiting payment.
type InvoiceCanceled struct {
	eventsrc.BaseEvent
	Reason string `json:"reason"`
}

func (e InvoiceCanceled) EventType() string { return InvoiceCanceledEventType }

func init() {
	eventsrc.RegisterEvent(InvoiceCanceledEventType, func() eventsrc.Event {
		return &InvoiceCanceled{}
	})
}
