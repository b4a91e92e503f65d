package event

import (
	"github.com/tompro/payday/eventsrc"
	"github.com/tompro/payday/payment"
)

const InvoiceFailedEventType = "InvoiceFailed"

// InvoiceFailed terminates an invoice without settlement, e.g. an underpaid
// settlement attempt. Received carries the amount that did arrive, if any.
type InvoiceFailed struct {
	eventsrc.BaseEvent
	Reason   payment.FailureReason `json:"reason"`
	Received payment.Amount        `json:"received"`
}

func (e InvoiceFailed) EventType() string { return InvoiceFailedEventType }

func init() {
	eventsrc.RegisterEvent(InvoiceFailedEventType, func() eventsrc.Event {
		return &InvoiceFailed{}
	})
}
