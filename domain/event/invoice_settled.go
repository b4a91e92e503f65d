package event

import (
	"time"

	"github.com/tompro/payday/eventsrc"
	"github.com/tompro/payday/payment"
)

const InvoiceSettledEventType = "InvoiceSettled"

// InvoiceSettled records a settlement covering the requested amount.
// Overpayment is accepted and flagged; an underpaid settlement is never
// recorded as settled but as InvoiceFailed with reason underpaid.
type InvoiceSettled struct {
	eventsrc.BaseEvent
	Received  payment.Amount `json:"received"`
	Overpaid  bool           `json:"overpaid"`
	SettledAt time.Time      `json:"settled_at"`
}

func (e InvoiceSettled) EventType() string { return InvoiceSettledEventType }

func init() {
	eventsrc.RegisterEvent(InvoiceSettledEventType, func() eventsrc.Event {
		return &InvoiceSettled{}
	})
}
