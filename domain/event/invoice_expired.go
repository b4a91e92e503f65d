package event

import (
	"time"

	"github.com/tompro/payday/eventsrc"
)

const InvoiceExpiredEventType = "InvoiceExpired"

// InvoiceExpired marks an invoice that passed its expiry without settlement.
// A settlement already appended to the stream always wins over expiry.
type InvoiceExpired struct {
	eventsrc.BaseEvent
	At time.Time `json:"at"`
}

func (e InvoiceExpired) EventType() string { return InvoiceExpiredEventType }

func init() {
	eventsrc.RegisterEvent(InvoiceExpiredEventType, func() eventsrc.Event {
		return &InvoiceExpired{}
	})
}
