package event

import (
	"time"

	"github.com/tompro/payday/eventsrc"
	"github.com/tompro/payday/payment"
)

const InvoiceCreatedEventType = "InvoiceCreated"

// InvoiceCreated is the initial event of an incoming invoice stream. It
// carries the node's real external reference (r_hash) because the node call
// happens before this event is appended.
type InvoiceCreated struct {
	eventsrc.BaseEvent
	NodeID         string         `json:"node_id"`
	RHash          string         `json:"r_hash"`
	PaymentRequest string         `json:"payment_request"`
	Memo           string         `json:"memo,omitempty"`
	Amount         payment.Amount `json:"amount"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

func (e InvoiceCreated) EventType() string { return InvoiceCreatedEventType }

func init() {
	eventsrc.RegisterEvent(InvoiceCreatedEventType, func() eventsrc.Event {
		return &InvoiceCreated{}
	})
}
