package event

import (
	"github.com/tompro/payday/eventsrc"
	"github.com/tompro/payday/payment"
)

const PaymentInitiatedEventType = "PaymentInitiated"

// PaymentInitiated is the initial event of an outgoing payment stream. It is
// appended and committed before the node is asked to pay, so the attempt is
// durably recorded even if the process crashes mid-call.
type PaymentInitiated struct {
	eventsrc.BaseEvent
	NodeID         string         `json:"node_id"`
	PaymentRequest string         `json:"payment_request"`
	Amount         payment.Amount `json:"amount"`
}

func (e PaymentInitiated) EventType() string { return PaymentInitiatedEventType }

func init() {
	eventsrc.RegisterEvent(PaymentInitiatedEventType, func() eventsrc.Event {
		return &PaymentInitiated{}
	})
}
