package event

import (
	"github.com/tompro/payday/eventsrc"
	"github.com/tompro/payday/payment"
)

const PaymentFailedEventType = "PaymentFailed"

// PaymentFailed is the terminal failure of an outgoing payment attempt.
// The aggregate never retries; a new PaymentInitiated on a new aggregate id
// represents a retry.
type PaymentFailed struct {
	eventsrc.BaseEvent
	Reason payment.FailureReason `json:"reason"`
}

func (e PaymentFailed) EventType() string { return PaymentFailedEventType }

func init() {
	eventsrc.RegisterEvent(PaymentFailedEventType, func() eventsrc.Event {
		return &PaymentFailed{}
	})
}
