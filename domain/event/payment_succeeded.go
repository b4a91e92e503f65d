package event

import (
	"time"

	"github.com/tompro/payday/eventsrc"
	"github.com/tompro/payday/payment"
)

const PaymentSucceededEventType = "PaymentSucceeded"

// PaymentSucceeded is the terminal success of an outgoing payment attempt.
type PaymentSucceeded struct {
	eventsrc.BaseEvent
	PaymentHash string         `json:"payment_hash"`
	Fee         payment.Amount `json:"fee"`
	SettledAt   time.Time      `json:"settled_at"`
}

func (e PaymentSucceeded) EventType() string { return PaymentSucceededEventType }

func init() {
	eventsrc.RegisterEvent(PaymentSucceededEventType, func() eventsrc.Event {
		return &PaymentSucceeded{}
	})
}
