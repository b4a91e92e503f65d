package event

import "github.com/tompro/payday/eventsrc"

const PaymentInFlightEventType = "PaymentInFlight"

// PaymentInFlight records that the node accepted the attempt but has not yet
// confirmed a terminal outcome.
type PaymentInFlight struct {
	eventsrc.BaseEvent
	PaymentHash string `json:"payment_hash"`
}

func (e PaymentInFlight) EventType() string { return PaymentInFlightEventType }

func init() {
	eventsrc.RegisterEvent(PaymentInFlightEventType, func() eventsrc.Event {
		return &PaymentInFlight{}
	})
}
