package event

// Broker topics, one per aggregate type so consumers observe an aggregate's
// events in order.
const (
	InvoiceTopic = "invoices"
	PayoutTopic  = "payouts"
)

// TopicFor maps an event type to its broker topic. Unknown event types map
// to the empty string and are skipped by the relay.
func TopicFor(eventType string) string {
	switch eventType {
	case InvoiceCreatedEventType, InvoiceSettledEventType, InvoiceExpiredEventType,
		InvoiceCanceledEventType, InvoiceFailedEventType:
		return InvoiceTopic
	case PaymentInitiatedEventType, PaymentInFlightEventType,
		PaymentSucceededEventType, PaymentFailedEventType:
		return PayoutTopic
	}
	return ""
}
