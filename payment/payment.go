package payment

// Type distinguishes the rails a payment travels on.
type Type string

const (
	TypeLightning Type = "lightning"
	TypeOnChain   Type = "onchain"
)

// Direction of a payment aggregate relative to our node.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// FailureReason is the taxonomy for failed payment attempts and rejected
// settlements.
type FailureReason string

const (
	ReasonRouteNotFound       FailureReason = "route_not_found"
	ReasonInsufficientBalance FailureReason = "insufficient_balance"
	ReasonTimeout             FailureReason = "timeout"
	ReasonNodeError           FailureReason = "node_error"
	ReasonUnderpaid           FailureReason = "underpaid"
)
