package aggregate

import (
	"encoding/json"

	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/eventsrc"
)

const PayoutAggregateType eventsrc.AggregateType = "payouts"

// PayoutAggregate is the aggregate root for outgoing payments.
type PayoutAggregate struct {
	*eventsrc.AggregateRoot
	Payout model.Payout
}

// NewPayoutAggregateEmpty is a factory for creating a new, empty
// PayoutAggregate instance.
func NewPayoutAggregateEmpty() *PayoutAggregate {
	a := &PayoutAggregate{}
	a.AggregateRoot = eventsrc.NewAggregateRoot(PayoutAggregateType, a.Apply, a.Validate)
	return a
}

// Validate checks if the aggregate's current state is consistent.
func (a *PayoutAggregate) Validate() error {
	return a.Payout.Validate()
}

// MarshalJSON implements the json.Marshaler interface for creating snapshots.
func (a *PayoutAggregate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Payout   model.Payout `json:"payout"`
		Sequence int          `json:"sequence"`
	}{Payout: a.Payout, Sequence: a.Sequence()})
}

// UnmarshalJSON implements the json.Unmarshaler interface for restoring from
// snapshots.
func (a *PayoutAggregate) UnmarshalJSON(data []byte) error {
	a.AggregateRoot = eventsrc.NewAggregateRoot(PayoutAggregateType, a.Apply, a.Validate)

	aux := struct {
		Payout   model.Payout `json:"payout"`
		Sequence int          `json:"sequence"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.Payout = aux.Payout
	a.SetID(aux.Payout.ID)
	a.SetSequence(aux.Sequence)
	return nil
}
