package aggregate

import (
	"encoding/json"

	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/eventsrc"
)

const InvoiceAggregateType eventsrc.AggregateType = "invoices"

// InvoiceAggregate is the aggregate root for incoming payments. It embeds the
// base eventsrc.AggregateRoot for event sourcing behavior and holds its own
// state directly.
type InvoiceAggregate struct {
	*eventsrc.AggregateRoot
	Invoice model.Invoice
}

// NewInvoiceAggregateEmpty is a factory for creating a new, empty
// InvoiceAggregate instance. It's used by the repository to create a new
// aggregate before loading its history.
func NewInvoiceAggregateEmpty() *InvoiceAggregate {
	a := &InvoiceAggregate{}
	// The key is to link the base aggregate's apply method and validator
	// to the concrete aggregate's implementations.
	a.AggregateRoot = eventsrc.NewAggregateRoot(InvoiceAggregateType, a.Apply, a.Validate)
	return a
}

// Validate checks if the aggregate's current state is consistent.
func (a *InvoiceAggregate) Validate() error {
	return a.Invoice.Validate()
}

// --- Snapshotting via json.Marshaler / json.Unmarshaler ---

// MarshalJSON implements the json.Marshaler interface for creating snapshots.
// The sequence is part of the payload so a restored aggregate appends at the
// right position even when no events follow the snapshot.
func (a *InvoiceAggregate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Invoice  model.Invoice `json:"invoice"`
		Sequence int           `json:"sequence"`
	}{Invoice: a.Invoice, Sequence: a.Sequence()})
}

// UnmarshalJSON implements the json.Unmarshaler interface for restoring from
// snapshots.
func (a *InvoiceAggregate) UnmarshalJSON(data []byte) error {
	// Re-initialize the AggregateRoot with its methods before unmarshaling.
	a.AggregateRoot = eventsrc.NewAggregateRoot(InvoiceAggregateType, a.Apply, a.Validate)

	aux := struct {
		Invoice  model.Invoice `json:"invoice"`
		Sequence int           `json:"sequence"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.Invoice = aux.Invoice
	a.SetID(aux.Invoice.ID)
	a.SetSequence(aux.Sequence)
	return nil
}
