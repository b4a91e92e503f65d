package repository

import (
	"github.com/tompro/payday/domain/aggregate"
	"github.com/tompro/payday/eventsrc"
)

// InvoiceRepository loads and saves incoming invoice aggregates.
type InvoiceRepository struct {
	*eventsrc.Repository[*aggregate.InvoiceAggregate]
}

// NewInvoiceRepository creates a repository for the invoice aggregate.
// It internally creates a generic eventsrc.Repository configured with the
// empty-aggregate factory.
func NewInvoiceRepository(store eventsrc.Store) *InvoiceRepository {
	return &InvoiceRepository{
		Repository: eventsrc.NewRepository(store, aggregate.InvoiceAggregateType, aggregate.NewInvoiceAggregateEmpty),
	}
}

// PayoutRepository loads and saves outgoing payment aggregates.
type PayoutRepository struct {
	*eventsrc.Repository[*aggregate.PayoutAggregate]
}

// NewPayoutRepository creates a repository for the payout aggregate.
func NewPayoutRepository(store eventsrc.Store) *PayoutRepository {
	return &PayoutRepository{
		Repository: eventsrc.NewRepository(store, aggregate.PayoutAggregateType, aggregate.NewPayoutAggregateEmpty),
	}
}
