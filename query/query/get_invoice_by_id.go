package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tompro/payday/query/repository"
	"github.com/tompro/payday/query/view"
)

// ErrInvoiceNotFound is returned when no invoice view exists for the queried ID.
var ErrInvoiceNotFound = errors.New("invoice not found")

type GetInvoiceByID struct {
	ID uuid.UUID `json:"id"`
}

// GetInvoiceByIDHandler is a handler for retrieving an invoice view by its ID.
type GetInvoiceByIDHandler struct {
	repository *repository.InvoiceViewRepository
}

func NewGetInvoiceByIDHandler(repository *repository.InvoiceViewRepository) *GetInvoiceByIDHandler {
	return &GetInvoiceByIDHandler{repository: repository}
}

// Query retrieves an invoice view by its ID.
func (g GetInvoiceByIDHandler) Query(ctx context.Context, query GetInvoiceByID) (view.InvoiceView, error) {
	invoiceView, err := g.repository.GetInvoiceViewByID(ctx, query.ID)
	if err != nil {
		return view.InvoiceView{}, fmt.Errorf("get invoice view by id = %s failed. %w", query.ID, err)
	}
	if invoiceView == nil {
		return view.InvoiceView{}, fmt.Errorf("invoice with id = %s not found. %w", query.ID, ErrInvoiceNotFound)
	}
	return *invoiceView, nil
}
