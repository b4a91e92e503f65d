package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tompro/payday/query/repository"
	"github.com/tompro/payday/query/view"
)

// ErrPayoutNotFound is returned when no payout view exists for the queried ID.
var ErrPayoutNotFound = errors.New("payout not found")

type GetPayoutByID struct {
	ID uuid.UUID `json:"id"`
}

// GetPayoutByIDHandler is a handler for retrieving a payout view by its ID.
type GetPayoutByIDHandler struct {
	repository *repository.PayoutViewRepository
}

func NewGetPayoutByIDHandler(repository *repository.PayoutViewRepository) *GetPayoutByIDHandler {
	return &GetPayoutByIDHandler{repository: repository}
}

// Query retrieves a payout view by its ID.
func (g GetPayoutByIDHandler) Query(ctx context.Context, query GetPayoutByID) (view.PayoutView, error) {
	payoutView, err := g.repository.GetPayoutViewByID(ctx, query.ID)
	if err != nil {
		return view.PayoutView{}, fmt.Errorf("get payout view by id = %s failed. %w", query.ID, err)
	}
	if payoutView == nil {
		return view.PayoutView{}, fmt.Errorf("payout with id = %s not found. %w", query.ID, ErrPayoutNotFound)
	}
	return *payoutView, nil
}
