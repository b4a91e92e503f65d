package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tompro/payday/cqrs"
	"github.com/tompro/payday/domain/repository"
	"github.com/tompro/payday/node"
	"github.com/tompro/payday/payment"
)

// ResolvePayout applies a node-reported status update to an in-flight
// payout. The reconciler issues it for asynchronous payment updates and when
// re-resolving in-flight payouts after a restart.
type ResolvePayout struct {
	PayoutID uuid.UUID
	Result   node.AttemptResult
}

// ResolvePayoutHandler handles the ResolvePayout command.
type ResolvePayoutHandler struct {
	repo       *repository.PayoutRepository
	transactor cqrs.Transactor
}

func NewResolvePayoutHandler(repo *repository.PayoutRepository, transactor cqrs.Transactor) *ResolvePayoutHandler {
	return &ResolvePayoutHandler{repo: repo, transactor: transactor}
}

// Handle applies the update. Updates against a payout that already reached
// the reported terminal state are no-ops; a still in-flight report leaves
// the aggregate untouched.
func (h *ResolvePayoutHandler) Handle(ctx context.Context, cmd ResolvePayout) (bool, error) {
	var applied bool
	err := withConflictRetry(ctx, func(ctx context.Context) error {
		return h.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
			a, err := h.repo.Load(txCtx, cmd.PayoutID)
			if err != nil {
				return err
			}

			switch cmd.Result.State {
			case node.AttemptSucceeded:
				applied, err = a.Succeed(txCtx, cmd.Result.PaymentHash, cmd.Result.Fee, time.Now().UTC())
			case node.AttemptFailed:
				reason := cmd.Result.Reason
				if reason == "" {
					reason = payment.ReasonNodeError
				}
				applied, err = a.Fail(txCtx, reason)
			default:
				// Still in flight on the node, nothing to record.
				applied = false
				return nil
			}
			if err != nil {
				return err
			}
			if !applied {
				slog.WarnContext(txCtx, "Duplicate payout update ignored",
					"payoutID", cmd.PayoutID, "status", a.Payout.Status)
				return nil
			}
			return h.repo.Save(txCtx, a)
		})
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to handle ResolvePayout", "error", err, "payoutID", cmd.PayoutID)
		return false, err
	}
	return applied, nil
}
