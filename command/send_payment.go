package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tompro/payday/cqrs"
	"github.com/tompro/payday/domain/aggregate"
	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/domain/repository"
	"github.com/tompro/payday/node"
	"github.com/tompro/payday/payment"
)

// SendPayment is the command for an outgoing Lightning payment.
type SendPayment struct {
	ID             uuid.UUID
	PaymentRequest string
	Amount         payment.Amount
}

// SendPaymentHandler handles the SendPayment command.
type SendPaymentHandler struct {
	repo       *repository.PayoutRepository
	transactor cqrs.Transactor
	node       node.LightningNode
}

func NewSendPaymentHandler(
	repo *repository.PayoutRepository,
	transactor cqrs.Transactor,
	ln node.LightningNode,
) *SendPaymentHandler {
	return &SendPaymentHandler{
		repo:       repo,
		transactor: transactor,
		node:       ln,
	}
}

// Handle records PaymentInitiated durably BEFORE asking the node to pay.
// The node-side attempt may outlive the caller (it is not cancelable); with
// the intent on disk a crash mid-call leaves an in-flight payout the
// reconciler can resolve instead of a lost or duplicated attempt.
func (h *SendPaymentHandler) Handle(ctx context.Context, cmd SendPayment) (model.Payout, error) {
	slog.InfoContext(ctx, "Handling SendPayment", "payoutID", cmd.ID, "amount", cmd.Amount.String())

	err := h.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		a := aggregate.NewPayoutAggregateEmpty()
		if err := a.Initiate(txCtx, cmd.ID, h.node.NodeID(), cmd.PaymentRequest, cmd.Amount); err != nil {
			return fmt.Errorf("track payment initiation failed: %w", err)
		}
		return h.repo.Save(txCtx, a)
	})
	if err != nil {
		return model.Payout{}, fmt.Errorf("failed to record payment intent %s: %w", cmd.ID, err)
	}

	res, payErr := h.node.Pay(ctx, cmd.PaymentRequest, cmd.Amount)

	var final model.Payout
	err = withConflictRetry(ctx, func(ctx context.Context) error {
		return h.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
			a, err := h.repo.Load(txCtx, cmd.ID)
			if err != nil {
				return err
			}
			if err := h.applyAttemptOutcome(txCtx, a, res, payErr); err != nil {
				return err
			}
			if err := h.repo.Save(txCtx, a); err != nil {
				return err
			}
			final = a.Payout
			return nil
		})
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to record payment outcome", "error", err, "payoutID", cmd.ID)
		return model.Payout{}, err
	}

	slog.InfoContext(ctx, "Payment attempt recorded", "payoutID", cmd.ID, "status", final.Status)
	return final, nil
}

// applyAttemptOutcome translates the node's answer into domain events. A
// transport-level failure resolves to PaymentFailed: the intent is already
// recorded, so the failure must be too.
func (h *SendPaymentHandler) applyAttemptOutcome(
	ctx context.Context,
	a *aggregate.PayoutAggregate,
	res node.AttemptResult,
	payErr error,
) error {
	if payErr != nil {
		reason := payment.ReasonNodeError
		if errors.Is(payErr, context.DeadlineExceeded) {
			reason = payment.ReasonTimeout
		}
		slog.WarnContext(ctx, "Node payment call failed", "error", payErr, "payoutID", a.ID(), "reason", reason)
		_, err := a.Fail(ctx, reason)
		return err
	}

	switch res.State {
	case node.AttemptInFlight:
		_, err := a.MarkInFlight(ctx, res.PaymentHash)
		return err
	case node.AttemptSucceeded:
		_, err := a.Succeed(ctx, res.PaymentHash, res.Fee, time.Now().UTC())
		return err
	case node.AttemptFailed:
		reason := res.Reason
		if reason == "" {
			reason = payment.ReasonNodeError
		}
		_, err := a.Fail(ctx, reason)
		return err
	default:
		return fmt.Errorf("node reported unknown attempt state %q for payout %s", res.State, a.ID())
	}
}
