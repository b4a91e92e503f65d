package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tompro/payday/command"
	"github.com/tompro/payday/domain/model"
	"github.com/tompro/payday/node"
	"github.com/tompro/payday/payment"
	"github.com/tompro/payday/query/view"
)

// PayoutLookup lists payout views by status. Implemented by the payout view
// repository.
type PayoutLookup interface {
	ListPayoutViewsByStatus(ctx context.Context, status string, limit int) ([]view.PayoutView, error)
}

const payoutResolveBatch = 100

// PayoutResolver re-resolves payouts that were not terminal when the
// process stopped. It asks the node for the current state of each attempt
// and records terminal outcomes; attempts the node still reports as pending
// stay in flight until the next run.
type PayoutResolver struct {
	ln           node.LightningNode
	lookup       PayoutLookup
	resolver     *command.ResolvePayoutHandler
	observations ObservationRecorder
}

func NewPayoutResolver(
	ln node.LightningNode,
	lookup PayoutLookup,
	resolver *command.ResolvePayoutHandler,
	observations ObservationRecorder,
) *PayoutResolver {
	return &PayoutResolver{ln: ln, lookup: lookup, resolver: resolver, observations: observations}
}

// ResolveInFlight queries the node for every non-terminal payout and applies
// terminal outcomes. It is called once at startup, after the projections
// have caught up. A crash can strand a payout in either non-terminal status:
// initiated means the process died during the node call itself, before any
// answer was recorded.
func (r *PayoutResolver) ResolveInFlight(ctx context.Context) error {
	payouts, err := r.listUnresolved(ctx)
	if err != nil {
		return err
	}
	if len(payouts) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Resolving unresolved payouts", "count", len(payouts))

	for _, p := range payouts {
		if p.PaymentHash == "" {
			// The process died before the node reported back; there is no
			// hash to poll. Surface the payout durably so the operator can
			// check the node's attempt list against the stored request.
			slog.WarnContext(ctx, "Payout has no recorded attempt",
				"payoutID", p.ID, "status", p.Status)
			recordObservation(ctx, r.observations, model.PaymentObservation{
				Kind:       model.ObservationStrandedPayout,
				Reference:  p.ID.String(),
				Amount:     payment.NewAmount(p.Currency, p.Amount),
				Details:    "payment request " + p.PaymentRequest,
				ObservedAt: p.CreatedAt,
			})
			continue
		}

		result, err := r.ln.PaymentStatus(ctx, p.PaymentHash)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to query payment status",
				"payoutID", p.ID, "paymentHash", p.PaymentHash, "error", err)
			continue
		}

		applied, err := r.resolver.Handle(ctx, command.ResolvePayout{PayoutID: p.ID, Result: result})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to resolve payout", "payoutID", p.ID, "error", err)
			continue
		}
		if applied {
			slog.InfoContext(ctx, "Payout resolved after restart",
				"payoutID", p.ID, "state", result.State)
		}
	}
	return nil
}

// listUnresolved collects payout views in both non-terminal statuses.
func (r *PayoutResolver) listUnresolved(ctx context.Context) ([]view.PayoutView, error) {
	var payouts []view.PayoutView
	for _, status := range []model.PayoutStatus{model.PayoutInitiated, model.PayoutInFlight} {
		views, err := r.lookup.ListPayoutViewsByStatus(ctx, string(status), payoutResolveBatch)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s payouts: %w", status, err)
		}
		payouts = append(payouts, views...)
	}
	return payouts, nil
}
