package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tompro/payday/payment"
)

// PayoutStatus is the lifecycle state of an outgoing payment attempt.
type PayoutStatus string

const (
	PayoutInitiated PayoutStatus = "initiated"
	PayoutInFlight  PayoutStatus = "in_flight"
	PayoutSucceeded PayoutStatus = "succeeded"
	PayoutFailed    PayoutStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s. Failed
// payouts are never retried on the same aggregate; a retry is a new aggregate
// so the failed attempt stays auditable.
func (s PayoutStatus) Terminal() bool {
	return s == PayoutSucceeded || s == PayoutFailed
}

// Payout is the materialized state of an outgoing payment aggregate.
type Payout struct {
	ID             uuid.UUID             `json:"id"`
	NodeID         string                `json:"node_id"`
	PaymentRequest string                `json:"payment_request"`
	PaymentHash    string                `json:"payment_hash,omitempty"`
	Amount         payment.Amount        `json:"amount"`
	Fee            payment.Amount        `json:"fee"`
	Status         PayoutStatus          `json:"status"`
	FailureReason  payment.FailureReason `json:"failure_reason,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	SettledAt      *time.Time            `json:"settled_at,omitempty"`
}

func (p Payout) Validate() error {
	if p.Status == "" {
		return errors.New("payout has no status")
	}
	if p.PaymentRequest == "" {
		return errors.New("payout has no payment request")
	}
	if p.Amount.IsZero() {
		return fmt.Errorf("payout %s has a zero amount", p.ID)
	}
	if p.Status == PayoutFailed && p.FailureReason == "" {
		return fmt.Errorf("failed payout %s has no failure reason", p.ID)
	}
	return nil
}
