package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tompro/payday/payment"
)

// InvoiceStatus is the lifecycle state of an incoming invoice.
type InvoiceStatus string

const (
	InvoiceAwaitingPayment InvoiceStatus = "awaiting_payment"
	InvoiceSettled         InvoiceStatus = "settled"
	InvoiceExpired         InvoiceStatus = "expired"
	InvoiceCanceled        InvoiceStatus = "canceled"
	InvoiceFailed          InvoiceStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s InvoiceStatus) Terminal() bool {
	switch s {
	case InvoiceSettled, InvoiceExpired, InvoiceCanceled, InvoiceFailed:
		return true
	}
	return false
}

// Invoice is the materialized state of an incoming payment aggregate. It is
// owned exclusively by its event stream; all changes happen by appending an
// event and re-deriving.
type Invoice struct {
	ID              uuid.UUID             `json:"id"`
	NodeID          string                `json:"node_id"`
	RHash           string                `json:"r_hash"`
	PaymentRequest  string                `json:"payment_request"`
	Memo            string                `json:"memo"`
	AmountRequested payment.Amount        `json:"amount_requested"`
	AmountReceived  payment.Amount        `json:"amount_received"`
	Overpaid        bool                  `json:"overpaid"`
	Status          InvoiceStatus         `json:"status"`
	FailureReason   payment.FailureReason `json:"failure_reason,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	ExpiresAt       time.Time             `json:"expires_at"`
	SettledAt       *time.Time            `json:"settled_at,omitempty"`
}

func (i Invoice) Validate() error {
	if i.Status == "" {
		return errors.New("invoice has no status")
	}
	if i.RHash == "" {
		return errors.New("invoice has no node reference")
	}
	if i.AmountRequested.IsZero() {
		return fmt.Errorf("invoice %s has a zero requested amount", i.ID)
	}
	if i.Status == InvoiceSettled && i.SettledAt == nil {
		return fmt.Errorf("settled invoice %s has no settlement time", i.ID)
	}
	return nil
}
