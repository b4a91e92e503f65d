package view

import (
	"time"

	"github.com/google/uuid"

	"github.com/tompro/payday/payment"
)

// InvoiceView is the denormalized read model of an incoming invoice.
type InvoiceView struct {
	ID              uuid.UUID             `json:"id"`
	NodeID          string                `json:"node_id"`
	RHash           string                `json:"r_hash"`
	PaymentRequest  string                `json:"payment_request"`
	Memo            string                `json:"memo,omitempty"`
	Currency        payment.Currency      `json:"currency"`
	AmountRequested uint64                `json:"amount_requested"`
	AmountReceived  uint64                `json:"amount_received"`
	Overpaid        bool                  `json:"overpaid"`
	Status          string                `json:"status"`
	FailureReason   payment.FailureReason `json:"failure_reason,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	ExpiresAt       time.Time             `json:"expires_at"`
	SettledAt       *time.Time            `json:"settled_at,omitempty"`
	Sequence        int                   `json:"-"`
}

// PayoutView is the denormalized read model of an outgoing payment.
type PayoutView struct {
	ID             uuid.UUID             `json:"id"`
	NodeID         string                `json:"node_id"`
	PaymentRequest string                `json:"payment_request"`
	PaymentHash    string                `json:"payment_hash,omitempty"`
	Currency       payment.Currency      `json:"currency"`
	Amount         uint64                `json:"amount"`
	Fee            uint64                `json:"fee"`
	Status         string                `json:"status"`
	FailureReason  payment.FailureReason `json:"failure_reason,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	SettledAt      *time.Time            `json:"settled_at,omitempty"`
	Sequence       int                   `json:"-"`
}
