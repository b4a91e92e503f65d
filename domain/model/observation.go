package model

import (
	"time"

	"github.com/tompro/payday/payment"
)

// ObservationKind classifies payment sightings that no aggregate owns.
type ObservationKind string

const (
	// ObservationUnexpectedSettlement is a settlement whose reference
	// resolves to no known invoice.
	ObservationUnexpectedSettlement ObservationKind = "unexpected_settlement"
	// ObservationUnexpectedDeposit is an on-chain payment to an address we
	// never issued.
	ObservationUnexpectedDeposit ObservationKind = "unexpected_deposit"
	// ObservationUnconfirmedDeposit is an on-chain payment still below the
	// confirmation threshold.
	ObservationUnconfirmedDeposit ObservationKind = "unconfirmed_deposit"
	// ObservationStrandedPayout is a payout whose node attempt state is
	// unknown because no payment hash was recorded before the process died.
	ObservationStrandedPayout ObservationKind = "stranded_payout"
)

// PaymentObservation is a durable record of such a sighting, kept for
// operator review. Kind plus Reference identify a record; redelivered
// sightings collapse into one row.
type PaymentObservation struct {
	Kind       ObservationKind
	Reference  string
	Amount     payment.Amount
	Details    string
	ObservedAt time.Time
}
