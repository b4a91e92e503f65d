package payment

import "fmt"

// Currency is the settlement currency of an amount.
type Currency string

const (
	BTC Currency = "BTC"
	USD Currency = "USD"
)

// Amount is a monetary amount in the smallest unit of its currency
// (satoshis for BTC, cents for USD).
type Amount struct {
	Currency Currency `json:"currency"`
	Value    uint64   `json:"value"`
}

func NewAmount(currency Currency, value uint64) Amount {
	return Amount{Currency: currency, Value: value}
}

// Sats is a convenience constructor for BTC amounts denominated in satoshis.
func Sats(sats uint64) Amount {
	return Amount{Currency: BTC, Value: sats}
}

func Zero(currency Currency) Amount {
	return Amount{Currency: currency}
}

func (a Amount) IsZero() bool { return a.Value == 0 }

func (a Amount) String() string {
	return fmt.Sprintf("%d %s", a.Value, a.Currency)
}
