// Package domain defines the core types, interfaces, and sentinel errors for
// the Helix DeSci prediction-market engine. All amounts are integers in the
// smallest unit of their currency; pool math never mixes currencies.
package domain

import "fmt"

// Account is an address-like identifier. It holds no balance itself; balances
// live in the ledger. Every mutating operation is authorized per account.
type Account string

// Currency identifies one of the two fungible funding currencies.
type Currency string

const (
	// CurrencyNative is the chain's native coin.
	CurrencyNative Currency = "native"
	// CurrencyToken is the wrapped fungible token (FXRP in the demo economy).
	CurrencyToken Currency = "fxrp"
)

// Valid reports whether c is a known currency kind.
func (c Currency) Valid() bool {
	return c == CurrencyNative || c == CurrencyToken
}

// CurrencyAmount is a non-negative quantity tagged with its currency kind.
// Arithmetic across kinds is forbidden.
type CurrencyAmount struct {
	Currency Currency
	Amount   int64
}

// Validate checks the amount is non-negative and the currency is known.
func (a CurrencyAmount) Validate() error {
	if !a.Currency.Valid() {
		return fmt.Errorf("%w: unknown currency %q", ErrInvalidAmount, a.Currency)
	}
	if a.Amount < 0 {
		return fmt.Errorf("%w: negative amount %d", ErrInvalidAmount, a.Amount)
	}
	return nil
}

// Side is one of the two complementary outcome sides of a proposal market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether s is a known outcome side.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the complementary side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// ConversionRate is the explicit, versioned NATIVE->TOKEN conversion used to
// combine the two sub-pools into one value for pricing and the funding
// trigger. One native unit is worth Num/Den token units.
type ConversionRate struct {
	Num     int64
	Den     int64
	Version int
}

// TokenValue converts a native amount into token units, truncating toward
// zero. Truncation only affects displayed prices and the trigger condition,
// never minted shares or payouts.
func (r ConversionRate) TokenValue(native int64) int64 {
	if r.Den == 0 {
		return native
	}
	return native * r.Num / r.Den
}

// Validate checks the rate is positive.
func (r ConversionRate) Validate() error {
	if r.Num <= 0 || r.Den <= 0 {
		return fmt.Errorf("conversion rate must be positive, got %d/%d", r.Num, r.Den)
	}
	return nil
}
