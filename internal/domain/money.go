package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Price is a fixed-point price in units of 1/100 of a cent.
type Price int64

// Cents is an amount of money in the smallest currency unit.
type Cents int64

// Units is an order or position size in whole instrument units.
type Units int64

const (
	// PriceUnitsPerCent is the number of price units in one cent.
	PriceUnitsPerCent = 100
	// priceExp is the decimal exponent of one price unit relative to one currency unit.
	priceExp = -4
	// BasisPoints is the denominator for rates expressed in basis points.
	BasisPoints = 10_000
)

// ParsePrice converts a decimal string such as "1834.5521" into price units,
// rounding half away from zero below 1/100 of a cent.
func ParsePrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parsing price '%s': %w", s, err)
	}
	return PriceFromDecimal(d), nil
}

// PriceFromDecimal converts a decimal currency amount into price units.
func PriceFromDecimal(d decimal.Decimal) Price {
	return Price(d.Shift(-priceExp).Round(0).IntPart())
}

// PriceOf rounds an indicator-derived value (already in price units) to a Price.
func PriceOf(v float64) Price {
	return Price(math.Round(v))
}

// Decimal returns the price as a currency amount.
func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), priceExp)
}

func (p Price) String() string {
	return p.Decimal().String()
}

// Cents returns the price truncated to whole cents.
func (p Price) Cents() Cents {
	return Cents(int64(p) / PriceUnitsPerCent)
}

// Decimal returns the amount as a currency amount with two decimals.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// Abs returns the absolute amount.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// Abs returns the absolute size.
func (u Units) Abs() Units {
	if u < 0 {
		return -u
	}
	return u
}

// Notional is the cash value in cents of size units at price p.
func Notional(size Units, p Price) Cents {
	return Cents(int64(size.Abs()) * int64(p) / PriceUnitsPerCent)
}

// ApplyBps returns amount*bps/10000 rounded half up. amount must be non-negative.
func ApplyBps(amount Cents, bps int64) Cents {
	return Cents((int64(amount)*bps + BasisPoints/2) / BasisPoints)
}

// PnL is the profit in cents of holding signed size from entry to exit.
func PnL(size Units, entry, exit Price) Cents {
	return Cents(int64(size) * int64(exit-entry) / PriceUnitsPerCent)
}

// UnitsAffordable returns the largest size whose notional at p does not exceed budget.
func UnitsAffordable(budget Cents, p Price) Units {
	if budget <= 0 || p <= 0 {
		return 0
	}
	return Units(int64(budget) * PriceUnitsPerCent / int64(p))
}
