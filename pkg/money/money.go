// Package money converts between decimal amounts on the API edge and the
// int64 minor units persisted by the core.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const minorExponent = 2

var hundred = decimal.NewFromInt(100)

// ErrOutOfRange reports an amount that does not fit in int64 minor units.
var ErrOutOfRange = errors.New("amount out of range")

// ToCents converts a decimal amount into minor units. Amounts with more than
// two fractional digits are rejected rather than rounded.
func ToCents(amount decimal.Decimal) (int64, error) {
	scaled := amount.Mul(hundred)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", amount.String(), minorExponent)
	}
	return toInt64(scaled)
}

// LineTotal multiplies a quantity by a unit price without wrapping.
func LineTotal(quantity, unitCents int64) (int64, error) {
	return toInt64(decimal.NewFromInt(quantity).Mul(decimal.NewFromInt(unitCents)))
}

// Add sums minor-unit amounts without wrapping.
func Add(a, b int64) (int64, error) {
	return toInt64(decimal.NewFromInt(a).Add(decimal.NewFromInt(b)))
}

func toInt64(whole decimal.Decimal) (int64, error) {
	n := whole.BigInt()
	if !n.IsInt64() {
		return 0, fmt.Errorf("%w: %s", ErrOutOfRange, whole.String())
	}
	return n.Int64(), nil
}

// ParseCents parses a decimal string such as "100.00" into minor units.
func ParseCents(value string) (int64, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return ToCents(amount)
}

// FromCents converts minor units back into a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -minorExponent)
}

// Format renders minor units with exactly two decimal places.
func Format(cents int64) string {
	return FromCents(cents).StringFixed(minorExponent)
}
