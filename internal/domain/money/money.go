// Package money converts between decimal-string amounts and integer
// minor units (cents). All ledger arithmetic happens in cents; strings
// exist only at the boundary.
package money

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// maxCents bounds amounts to what an int64 can hold; IntPart wraps
// silently past that.
var maxCents = decimal.NewFromInt(math.MaxInt64)

// ErrInvalidAmount is returned when a raw amount string is not a
// well-formed non-negative decimal with at most two fractional digits.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a decimal string to cents.
//
// Accepted: "10", "10.5", "10.50", "0.07". Rejected: empty strings,
// sign prefixes, exponents, thousands separators, more than two
// fractional digits.
func ParseAmount(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// decimal.NewFromString accepts exponent notation and leading signs;
	// the ledger's wire format does not.
	if strings.ContainsAny(s, "+-eE_, ") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if d.IsNegative() {
		return 0, ErrInvalidAmount
	}
	if d.Exponent() < -2 {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2)
	if !cents.IsInteger() {
		return 0, ErrInvalidAmount
	}
	if cents.GreaterThan(maxCents) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// FormatAmount renders cents as a canonical decimal string with two
// fractional digits. It is the exact inverse of ParseAmount:
// FormatAmount(1000) == "10.00".
func FormatAmount(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// Canonicalize reparses a raw amount string into its canonical
// two-decimal form ("10.1" -> "10.10").
func Canonicalize(raw string) (string, error) {
	cents, err := ParseAmount(raw)
	if err != nil {
		return "", err
	}
	return FormatAmount(cents), nil
}
