// Package money holds the fixed-point conventions shared by tariffs, bookings
// and invoices: euro amounts with two fraction digits.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const Places = 2

// Zero is 0.00.
var Zero = decimal.New(0, -Places)

// Round rounds half away from zero to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Format renders d with exactly two fraction digits, e.g. "37.99".
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// Parse reads an amount, accepting a decimal comma ("30,80").
func Parse(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Round(d), nil
}

// MustParse is Parse for compile-time constants.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}
