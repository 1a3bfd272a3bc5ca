// Package money holds integer minor-unit arithmetic with decimal rates.
package money

import "github.com/shopspring/decimal"

var one = decimal.NewFromInt(1)

// ApplyRate returns round_half_up(amount × rate) in minor units.
func ApplyRate(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

// EmbeddedShare returns the part of gross that a rate added on top of a net
// amount accounts for: gross − round_half_up(gross / (1 + rate)).
func EmbeddedShare(gross int64, rate decimal.Decimal) int64 {
	net := decimal.NewFromInt(gross).Div(one.Add(rate)).Round(0).IntPart()
	return gross - net
}

// ValidRate reports whether 0 ≤ rate < 1.
func ValidRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThan(one)
}
