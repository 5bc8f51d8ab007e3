package reconcile

import "github.com/shopspring/decimal"

// MinorToDecimal converts an amount in minor units (cents) to a 2 dp decimal,
// rounding half up.
func MinorToDecimal(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(decimal.NewFromInt(100)).Round(2)
}
