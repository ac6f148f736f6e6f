// Package money keeps monetary rounding in one place. Every derived amount is
// rounded to two decimals when it is written.
package money

import "github.com/shopspring/decimal"

// Round2 rounds v to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Mul returns round2(price * qty).
func Mul(price float64, qty int) float64 {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty))).Round(2).InexactFloat64()
}

// Percent returns round2(v * pct / 100).
func Percent(v, pct float64) float64 {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}

// Sum adds values without intermediate float error and rounds the result.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(2).InexactFloat64()
}

// Sub returns round2(a - b).
func Sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

// ToMinorUnits converts an amount to the smallest currency unit (cents).
func ToMinorUnits(v float64) int64 {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinorUnits converts an amount in the smallest currency unit back to a
// two-decimal amount.
func FromMinorUnits(v int64) float64 {
	return decimal.New(v, -2).InexactFloat64()
}
