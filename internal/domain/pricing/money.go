package pricing

import "github.com/shopspring/decimal"

const pricePlaces = 2

// Round rounds v half away from zero to cents.
func Round(v decimal.Decimal) float64 {
	f, _ := v.Round(pricePlaces).Float64()
	return f
}

// Multiply returns amount*factor rounded to cents.
func Multiply(amount, factor float64) float64 {
	return Round(decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(factor)))
}

// Average returns the rounded arithmetic mean of values, or fallback when empty.
func Average(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return Round(sum.Div(decimal.NewFromInt(int64(len(values)))))
}

// Round2 rounds a plain float to cents.
func Round2(v float64) float64 {
	return Round(decimal.NewFromFloat(v))
}
