package engine

import "github.com/shopspring/decimal"

// Interior math runs on float64; values are pushed through decimal only
// when they land in a balance or a quoted price, rounding half away from
// zero. Money carries 4 decimal places, prices 6.

func round4(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(4).Float64()
	return f
}

func round6(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(6).Float64()
	return f
}

// RoundMoney rounds a currency amount to its stored precision.
func RoundMoney(v float64) float64 { return round4(v) }

// RoundPrice rounds a unit price to its stored precision.
func RoundPrice(v float64) float64 { return round6(v) }
