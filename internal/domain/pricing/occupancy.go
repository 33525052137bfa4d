package pricing

import "github.com/shopspring/decimal"

// Occupancy carries the guest-count part of a property's pricing.
type Occupancy struct {
	BaseOccupancy int
	MaxGuests     int
	ExtraGuestFee float64
}

// Bounds returns the inclusive guest-count range the table covers. A base
// below one is raised to one, and a max below base collapses to base.
func (o Occupancy) Bounds() (int, int) {
	lo := o.BaseOccupancy
	if lo < 1 {
		lo = 1
	}
	hi := o.MaxGuests
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// OccupancyPrices builds the guest-count to nightly-price table for one day.
// Flat-rate days charge the same price for every guest count.
func OccupancyPrices(nightly float64, occ Occupancy, flatRate bool) map[int]float64 {
	lo, hi := occ.Bounds()
	prices := make(map[int]float64, hi-lo+1)
	base := decimal.NewFromFloat(nightly)
	fee := decimal.NewFromFloat(occ.ExtraGuestFee)
	if fee.IsNegative() {
		fee = decimal.Zero
	}
	for guests := lo; guests <= hi; guests++ {
		if flatRate {
			prices[guests] = Round(base)
			continue
		}
		extra := decimal.NewFromInt(int64(guests - lo))
		prices[guests] = Round(base.Add(extra.Mul(fee)))
	}
	return prices
}
