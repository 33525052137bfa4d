package calendar

import (
	"time"

	"rentalspot/internal/domain/pricing"
	"rentalspot/internal/domain/property"
)

// DayRecord is one day of a price calendar.
type DayRecord struct {
	BasePrice     float64
	AdjustedPrice float64
	Prices        map[int]float64
	Available     bool
	MinimumStay   int
	IsWeekend     bool
	SeasonID      string
	SeasonName    string
	OverrideID    string
	Reason        string
	PriceSource   pricing.Source
}

type Summary struct {
	MinPrice         float64
	MaxPrice         float64
	AvgPrice         float64
	UnavailableDays  int
	ModifiedDays     int
	HasCustomPrices  bool
	HasSeasonalRates bool
}

// PriceCalendar is the per-month derived pricing document.
type PriceCalendar struct {
	ID          ShardID
	PropertyID  property.ID
	Month       YearMonth
	Days        map[int]DayRecord
	Summary     Summary
	GeneratedAt time.Time
	Revision    int64
}

func (c PriceCalendar) MonthLabel() string {
	return c.Month.Label()
}

// AvailabilityMap projects the calendar's per-day availability.
func (c PriceCalendar) AvailabilityMap() map[int]bool {
	out := make(map[int]bool, len(c.Days))
	for d, rec := range c.Days {
		out[d] = rec.Available
	}
	return out
}

// Summarize aggregates prices over the available days. A month with no
// available day reports basePrice for min, max and avg.
func Summarize(days map[int]DayRecord, basePrice float64) Summary {
	var (
		s      Summary
		prices []float64
	)
	for _, rec := range days {
		if !rec.Available {
			s.UnavailableDays++
		} else {
			prices = append(prices, rec.AdjustedPrice)
		}
		switch rec.PriceSource {
		case pricing.SourceBase, "":
		default:
			s.ModifiedDays++
		}
		switch rec.PriceSource {
		case pricing.SourceOverride:
			s.HasCustomPrices = true
		case pricing.SourceSeason:
			s.HasSeasonalRates = true
		}
	}
	if len(prices) == 0 {
		fallback := pricing.Round2(basePrice)
		s.MinPrice, s.MaxPrice, s.AvgPrice = fallback, fallback, fallback
		return s
	}
	s.MinPrice, s.MaxPrice = prices[0], prices[0]
	for _, p := range prices[1:] {
		if p < s.MinPrice {
			s.MinPrice = p
		}
		if p > s.MaxPrice {
			s.MaxPrice = p
		}
	}
	s.AvgPrice = pricing.Average(prices, basePrice)
	return s
}
