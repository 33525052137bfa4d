package calendar

import (
	"time"

	"rentalspot/internal/domain/booking"
	"rentalspot/internal/domain/pricing"
)

// MonthInput is everything needed to derive one month. Blocked holds the
// days occupied by blocking bookings.
type MonthInput struct {
	Resolver pricing.Resolver
	Blocked  booking.DateSet
	Month    YearMonth
}

// GenerateMonth derives the price calendar for one month. The result depends
// only on its inputs and now, so repeated runs produce identical documents.
// A day is available only when its pricing rules allow it and no blocking
// booking occupies it; the availability view is projected from the same days.
func GenerateMonth(in MonthInput, now time.Time) PriceCalendar {
	p := in.Resolver.Property
	occ := in.Resolver.Occupancy()
	base := pricing.Round2(p.PricePerNight)

	n := in.Month.Days()
	days := make(map[int]DayRecord, n)
	for d := 1; d <= n; d++ {
		date := in.Month.Date(d)
		res := in.Resolver.Resolve(date)
		available := res.Available
		if in.Blocked != nil && in.Blocked.Has(date) {
			available = false
		}
		days[d] = DayRecord{
			BasePrice:     base,
			AdjustedPrice: res.AdjustedPrice,
			Prices:        pricing.OccupancyPrices(res.AdjustedPrice, occ, res.FlatRate),
			Available:     available,
			MinimumStay:   res.MinimumStay,
			IsWeekend:     p.IsWeekend(date),
			SeasonID:      res.SeasonID,
			SeasonName:    res.SeasonName,
			OverrideID:    res.OverrideID,
			Reason:        res.Reason,
			PriceSource:   res.Source,
		}
	}

	return PriceCalendar{
		ID:          NewShardID(p.ID, in.Month),
		PropertyID:  p.ID,
		Month:       in.Month,
		Days:        days,
		Summary:     Summarize(days, base),
		GeneratedAt: now.UTC(),
	}
}

// AvailabilityFor projects a generated calendar onto its availability shard.
func AvailabilityFor(cal PriceCalendar) AvailabilityShard {
	return AvailabilityShard{
		ID:         cal.ID,
		PropertyID: cal.PropertyID,
		Month:      cal.Month,
		Available:  cal.AvailabilityMap(),
		UpdatedAt:  cal.GeneratedAt,
	}
}
