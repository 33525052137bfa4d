package pricing

import (
	"time"

	"rentalspot/internal/domain/property"
)

// Source names the rule category that priced a day.
type Source string

const (
	SourceBase     Source = "base"
	SourceWeekend  Source = "weekend"
	SourceSeason   Source = "season"
	SourceOverride Source = "override"
)

type Resolution struct {
	AdjustedPrice float64
	MinimumStay   int
	Available     bool
	Source        Source
	SeasonID      string
	SeasonName    string
	OverrideID    string
	Reason        string
	FlatRate      bool
}

// Resolver prices single days for one property. Seasons must come from
// EnabledSeasons so that overlapping rules resolve deterministically.
type Resolver struct {
	Property  property.Property
	Seasons   []SeasonalRule
	Overrides OverrideIndex
}

// NewResolver indexes overrides and orders the enabled seasons.
func NewResolver(p property.Property, seasons []SeasonalRule, overrides []DateOverride) (Resolver, error) {
	idx, err := IndexOverrides(overrides)
	if err != nil {
		return Resolver{}, err
	}
	return Resolver{Property: p, Seasons: EnabledSeasons(seasons), Overrides: idx}, nil
}

// Resolve applies override, season, weekend and base pricing in that order;
// the first match wins.
func (r Resolver) Resolve(day time.Time) Resolution {
	if o, ok := r.Overrides.Lookup(day); ok {
		res := Resolution{
			AdjustedPrice: Round2(o.CustomPrice),
			MinimumStay:   1,
			Available:     true,
			Source:        SourceOverride,
			OverrideID:    o.ID,
			Reason:        o.Reason,
			FlatRate:      o.FlatRate,
		}
		if o.MinimumStay != nil {
			res.MinimumStay = *o.MinimumStay
		}
		if o.Available != nil {
			res.Available = *o.Available
		}
		return res
	}

	base := r.Property.PricePerNight
	if s, ok := SelectSeason(r.Seasons, day); ok {
		return Resolution{
			AdjustedPrice: Multiply(base, s.Multiplier),
			MinimumStay:   s.MinimumStay,
			Available:     true,
			Source:        SourceSeason,
			SeasonID:      s.ID,
			SeasonName:    s.Name,
		}
	}

	if r.Property.WeekendPricingApplies(day) {
		return Resolution{
			AdjustedPrice: Multiply(base, r.Property.Weekend.Multiplier),
			MinimumStay:   1,
			Available:     true,
			Source:        SourceWeekend,
		}
	}

	return Resolution{
		AdjustedPrice: Round2(base),
		MinimumStay:   1,
		Available:     true,
		Source:        SourceBase,
	}
}

func (r Resolver) Occupancy() Occupancy {
	return OccupancyOf(r.Property)
}

func OccupancyOf(p property.Property) Occupancy {
	return Occupancy{
		BaseOccupancy: p.BaseOccupancy,
		MaxGuests:     p.MaxGuests,
		ExtraGuestFee: p.ExtraGuestFee,
	}
}
