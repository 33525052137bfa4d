package dto

import (
	"strconv"
	"time"

	"rentalspot/internal/domain/calendar"
)

// AvailabilityMonth is the wire shape of an availability shard. Day keys are
// day-of-month numbers rendered as strings.
type AvailabilityMonth struct {
	ID         string          `json:"id"`
	PropertyID string          `json:"propertyId"`
	Month      string          `json:"month"`
	Available  map[string]bool `json:"available"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type PriceDay struct {
	BasePrice     float64            `json:"basePrice"`
	AdjustedPrice float64            `json:"adjustedPrice"`
	Prices        map[string]float64 `json:"prices"`
	Available     bool               `json:"available"`
	MinimumStay   int                `json:"minimumStay"`
	IsWeekend     bool               `json:"isWeekend"`
	SeasonID      *string            `json:"seasonId"`
	SeasonName    *string            `json:"seasonName"`
	OverrideID    *string            `json:"overrideId"`
	Reason        *string            `json:"reason"`
	PriceSource   string             `json:"priceSource"`
}

type PriceSummary struct {
	MinPrice         float64 `json:"minPrice"`
	MaxPrice         float64 `json:"maxPrice"`
	AvgPrice         float64 `json:"avgPrice"`
	UnavailableDays  int     `json:"unavailableDays"`
	ModifiedDays     int     `json:"modifiedDays"`
	HasCustomPrices  bool    `json:"hasCustomPrices"`
	HasSeasonalRates bool    `json:"hasSeasonalRates"`
}

type PriceCalendar struct {
	ID          string              `json:"id"`
	PropertyID  string              `json:"propertyId"`
	Year        int                 `json:"year"`
	Month       int                 `json:"month"`
	MonthStr    string              `json:"monthStr"`
	Days        map[string]PriceDay `json:"days"`
	Summary     PriceSummary        `json:"summary"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

func MapAvailability(s calendar.AvailabilityShard) AvailabilityMonth {
	days := make(map[string]bool, len(s.Available))
	for d, v := range s.Available {
		days[strconv.Itoa(d)] = v
	}
	return AvailabilityMonth{
		ID:         string(s.ID),
		PropertyID: string(s.PropertyID),
		Month:      s.Month.String(),
		Available:  days,
		UpdatedAt:  s.UpdatedAt,
	}
}

func MapPriceCalendar(c calendar.PriceCalendar) PriceCalendar {
	days := make(map[string]PriceDay, len(c.Days))
	for d, rec := range c.Days {
		days[strconv.Itoa(d)] = MapPriceDay(rec)
	}
	return PriceCalendar{
		ID:          string(c.ID),
		PropertyID:  string(c.PropertyID),
		Year:        c.Month.Year,
		Month:       int(c.Month.Month),
		MonthStr:    c.MonthLabel(),
		Days:        days,
		Summary:     MapSummary(c.Summary),
		GeneratedAt: c.GeneratedAt,
	}
}

func MapPriceDay(rec calendar.DayRecord) PriceDay {
	prices := make(map[string]float64, len(rec.Prices))
	for g, p := range rec.Prices {
		prices[strconv.Itoa(g)] = p
	}
	return PriceDay{
		BasePrice:     rec.BasePrice,
		AdjustedPrice: rec.AdjustedPrice,
		Prices:        prices,
		Available:     rec.Available,
		MinimumStay:   rec.MinimumStay,
		IsWeekend:     rec.IsWeekend,
		SeasonID:      nullable(rec.SeasonID),
		SeasonName:    nullable(rec.SeasonName),
		OverrideID:    nullable(rec.OverrideID),
		Reason:        nullable(rec.Reason),
		PriceSource:   string(rec.PriceSource),
	}
}

func MapSummary(s calendar.Summary) PriceSummary {
	return PriceSummary{
		MinPrice:         s.MinPrice,
		MaxPrice:         s.MaxPrice,
		AvgPrice:         s.AvgPrice,
		UnavailableDays:  s.UnavailableDays,
		ModifiedDays:     s.ModifiedDays,
		HasCustomPrices:  s.HasCustomPrices,
		HasSeasonalRates: s.HasSeasonalRates,
	}
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
