package mongo

import (
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"rentalspot/internal/domain/calendar"
	"rentalspot/internal/domain/pricing"
	"rentalspot/internal/domain/property"
)

// Shard documents keep day and guest-count keys as strings; BSON documents
// only have string keys.

type availabilityDocument struct {
	ID         string          `bson:"_id"`
	PropertyID string          `bson:"propertyId"`
	Month      string          `bson:"month"`
	Available  map[string]bool `bson:"available"`
	UpdatedAt  time.Time       `bson:"updatedAt"`
	Revision   int64           `bson:"revision"`
}

func newAvailabilityDocument(s calendar.AvailabilityShard, revision int64) availabilityDocument {
	days := make(map[string]bool, len(s.Available))
	for d, v := range s.Available {
		days[strconv.Itoa(d)] = v
	}
	return availabilityDocument{
		ID:         string(s.ID),
		PropertyID: string(s.PropertyID),
		Month:      s.Month.String(),
		Available:  days,
		UpdatedAt:  s.UpdatedAt.UTC(),
		Revision:   revision,
	}
}

func (d availabilityDocument) toShard() (calendar.AvailabilityShard, error) {
	ym, err := calendar.ParseYearMonth(d.Month)
	if err != nil {
		return calendar.AvailabilityShard{}, errors.Wrapf(err, "availability %s", d.ID)
	}
	days := make(map[int]bool, len(d.Available))
	for k, v := range d.Available {
		n, err := strconv.Atoi(k)
		if err != nil {
			return calendar.AvailabilityShard{}, errors.Wrapf(err, "availability %s day key %q", d.ID, k)
		}
		days[n] = v
	}
	return calendar.AvailabilityShard{
		ID:         calendar.ShardID(d.ID),
		PropertyID: property.ID(d.PropertyID),
		Month:      ym,
		Available:  days,
		UpdatedAt:  d.UpdatedAt.UTC(),
		Revision:   d.Revision,
	}, nil
}

type dayDocument struct {
	BasePrice     float64            `bson:"basePrice"`
	AdjustedPrice float64            `bson:"adjustedPrice"`
	Prices        map[string]float64 `bson:"prices"`
	Available     bool               `bson:"available"`
	MinimumStay   int                `bson:"minimumStay"`
	IsWeekend     bool               `bson:"isWeekend"`
	SeasonID      *string            `bson:"seasonId"`
	SeasonName    *string            `bson:"seasonName"`
	OverrideID    *string            `bson:"overrideId"`
	Reason        *string            `bson:"reason"`
	PriceSource   string             `bson:"priceSource"`
}

type summaryDocument struct {
	MinPrice         float64 `bson:"minPrice"`
	MaxPrice         float64 `bson:"maxPrice"`
	AvgPrice         float64 `bson:"avgPrice"`
	UnavailableDays  int     `bson:"unavailableDays"`
	ModifiedDays     int     `bson:"modifiedDays"`
	HasCustomPrices  bool    `bson:"hasCustomPrices"`
	HasSeasonalRates bool    `bson:"hasSeasonalRates"`
}

type priceCalendarDocument struct {
	ID          string                 `bson:"_id"`
	PropertyID  string                 `bson:"propertyId"`
	Year        int                    `bson:"year"`
	Month       int                    `bson:"month"`
	MonthStr    string                 `bson:"monthStr"`
	Days        map[string]dayDocument `bson:"days"`
	Summary     summaryDocument        `bson:"summary"`
	GeneratedAt time.Time              `bson:"generatedAt"`
	Revision    int64                  `bson:"revision"`
}

func newPriceCalendarDocument(c calendar.PriceCalendar, revision int64) priceCalendarDocument {
	days := make(map[string]dayDocument, len(c.Days))
	for d, rec := range c.Days {
		days[strconv.Itoa(d)] = newDayDocument(rec)
	}
	return priceCalendarDocument{
		ID:          string(c.ID),
		PropertyID:  string(c.PropertyID),
		Year:        c.Month.Year,
		Month:       int(c.Month.Month),
		MonthStr:    c.MonthLabel(),
		Days:        days,
		Summary:     newSummaryDocument(c.Summary),
		GeneratedAt: c.GeneratedAt.UTC(),
		Revision:    revision,
	}
}

func newDayDocument(rec calendar.DayRecord) dayDocument {
	return dayDocument{
		BasePrice:     rec.BasePrice,
		AdjustedPrice: rec.AdjustedPrice,
		Prices:        guestKeys(rec.Prices),
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

func newSummaryDocument(s calendar.Summary) summaryDocument {
	return summaryDocument(s)
}

func (d priceCalendarDocument) toCalendar() (calendar.PriceCalendar, error) {
	days := make(map[int]calendar.DayRecord, len(d.Days))
	for k, doc := range d.Days {
		n, err := strconv.Atoi(k)
		if err != nil {
			return calendar.PriceCalendar{}, errors.Wrapf(err, "price calendar %s day key %q", d.ID, k)
		}
		prices := make(map[int]float64, len(doc.Prices))
		for g, p := range doc.Prices {
			guests, err := strconv.Atoi(g)
			if err != nil {
				return calendar.PriceCalendar{}, errors.Wrapf(err, "price calendar %s guest key %q", d.ID, g)
			}
			prices[guests] = p
		}
		days[n] = calendar.DayRecord{
			BasePrice:     doc.BasePrice,
			AdjustedPrice: doc.AdjustedPrice,
			Prices:        prices,
			Available:     doc.Available,
			MinimumStay:   doc.MinimumStay,
			IsWeekend:     doc.IsWeekend,
			SeasonID:      deref(doc.SeasonID),
			SeasonName:    deref(doc.SeasonName),
			OverrideID:    deref(doc.OverrideID),
			Reason:        deref(doc.Reason),
			PriceSource:   pricing.Source(doc.PriceSource),
		}
	}
	return calendar.PriceCalendar{
		ID:          calendar.ShardID(d.ID),
		PropertyID:  property.ID(d.PropertyID),
		Month:       calendar.YearMonth{Year: d.Year, Month: time.Month(d.Month)},
		Days:        days,
		Summary:     calendar.Summary(d.Summary),
		GeneratedAt: d.GeneratedAt.UTC(),
		Revision:    d.Revision,
	}, nil
}

func guestKeys(prices map[int]float64) map[string]float64 {
	out := make(map[string]float64, len(prices))
	for g, p := range prices {
		out[strconv.Itoa(g)] = p
	}
	return out
}

func nullable(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
