package pricing

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"rentalspot/internal/domain/property"
	"rentalspot/internal/domain/shared/daterange"
)

var (
	ErrSeasonNotFound      = errors.New("pricing: season not found")
	ErrOverrideNotFound    = errors.New("pricing: override not found")
	ErrDuplicateOverride   = errors.New("pricing: duplicate override for date")
	ErrInvalidSeason       = errors.New("pricing: invalid seasonal rule")
	ErrInvalidOverride     = errors.New("pricing: invalid date override")
	ErrNegativeCustomPrice = errors.New("pricing: custom price must be non-negative")
	ErrOverrideIDInUse     = errors.New("pricing: override id belongs to another property")
)

type SeasonType string

const (
	SeasonHigh    SeasonType = "high"
	SeasonLow     SeasonType = "low"
	SeasonPeak    SeasonType = "peak"
	SeasonHoliday SeasonType = "holiday"
	SeasonCustom  SeasonType = "custom"
)

// SeasonalRule scales the base price over an inclusive range of calendar days.
type SeasonalRule struct {
	ID          string
	PropertyID  property.ID
	Name        string
	Season      SeasonType
	Start       time.Time
	End         time.Time
	Multiplier  float64
	MinimumStay int
	Enabled     bool
	UpdatedAt   time.Time
}

func (s SeasonalRule) Validate() error {
	switch {
	case strings.TrimSpace(s.ID) == "":
		return errors.Wrap(ErrInvalidSeason, "id is required")
	case strings.TrimSpace(string(s.PropertyID)) == "":
		return errors.Wrap(ErrInvalidSeason, "property id is required")
	case s.Start.IsZero() || s.End.IsZero():
		return errors.Wrap(ErrInvalidSeason, "start and end dates are required")
	case daterange.Day(s.End).Before(daterange.Day(s.Start)):
		return errors.Wrap(ErrInvalidSeason, "end date precedes start date")
	case s.Multiplier <= 0:
		return errors.Wrap(ErrInvalidSeason, "multiplier must be positive")
	case s.MinimumStay < 1:
		return errors.Wrap(ErrInvalidSeason, "minimum stay must be at least 1 night")
	}
	return nil
}

// Covers reports whether day falls inside [Start, End], both ends inclusive.
func (s SeasonalRule) Covers(day time.Time) bool {
	day = daterange.Day(day)
	return !day.Before(daterange.Day(s.Start)) && !day.After(daterange.Day(s.End))
}

func (s SeasonalRule) spanDays() int {
	return int(daterange.Day(s.End).Sub(daterange.Day(s.Start)).Hours()/24) + 1
}

// DateOverride pins the price and availability of one calendar day.
type DateOverride struct {
	ID          string
	PropertyID  property.ID
	Date        time.Time
	CustomPrice float64
	Reason      string
	MinimumStay *int
	Available   *bool
	FlatRate    bool
	UpdatedAt   time.Time
}

func (o DateOverride) Validate() error {
	switch {
	case strings.TrimSpace(string(o.PropertyID)) == "":
		return errors.Wrap(ErrInvalidOverride, "property id is required")
	case o.Date.IsZero():
		return errors.Wrap(ErrInvalidOverride, "date is required")
	case o.CustomPrice < 0:
		return errors.Mark(ErrNegativeCustomPrice, ErrInvalidOverride)
	case o.MinimumStay != nil && *o.MinimumStay < 1:
		return errors.Wrap(ErrInvalidOverride, "minimum stay must be at least 1 night")
	}
	return nil
}

// Blocks reports whether the override explicitly closes its day.
func (o DateOverride) Blocks() bool {
	return o.Available != nil && !*o.Available
}

// OverrideIndex maps a YYYY-MM-DD key to the override for that day.
type OverrideIndex map[string]DateOverride

// IndexOverrides builds a per-day index and rejects two overrides for one day.
func IndexOverrides(overrides []DateOverride) (OverrideIndex, error) {
	idx := make(OverrideIndex, len(overrides))
	for _, o := range overrides {
		key := daterange.Key(o.Date)
		if existing, ok := idx[key]; ok {
			return nil, errors.Wrapf(ErrDuplicateOverride, "%s: %s and %s", key, existing.ID, o.ID)
		}
		idx[key] = o
	}
	return idx, nil
}

func (idx OverrideIndex) Lookup(day time.Time) (DateOverride, bool) {
	o, ok := idx[daterange.Key(day)]
	return o, ok
}

// EnabledSeasons drops disabled rules and orders the rest by selection
// priority: narrowest span first, then later start, then smallest id.
func EnabledSeasons(rules []SeasonalRule) []SeasonalRule {
	out := make([]SeasonalRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if sa, sb := a.spanDays(), b.spanDays(); sa != sb {
			return sa < sb
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.After(b.Start)
		}
		return a.ID < b.ID
	})
	return out
}

// SelectSeason returns the first rule in priority order covering day. Rules
// must already be ordered by EnabledSeasons.
func SelectSeason(ordered []SeasonalRule, day time.Time) (SeasonalRule, bool) {
	for _, r := range ordered {
		if r.Covers(day) {
			return r, true
		}
	}
	return SeasonalRule{}, false
}

type RuleRepository interface {
	Seasons(ctx context.Context, propertyID property.ID) ([]SeasonalRule, error)
	// Overrides returns the overrides with from <= date < to.
	Overrides(ctx context.Context, propertyID property.ID, from, to time.Time) ([]DateOverride, error)
	OverrideOn(ctx context.Context, propertyID property.ID, day time.Time) (DateOverride, error)
	// OverrideByID looks an override up by id across all properties.
	OverrideByID(ctx context.Context, id string) (DateOverride, error)
	SaveSeason(ctx context.Context, rule SeasonalRule) error
	DeleteSeason(ctx context.Context, propertyID property.ID, seasonID string) error
	// SaveOverride replaces any override already stored for the same day or
	// under the same id.
	SaveOverride(ctx context.Context, override DateOverride) error
	DeleteOverride(ctx context.Context, propertyID property.ID, day time.Time) error
}
