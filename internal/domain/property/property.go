package property

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrPropertyNotFound   = errors.New("property: not found")
	ErrIDRequired         = errors.New("property: id is required")
	ErrNightlyPrice       = errors.New("property: nightly price must be non-negative")
	ErrBaseOccupancy      = errors.New("property: base occupancy must be at least 1")
	ErrMaxGuests          = errors.New("property: max guests must be >= base occupancy")
	ErrExtraGuestFee      = errors.New("property: extra guest fee must be non-negative")
	ErrWeekendMultiplier  = errors.New("property: weekend multiplier must be positive")
	ErrUnknownWeekdayName = errors.New("property: unknown weekday name")
)

type ID string

// WeekendPricing raises the nightly price on the configured weekday names.
type WeekendPricing struct {
	Enabled    bool
	Days       []string
	Multiplier float64
}

// Property is the pricing slice of a property record. The catalog owns it;
// calendar code only reads it.
type Property struct {
	ID            ID
	PricePerNight float64
	BaseOccupancy int
	MaxGuests     int
	ExtraGuestFee float64
	Weekend       *WeekendPricing
	UpdatedAt     time.Time
}

type Catalog interface {
	ByID(ctx context.Context, id ID) (Property, error)
	Save(ctx context.Context, p Property) error
}

func (p Property) Validate() error {
	if strings.TrimSpace(string(p.ID)) == "" {
		return ErrIDRequired
	}
	if p.PricePerNight < 0 {
		return ErrNightlyPrice
	}
	if p.BaseOccupancy < 1 {
		return ErrBaseOccupancy
	}
	if p.MaxGuests < p.BaseOccupancy {
		return ErrMaxGuests
	}
	if p.ExtraGuestFee < 0 {
		return ErrExtraGuestFee
	}
	if p.Weekend != nil {
		if p.Weekend.Enabled && p.Weekend.Multiplier <= 0 {
			return ErrWeekendMultiplier
		}
		for _, name := range p.Weekend.Days {
			if _, ok := ParseWeekday(name); !ok {
				return errors.Wrapf(ErrUnknownWeekdayName, "%q", name)
			}
		}
	}
	return nil
}

// WeekendPricingApplies reports whether the weekend multiplier should price day.
func (p Property) WeekendPricingApplies(day time.Time) bool {
	if p.Weekend == nil || !p.Weekend.Enabled {
		return false
	}
	return p.Weekend.includes(day.Weekday())
}

// IsWeekend reports whether day is a weekend day for display purposes. The
// configured weekend set is used when present, Saturday and Sunday otherwise.
func (p Property) IsWeekend(day time.Time) bool {
	wd := day.Weekday()
	if p.Weekend != nil && len(p.Weekend.Days) > 0 {
		return p.Weekend.includes(wd)
	}
	return wd == time.Saturday || wd == time.Sunday
}

func (w *WeekendPricing) includes(wd time.Weekday) bool {
	for _, name := range w.Days {
		if parsed, ok := ParseWeekday(name); ok && parsed == wd {
			return true
		}
	}
	return false
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts full or three-letter English weekday names, in any case.
func ParseWeekday(name string) (time.Weekday, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if wd, ok := weekdayNames[key]; ok {
		return wd, true
	}
	if len(key) == 3 {
		for full, wd := range weekdayNames {
			if strings.HasPrefix(full, key) {
				return wd, true
			}
		}
	}
	return time.Sunday, false
}
