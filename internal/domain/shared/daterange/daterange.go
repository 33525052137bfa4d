package daterange

import (
	"time"

	"github.com/cockroachdb/errors"
)

// KeyLayout is the calendar-day layout used for map keys and persisted dates.
const KeyLayout = "2006-01-02"

var (
	ErrInvalidRange = errors.New("daterange: checkout must be after checkin")
	ErrInvalidDay   = errors.New("daterange: invalid calendar day")
)

// DateRange represents a half-open interval of calendar days [checkIn, checkOut).
// Both bounds are UTC midnights.
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

func New(checkIn, checkOut time.Time) (DateRange, error) {
	dr := DateRange{CheckIn: Day(checkIn), CheckOut: Day(checkOut)}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

// Day truncates t to the calendar day it names in its own location and
// re-anchors it at UTC midnight, so that comparisons are by calendar day.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Key formats the calendar day of t as YYYY-MM-DD.
func Key(t time.Time) string {
	return Day(t).Format(KeyLayout)
}

// ParseDay parses a YYYY-MM-DD string into a UTC midnight.
func ParseDay(raw string) (time.Time, error) {
	t, err := time.Parse(KeyLayout, raw)
	if err != nil {
		return time.Time{}, errors.Mark(errors.Wrapf(err, "daterange: parse %q", raw), ErrInvalidDay)
	}
	return t, nil
}

func (dr DateRange) Validate() error {
	if dr.CheckOut.IsZero() || dr.CheckIn.IsZero() {
		return ErrInvalidRange
	}
	if !dr.CheckOut.After(dr.CheckIn) {
		return ErrInvalidRange
	}
	return nil
}

func (dr DateRange) Nights() int {
	return int(dr.CheckOut.Sub(dr.CheckIn).Hours() / 24)
}

func (dr DateRange) Overlaps(other DateRange) bool {
	return dr.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(dr.CheckOut)
}

func (dr DateRange) ContainsDate(t time.Time) bool {
	t = Day(t)
	return (t.Equal(dr.CheckIn) || t.After(dr.CheckIn)) && t.Before(dr.CheckOut)
}

// Days enumerates every occupied day; the checkout day is not included.
func (dr DateRange) Days() []time.Time {
	if !dr.CheckOut.After(dr.CheckIn) {
		return nil
	}
	out := make([]time.Time, 0, dr.Nights())
	for d := dr.CheckIn; d.Before(dr.CheckOut); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
