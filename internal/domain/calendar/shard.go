package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"rentalspot/internal/domain/property"
	"rentalspot/internal/domain/shared/daterange"
)

var (
	ErrValidation       = errors.New("calendar: validation failed")
	ErrShardNotFound    = errors.New("calendar: month shard not found")
	ErrConcurrentUpdate = errors.New("calendar: concurrent update")
	ErrTooManyIDs       = errors.New("calendar: too many ids in one lookup")
	ErrInvalidMonth     = errors.New("calendar: invalid month")
)

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

func MonthOf(t time.Time) YearMonth {
	d := daterange.Day(t)
	return YearMonth{Year: d.Year(), Month: d.Month()}
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(raw string) (YearMonth, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(raw))
	if err != nil {
		return YearMonth{}, errors.Mark(errors.Wrapf(ErrInvalidMonth, "%q", raw), ErrValidation)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// Label is the human form, e.g. "July 2025".
func (ym YearMonth) Label() string {
	return fmt.Sprintf("%s %d", ym.Month.String(), ym.Year)
}

func (ym YearMonth) First() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

func (ym YearMonth) Days() int {
	return ym.First().AddDate(0, 1, -1).Day()
}

func (ym YearMonth) Date(day int) time.Time {
	return time.Date(ym.Year, ym.Month, day, 0, 0, 0, 0, time.UTC)
}

func (ym YearMonth) AddMonths(n int) YearMonth {
	return MonthOf(ym.First().AddDate(0, n, 0))
}

func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

// Window returns n consecutive months starting at from.
func Window(from YearMonth, n int) []YearMonth {
	out := make([]YearMonth, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, from.AddMonths(i))
	}
	return out
}

// ShardID is the composite key "{propertyId}_{YYYY-MM}" shared by the
// availability and price-calendar documents of one month.
type ShardID string

func NewShardID(propertyID property.ID, ym YearMonth) ShardID {
	return ShardID(string(propertyID) + "_" + ym.String())
}

// Parse splits the id at its last underscore.
func (id ShardID) Parse() (property.ID, YearMonth, error) {
	raw := string(id)
	idx := strings.LastIndex(raw, "_")
	if idx <= 0 {
		return "", YearMonth{}, errors.Mark(errors.Newf("calendar: malformed shard id %q", raw), ErrValidation)
	}
	ym, err := ParseYearMonth(raw[idx+1:])
	if err != nil {
		return "", YearMonth{}, err
	}
	return property.ID(raw[:idx]), ym, nil
}

// AvailabilityShard is the per-month availability view.
type AvailabilityShard struct {
	ID         ShardID
	PropertyID property.ID
	Month      YearMonth
	Available  map[int]bool
	UpdatedAt  time.Time
	Revision   int64
}

// DefaultAvailability returns a full map for ym with every day open.
func DefaultAvailability(ym YearMonth) map[int]bool {
	days := ym.Days()
	out := make(map[int]bool, days)
	for d := 1; d <= days; d++ {
		out[d] = true
	}
	return out
}

// IsAvailable treats a missing day as open.
func (s AvailabilityShard) IsAvailable(day int) bool {
	v, ok := s.Available[day]
	return !ok || v
}
