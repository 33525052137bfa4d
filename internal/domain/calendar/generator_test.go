package calendar_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentalspot/internal/domain/booking"
	"rentalspot/internal/domain/calendar"
	"rentalspot/internal/domain/pricing"
	"rentalspot/internal/domain/property"
	"rentalspot/internal/domain/shared/daterange"
)

var july = calendar.YearMonth{Year: 2025, Month: time.July}

func villa() property.Property {
	return property.Property{
		ID:            "villa-1",
		PricePerNight: 100,
		BaseOccupancy: 2,
		MaxGuests:     4,
		ExtraGuestFee: 20,
		Weekend: &property.WeekendPricing{
			Enabled:    true,
			Days:       []string{"fri", "sat"},
			Multiplier: 1.2,
		},
	}
}

func resolver(t *testing.T, seasons []pricing.SeasonalRule, overrides []pricing.DateOverride) pricing.Resolver {
	t.Helper()
	r, err := pricing.NewResolver(villa(), seasons, overrides)
	require.NoError(t, err)
	return r
}

func blockedBy(t *testing.T, in, out string) booking.DateSet {
	t.Helper()
	checkIn, err := daterange.ParseDay(in)
	require.NoError(t, err)
	checkOut, err := daterange.ParseDay(out)
	require.NoError(t, err)
	rng, err := daterange.New(checkIn, checkOut)
	require.NoError(t, err)
	return booking.BlockedDates([]booking.Booking{{ID: "b", Range: rng, Status: booking.StatusConfirmed}})
}

func TestGenerateMonth(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	overrideAvail := false
	cal := calendar.GenerateMonth(calendar.MonthInput{
		Resolver: resolver(t,
			[]pricing.SeasonalRule{{
				ID: "peak", Name: "Peak", Start: time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC),
				End: time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC), Multiplier: 1.5, MinimumStay: 3, Enabled: true,
			}},
			[]pricing.DateOverride{{
				ID: "closed", Date: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), CustomPrice: 80,
				Available: &overrideAvail, Reason: "maintenance",
			}},
		),
		Blocked: blockedBy(t, "2025-07-10", "2025-07-13"),
		Month:   july,
	}, now)

	assert.Equal(t, calendar.ShardID("villa-1_2025-07"), cal.ID)
	assert.Equal(t, "July 2025", cal.MonthLabel())
	assert.Equal(t, now, cal.GeneratedAt)
	require.Len(t, cal.Days, 31)

	sat := cal.Days[12]
	assert.Equal(t, 120.0, sat.AdjustedPrice)
	assert.Equal(t, pricing.SourceWeekend, sat.PriceSource)
	assert.Equal(t, map[int]float64{2: 120, 3: 140, 4: 160}, sat.Prices)
	assert.True(t, sat.IsWeekend)
	assert.False(t, sat.Available, "booked days are closed")

	assert.True(t, cal.Days[13].Available, "checkout day stays open")
	assert.False(t, cal.Days[13].IsWeekend, "sunday is not in the configured weekend")

	first := cal.Days[1]
	assert.Equal(t, pricing.SourceOverride, first.PriceSource)
	assert.False(t, first.Available)
	assert.Equal(t, "closed", first.OverrideID)
	assert.Equal(t, "maintenance", first.Reason)

	peak := cal.Days[22]
	assert.Equal(t, pricing.SourceSeason, peak.PriceSource)
	assert.Equal(t, 150.0, peak.AdjustedPrice)
	assert.Equal(t, 3, peak.MinimumStay)
	assert.Equal(t, "Peak", peak.SeasonName)

	assert.Equal(t, 4, cal.Summary.UnavailableDays)
	assert.True(t, cal.Summary.HasCustomPrices)
	assert.True(t, cal.Summary.HasSeasonalRates)
	assert.Equal(t, 100.0, cal.Summary.MinPrice)
	assert.Equal(t, 150.0, cal.Summary.MaxPrice)

	avail := calendar.AvailabilityFor(cal)
	assert.Equal(t, cal.ID, avail.ID)
	for d, rec := range cal.Days {
		assert.Equal(t, rec.Available, avail.Available[d], "day %d", d)
	}
}

func TestGenerateMonthIsIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	in := calendar.MonthInput{
		Resolver: resolver(t, []pricing.SeasonalRule{{
			ID: "s", Start: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC),
			Multiplier: 1.33, MinimumStay: 2, Enabled: true,
		}}, nil),
		Blocked: blockedBy(t, "2025-07-03", "2025-07-06"),
		Month:   july,
	}

	first := calendar.GenerateMonth(in, now)
	second := calendar.GenerateMonth(in, now)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("regeneration changed the document (-first +second):\n%s", diff)
	}
}

func TestSummaryFallsBackToBasePrice(t *testing.T) {
	closed := make(booking.DateSet)
	for d := 1; d <= july.Days(); d++ {
		closed.Add(july.Date(d))
	}
	cal := calendar.GenerateMonth(calendar.MonthInput{Resolver: resolver(t, nil, nil), Blocked: closed, Month: july}, time.Time{})

	assert.Equal(t, calendar.Summary{
		MinPrice:        100,
		MaxPrice:        100,
		AvgPrice:        100,
		UnavailableDays: 31,
		ModifiedDays:    cal.Summary.ModifiedDays,
	}, cal.Summary)
	assert.Positive(t, cal.Summary.ModifiedDays, "weekend days still count as modified")
}

func TestSummarize(t *testing.T) {
	s := calendar.Summarize(map[int]calendar.DayRecord{
		1: {AdjustedPrice: 100, Available: true, PriceSource: pricing.SourceBase},
		2: {AdjustedPrice: 120, Available: true, PriceSource: pricing.SourceWeekend},
		3: {AdjustedPrice: 200, Available: false, PriceSource: pricing.SourceSeason},
		4: {AdjustedPrice: 90, Available: true, PriceSource: pricing.SourceOverride},
	}, 100)

	assert.Equal(t, calendar.Summary{
		MinPrice:         90,
		MaxPrice:         120,
		AvgPrice:         103.33,
		UnavailableDays:  1,
		ModifiedDays:     3,
		HasCustomPrices:  true,
		HasSeasonalRates: true,
	}, s)
}

func TestPatchedRecomputesSummary(t *testing.T) {
	cal := calendar.GenerateMonth(calendar.MonthInput{Resolver: resolver(t, nil, nil), Month: july}, time.Time{})
	closed := false
	price := 300.0
	src := pricing.SourceOverride

	patched := cal.Patched(map[int]calendar.DayPatch{
		7:  {Available: &closed},
		8:  {AdjustedPrice: &price, PriceSource: &src},
		40: {Available: &closed},
	})

	assert.True(t, cal.Days[7].Available, "original is untouched")
	assert.False(t, patched.Days[7].Available)
	assert.Equal(t, 300.0, patched.Days[8].AdjustedPrice)
	assert.Equal(t, 1, patched.Summary.UnavailableDays)
	assert.Equal(t, 300.0, patched.Summary.MaxPrice)
	assert.True(t, patched.Summary.HasCustomPrices)
	assert.Len(t, patched.Days, 31)
}
