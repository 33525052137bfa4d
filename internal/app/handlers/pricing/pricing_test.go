package pricing_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	calendarhandlers "rentalspot/internal/app/handlers/calendar"
	pricinghandlers "rentalspot/internal/app/handlers/pricing"
	"rentalspot/internal/app/persister"
	domaincalendar "rentalspot/internal/domain/calendar"
	domainpricing "rentalspot/internal/domain/pricing"
	"rentalspot/internal/domain/property"
	"rentalspot/internal/infra/storage/memory"
	"rentalspot/internal/pkg/clock"
)

var july = domaincalendar.YearMonth{Year: 2025, Month: time.July}

type env struct {
	store   *memory.ShardStore
	catalog *memory.PropertyCatalog
	rules   *memory.RuleRepository
	clock   *clock.MockClock
	refresh pricinghandlers.Refresh
	direct  *calendarhandlers.OverrideDayUpdater
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		store:   memory.NewShardStore(30),
		catalog: memory.NewPropertyCatalog(),
		rules:   memory.NewRuleRepository(),
		clock:   clock.NewMockClock(time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC)),
	}
	bookings := memory.NewBookingRepository()
	p := persister.New(e.store, e.clock)
	sweeper := &calendarhandlers.Sweeper{
		Catalog: e.catalog, Rules: e.rules, Bookings: bookings,
		Persister: p, Clock: e.clock,
	}
	e.refresh = pricinghandlers.Refresh{Sweeper: sweeper, Clock: e.clock, WindowMonths: 2}
	e.direct = &calendarhandlers.OverrideDayUpdater{
		Catalog: e.catalog, Bookings: bookings, Persister: p, Clock: e.clock,
	}
	return e
}

func (e *env) seedProperty(t *testing.T) {
	t.Helper()
	h := &pricinghandlers.UpsertPropertyHandler{Catalog: e.catalog, Refresh: e.refresh, Clock: e.clock}
	_, err := h.Handle(context.Background(), pricinghandlers.UpsertPropertyCommand{
		PropertyID: "loft", PricePerNight: 100, BaseOccupancy: 2, MaxGuests: 3, ExtraGuestFee: 25,
	})
	require.NoError(t, err)
}

func (e *env) day(t *testing.T, d int) domaincalendar.DayRecord {
	t.Helper()
	cal, ok := e.store.PriceCalendar(domaincalendar.NewShardID("loft", july))
	require.True(t, ok)
	return cal.Days[d]
}

func TestUpsertPropertyRegeneratesWindow(t *testing.T) {
	e := newEnv(t)
	h := &pricinghandlers.UpsertPropertyHandler{Catalog: e.catalog, Refresh: e.refresh, Clock: e.clock}

	res, err := h.Handle(context.Background(), pricinghandlers.UpsertPropertyCommand{
		PropertyID: "loft", PricePerNight: 150, BaseOccupancy: 2, MaxGuests: 3, ExtraGuestFee: 25,
		Weekend: &pricinghandlers.WeekendPayload{Enabled: true, Days: []string{"Saturday"}, Multiplier: 2},
	})

	require.NoError(t, err)
	require.NotNil(t, res.Regenerated)
	assert.Equal(t, []string{"2025-07", "2025-08"}, res.Regenerated.Generated)
	assert.Equal(t, 150.0, e.day(t, 15).AdjustedPrice)
	assert.Equal(t, 300.0, e.day(t, 12).AdjustedPrice)
	assert.Equal(t, map[int]float64{2: 300, 3: 325}, e.day(t, 12).Prices)
}

func TestUpsertPropertyRejectsInvalidConfig(t *testing.T) {
	e := newEnv(t)
	h := &pricinghandlers.UpsertPropertyHandler{Catalog: e.catalog, Refresh: e.refresh, Clock: e.clock}

	_, err := h.Handle(context.Background(), pricinghandlers.UpsertPropertyCommand{
		PropertyID: "loft", PricePerNight: 100, BaseOccupancy: 3, MaxGuests: 2,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domaincalendar.ErrValidation))
	assert.True(t, errors.Is(err, property.ErrMaxGuests))
	_, err = e.catalog.ByID(context.Background(), "loft")
	assert.True(t, errors.Is(err, property.ErrPropertyNotFound))
	assert.Empty(t, e.store.Commits())
}

func TestSeasonLifecycle(t *testing.T) {
	e := newEnv(t)
	e.seedProperty(t)
	ctx := context.Background()
	upsert := &pricinghandlers.UpsertSeasonHandler{Rules: e.rules, Refresh: e.refresh, Clock: e.clock}
	del := &pricinghandlers.DeleteSeasonHandler{Rules: e.rules, Refresh: e.refresh}

	res, err := upsert.Handle(ctx, pricinghandlers.UpsertSeasonCommand{
		PropertyID: "loft", SeasonID: "summer", Name: "Summer", Season: "high",
		Start: "2025-07-14", End: "2025-07-20", Multiplier: 1.5, MinimumStay: 3, Enabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "summer", res.ID)

	rec := e.day(t, 20)
	assert.Equal(t, 150.0, rec.AdjustedPrice)
	assert.Equal(t, domainpricing.SourceSeason, rec.PriceSource)
	assert.Equal(t, "summer", rec.SeasonID)
	assert.Equal(t, 3, rec.MinimumStay)
	assert.Equal(t, 100.0, e.day(t, 21).AdjustedPrice)

	_, err = del.Handle(ctx, pricinghandlers.DeleteSeasonCommand{PropertyID: "loft", SeasonID: "summer"})
	require.NoError(t, err)
	assert.Equal(t, 100.0, e.day(t, 20).AdjustedPrice)
	assert.Equal(t, domainpricing.SourceBase, e.day(t, 20).PriceSource)

	_, err = del.Handle(ctx, pricinghandlers.DeleteSeasonCommand{PropertyID: "loft", SeasonID: "summer"})
	assert.True(t, errors.Is(err, domainpricing.ErrSeasonNotFound))
}

func TestUpsertSeasonRejectsReversedDates(t *testing.T) {
	e := newEnv(t)
	upsert := &pricinghandlers.UpsertSeasonHandler{Rules: e.rules, Refresh: e.refresh, Clock: e.clock}

	_, err := upsert.Handle(context.Background(), pricinghandlers.UpsertSeasonCommand{
		PropertyID: "loft", Name: "Broken", Start: "2025-07-20", End: "2025-07-14", Multiplier: 1.2,
	})

	assert.True(t, errors.Is(err, domaincalendar.ErrValidation))
	assert.True(t, errors.Is(err, domainpricing.ErrInvalidSeason))
}

func TestUpsertOverride(t *testing.T) {
	closed := false
	cases := []struct {
		name      string
		sweep     bool
		wantSweep bool
	}{
		{name: "direct day update", sweep: false, wantSweep: false},
		{name: "full regeneration", sweep: true, wantSweep: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.seedProperty(t)
			h := &pricinghandlers.UpsertOverrideHandler{Rules: e.rules, Direct: e.direct, Refresh: e.refresh, Clock: e.clock}

			res, err := h.Handle(context.Background(), pricinghandlers.UpsertOverrideCommand{
				PropertyID: "loft", Date: "2025-07-08", OverrideID: "o1",
				CustomPrice: 80, Reason: "midweek deal", Available: &closed, Sweep: tc.sweep,
			})

			require.NoError(t, err)
			assert.Equal(t, tc.wantSweep, res.Regenerated != nil)
			assert.Equal(t, !tc.wantSweep, res.Override != nil)

			rec := e.day(t, 8)
			assert.Equal(t, 80.0, rec.AdjustedPrice)
			assert.Equal(t, "o1", rec.OverrideID)
			assert.False(t, rec.Available)
			shard, ok := e.store.Availability(domaincalendar.NewShardID("loft", july))
			require.True(t, ok)
			assert.False(t, shard.Available[8])

			stored, err := e.rules.OverrideOn(context.Background(), "loft", july.Date(8))
			require.NoError(t, err)
			assert.Equal(t, "midweek deal", stored.Reason)
		})
	}
}

func TestUpsertOverrideRejectsNegativePrice(t *testing.T) {
	e := newEnv(t)
	h := &pricinghandlers.UpsertOverrideHandler{Rules: e.rules, Direct: e.direct, Refresh: e.refresh, Clock: e.clock}

	_, err := h.Handle(context.Background(), pricinghandlers.UpsertOverrideCommand{
		PropertyID: "loft", Date: "2025-07-08", CustomPrice: -5,
	})

	assert.True(t, errors.Is(err, domaincalendar.ErrValidation))
	assert.True(t, errors.Is(err, domainpricing.ErrNegativeCustomPrice))
}

func TestDeleteOverrideRestoresResolvedPrice(t *testing.T) {
	e := newEnv(t)
	e.seedProperty(t)
	ctx := context.Background()
	upsert := &pricinghandlers.UpsertOverrideHandler{Rules: e.rules, Direct: e.direct, Refresh: e.refresh, Clock: e.clock}
	del := &pricinghandlers.DeleteOverrideHandler{Rules: e.rules, Refresh: e.refresh}

	_, err := upsert.Handle(ctx, pricinghandlers.UpsertOverrideCommand{PropertyID: "loft", Date: "2025-07-08", CustomPrice: 60})
	require.NoError(t, err)
	require.Equal(t, 60.0, e.day(t, 8).AdjustedPrice)

	res, err := del.Handle(ctx, pricinghandlers.DeleteOverrideCommand{PropertyID: "loft", Date: "2025-07-08"})
	require.NoError(t, err)
	require.NotNil(t, res.Regenerated)
	assert.Equal(t, 100.0, e.day(t, 8).AdjustedPrice)
	assert.Empty(t, e.day(t, 8).OverrideID)

	_, err = del.Handle(ctx, pricinghandlers.DeleteOverrideCommand{PropertyID: "loft", Date: "2025-07-08"})
	assert.True(t, errors.Is(err, domainpricing.ErrOverrideNotFound))
}

func TestUpsertOverrideMovingIDRegeneratesOldDay(t *testing.T) {
	e := newEnv(t)
	e.seedProperty(t)
	ctx := context.Background()
	h := &pricinghandlers.UpsertOverrideHandler{Rules: e.rules, Direct: e.direct, Refresh: e.refresh, Clock: e.clock}

	first, err := h.Handle(ctx, pricinghandlers.UpsertOverrideCommand{
		PropertyID: "loft", Date: "2025-07-08", OverrideID: "o1", CustomPrice: 80,
	})
	require.NoError(t, err)
	require.Nil(t, first.Regenerated)

	moved, err := h.Handle(ctx, pricinghandlers.UpsertOverrideCommand{
		PropertyID: "loft", Date: "2025-07-09", OverrideID: "o1", CustomPrice: 70,
	})
	require.NoError(t, err)
	assert.NotNil(t, moved.Regenerated)

	_, err = e.rules.OverrideOn(ctx, "loft", july.Date(8))
	assert.True(t, errors.Is(err, domainpricing.ErrOverrideNotFound))
	stored, err := e.rules.OverrideByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, july.Date(9), stored.Date)

	old := e.day(t, 8)
	assert.Equal(t, 100.0, old.AdjustedPrice)
	assert.Equal(t, domainpricing.SourceBase, old.PriceSource)
	assert.Empty(t, old.OverrideID)
	assert.Equal(t, 70.0, e.day(t, 9).AdjustedPrice)
	assert.Equal(t, "o1", e.day(t, 9).OverrideID)
}

func TestUpsertOverrideRejectsIDOfAnotherProperty(t *testing.T) {
	e := newEnv(t)
	e.seedProperty(t)
	ctx := context.Background()
	h := &pricinghandlers.UpsertOverrideHandler{Rules: e.rules, Direct: e.direct, Refresh: e.refresh, Clock: e.clock}
	_, err := h.Handle(ctx, pricinghandlers.UpsertOverrideCommand{
		PropertyID: "loft", Date: "2025-07-08", OverrideID: "o1", CustomPrice: 80,
	})
	require.NoError(t, err)

	_, err = h.Handle(ctx, pricinghandlers.UpsertOverrideCommand{
		PropertyID: "cabin", Date: "2025-07-08", OverrideID: "o1", CustomPrice: 60,
	})

	assert.True(t, errors.Is(err, domaincalendar.ErrValidation))
	assert.True(t, errors.Is(err, domainpricing.ErrOverrideIDInUse))
	stored, err := e.rules.OverrideByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, property.ID("loft"), stored.PropertyID)
}
