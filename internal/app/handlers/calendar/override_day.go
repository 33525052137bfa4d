package calendar

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"rentalspot/internal/app/outbox"
	"rentalspot/internal/app/persister"
	"rentalspot/internal/domain/booking"
	domaincalendar "rentalspot/internal/domain/calendar"
	"rentalspot/internal/domain/pricing"
	"rentalspot/internal/domain/property"
	"rentalspot/internal/domain/shared/daterange"
	"rentalspot/internal/domain/shared/events"
	"rentalspot/internal/pkg/clock"
)

type OverrideDayResult struct {
	PropertyID string `json:"propertyId"`
	Date       string `json:"date"`
	Available  bool   `json:"available"`
	// CalendarPatched is false when no price calendar existed for the month.
	CalendarPatched bool `json:"calendarPatched"`
}

// OverrideDayUpdater writes one override straight into its month shards:
// the availability flag and the price-calendar day land in one commit.
// The rest of the month is not recomputed.
type OverrideDayUpdater struct {
	Catalog   property.Catalog
	Bookings  booking.Repository
	Persister *persister.Persister
	Outbox    outbox.Outbox
	Encoder   outbox.EventEncoder
	Clock     clock.Clock
	Logger    *slog.Logger
}

func (u *OverrideDayUpdater) Apply(ctx context.Context, o pricing.DateOverride) (*OverrideDayResult, error) {
	prop, err := u.Catalog.ByID(ctx, o.PropertyID)
	if err != nil {
		return nil, errors.Wrap(err, "load property")
	}
	day := daterange.Day(o.Date)
	resolver, err := pricing.NewResolver(prop, nil, []pricing.DateOverride{o})
	if err != nil {
		return nil, err
	}
	res := resolver.Resolve(day)

	available := res.Available
	bookings, err := u.Bookings.Blocking(ctx, o.PropertyID)
	if err != nil {
		return nil, errors.Wrapf(err, "load bookings for %s", o.PropertyID)
	}
	if booking.BlockedDates(bookings).Has(day) {
		available = false
	}

	month := domaincalendar.MonthOf(day)
	id := domaincalendar.NewShardID(o.PropertyID, month)
	source := pricing.SourceOverride
	noSeason := ""
	patch := domaincalendar.DayPatch{
		AdjustedPrice: &res.AdjustedPrice,
		Prices:        pricing.OccupancyPrices(res.AdjustedPrice, resolver.Occupancy(), res.FlatRate),
		MinimumStay:   &res.MinimumStay,
		SeasonID:      &noSeason,
		SeasonName:    &noSeason,
		OverrideID:    &res.OverrideID,
		Reason:        &res.Reason,
		PriceSource:   &source,
	}

	out, err := u.Persister.Apply(ctx, persister.Plan{
		Availability: []persister.AvailabilityChange{{
			PropertyID: o.PropertyID,
			Month:      month,
			Days:       map[int]bool{day.Day(): available},
		}},
		MirrorToPrices: true,
		DayPatches:     map[domaincalendar.ShardID]map[int]domaincalendar.DayPatch{id: {day.Day(): patch}},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "apply override %s", daterange.Key(day))
	}

	evt := domaincalendar.OverrideDayUpdated{
		PropertyID: o.PropertyID,
		Date:       daterange.Key(day),
		OverrideID: o.ID,
		At:         clock.OrReal(u.Clock).Now(),
	}
	if err := outbox.RecordDomainEvents(ctx, u.Outbox, u.Encoder, []events.DomainEvent{evt}); err != nil {
		return nil, err
	}
	if len(out.MissingCalendars) > 0 && u.Logger != nil {
		u.Logger.InfoContext(ctx, "override applied without price calendar",
			slog.String("property_id", string(o.PropertyID)),
			slog.String("month", month.String()))
	}
	return &OverrideDayResult{
		PropertyID:      string(o.PropertyID),
		Date:            daterange.Key(day),
		Available:       available,
		CalendarPatched: out.CalendarsPatched > 0,
	}, nil
}
