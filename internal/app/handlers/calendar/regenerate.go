package calendar

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"rentalspot/internal/app/commands"
	"rentalspot/internal/app/outbox"
	"rentalspot/internal/app/persister"
	"rentalspot/internal/domain/booking"
	domaincalendar "rentalspot/internal/domain/calendar"
	"rentalspot/internal/domain/pricing"
	"rentalspot/internal/domain/property"
	"rentalspot/internal/domain/shared/events"
	"rentalspot/internal/pkg/clock"
)

const (
	regenerateKey       = "calendar.regenerate"
	DefaultWindowMonths = 12
)

// RegenerateCommand rebuilds a property's calendar over a window of months.
// An empty From starts at the current month; Months 0 uses the configured
// window.
type RegenerateCommand struct {
	PropertyID string `validate:"required"`
	From       string `validate:"omitempty,datetime=2006-01"`
	Months     int    `validate:"gte=0,lte=60"`
}

func (c RegenerateCommand) Key() string { return regenerateKey }

type MonthFailure struct {
	Month string `json:"month"`
	Error string `json:"error"`
}

type RegenerateResult struct {
	PropertyID string         `json:"propertyId"`
	Generated  []string       `json:"generated"`
	Skipped    []MonthFailure `json:"skipped"`
}

// Sweeper regenerates month shards. Months are processed in ascending
// order and independently: a month that fails is logged, reported in
// Skipped and does not stop the months after it.
type Sweeper struct {
	Catalog      property.Catalog
	Rules        pricing.RuleRepository
	Bookings     booking.Repository
	Persister    *persister.Persister
	Outbox       outbox.Outbox
	Encoder      outbox.EventEncoder
	Clock        clock.Clock
	Logger       *slog.Logger
	WindowMonths int
}

func (s *Sweeper) Handle(ctx context.Context, cmd RegenerateCommand) (*RegenerateResult, error) {
	from := domaincalendar.MonthOf(s.clock().Now())
	if cmd.From != "" {
		parsed, err := domaincalendar.ParseYearMonth(cmd.From)
		if err != nil {
			return nil, err
		}
		from = parsed
	}
	months := cmd.Months
	if months <= 0 {
		months = s.windowMonths()
	}
	return s.Sweep(ctx, property.ID(cmd.PropertyID), from, months)
}

// Sweep regenerates months [from, from+n). Rules and bookings are loaded
// once; failing to load them, or finding two overrides for one day, aborts
// before anything is written.
func (s *Sweeper) Sweep(ctx context.Context, propertyID property.ID, from domaincalendar.YearMonth, n int) (*RegenerateResult, error) {
	window := domaincalendar.Window(from, n)
	result := &RegenerateResult{PropertyID: string(propertyID), Generated: []string{}, Skipped: []MonthFailure{}}
	if len(window) == 0 {
		return result, nil
	}

	seasons, err := s.Rules.Seasons(ctx, propertyID)
	if err != nil {
		return nil, errors.Wrapf(err, "load seasonal rules for %s", propertyID)
	}
	windowEnd := window[len(window)-1].AddMonths(1).First()
	overrides, err := s.Rules.Overrides(ctx, propertyID, from.First(), windowEnd)
	if err != nil {
		return nil, errors.Wrapf(err, "load overrides for %s", propertyID)
	}
	if _, err := pricing.IndexOverrides(overrides); err != nil {
		return nil, errors.Mark(err, domaincalendar.ErrValidation)
	}
	bookings, err := s.Bookings.Blocking(ctx, propertyID)
	if err != nil {
		return nil, errors.Wrapf(err, "load bookings for %s", propertyID)
	}
	blocked := booking.BlockedDates(bookings)

	for _, month := range window {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.regenerateMonth(ctx, propertyID, month, seasons, overridesIn(overrides, month), blocked); err != nil {
			s.logger().ErrorContext(ctx, "calendar month skipped",
				slog.String("property_id", string(propertyID)),
				slog.String("month", month.String()),
				slog.String("error", err.Error()))
			result.Skipped = append(result.Skipped, MonthFailure{Month: month.String(), Error: err.Error()})
			continue
		}
		result.Generated = append(result.Generated, month.String())
	}

	skipped := make([]string, 0, len(result.Skipped))
	for _, f := range result.Skipped {
		skipped = append(skipped, f.Month)
	}
	evt := domaincalendar.CalendarRegenerated{
		PropertyID: propertyID,
		Generated:  result.Generated,
		Skipped:    skipped,
		At:         s.clock().Now(),
	}
	if err := outbox.RecordDomainEvents(ctx, s.Outbox, s.Encoder, []events.DomainEvent{evt}); err != nil {
		return nil, err
	}
	s.logger().InfoContext(ctx, "calendar regenerated",
		slog.String("property_id", string(propertyID)),
		slog.Int("generated", len(result.Generated)),
		slog.Int("skipped", len(result.Skipped)))
	return result, nil
}

func (s *Sweeper) regenerateMonth(ctx context.Context, propertyID property.ID, month domaincalendar.YearMonth, seasons []pricing.SeasonalRule, overrides []pricing.DateOverride, blocked booking.DateSet) error {
	prop, err := s.Catalog.ByID(ctx, propertyID)
	if err != nil {
		return errors.Wrap(err, "load property")
	}
	resolver, err := pricing.NewResolver(prop, seasons, overrides)
	if err != nil {
		return err
	}
	cal := domaincalendar.GenerateMonth(domaincalendar.MonthInput{
		Resolver: resolver,
		Blocked:  blocked,
		Month:    month,
	}, s.clock().Now())

	_, err = s.Persister.Apply(ctx, persister.Plan{
		Availability: []persister.AvailabilityChange{{
			PropertyID: propertyID,
			Month:      month,
			Days:       cal.AvailabilityMap(),
		}},
		Calendars: []domaincalendar.PriceCalendar{cal},
	})
	return err
}

func overridesIn(all []pricing.DateOverride, month domaincalendar.YearMonth) []pricing.DateOverride {
	var out []pricing.DateOverride
	for _, o := range all {
		if domaincalendar.MonthOf(o.Date) == month {
			out = append(out, o)
		}
	}
	return out
}

func (s *Sweeper) clock() clock.Clock { return clock.OrReal(s.Clock) }

func (s *Sweeper) windowMonths() int {
	if s.WindowMonths > 0 {
		return s.WindowMonths
	}
	return DefaultWindowMonths
}

func (s *Sweeper) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

var _ commands.Handler[RegenerateCommand, *RegenerateResult] = (*Sweeper)(nil)
