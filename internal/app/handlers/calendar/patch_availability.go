package calendar

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"rentalspot/internal/app/commands"
	"rentalspot/internal/app/middleware"
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

const patchAvailabilityKey = "calendar.patch_availability"

// PatchAvailabilityCommand flips the days in [Start, End) to Available.
// BookingID names the booking behind the change; without one the range is
// tracked as an anonymous hold.
type PatchAvailabilityCommand struct {
	PropertyID      string `validate:"required"`
	BookingID       string
	Start           time.Time `validate:"required"`
	End             time.Time `validate:"required"`
	Available       bool
	IdempotencyKeyV string
}

func (c PatchAvailabilityCommand) Key() string { return patchAvailabilityKey }

func (c PatchAvailabilityCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c PatchAvailabilityCommand) ResultPrototype() any { return &PatchAvailabilityResult{} }

type PatchAvailabilityResult struct {
	PropertyID string   `json:"propertyId"`
	Months     []string `json:"months"`
	Days       int      `json:"days"`
	// KeptUnavailable lists released days that another booking or a closed
	// override still holds.
	KeptUnavailable []string `json:"keptUnavailable"`
	Skipped         bool     `json:"skipped"`
}

// Patcher applies narrow availability changes without recomputing prices.
// The availability shard and the price calendar's available flags are
// written in one commit.
type Patcher struct {
	Rules     pricing.RuleRepository
	Bookings  booking.Repository
	Persister *persister.Persister
	Outbox    outbox.Outbox
	Encoder   outbox.EventEncoder
	Clock     clock.Clock
	Logger    *slog.Logger
}

func (h *Patcher) Handle(ctx context.Context, cmd PatchAvailabilityCommand) (*PatchAvailabilityResult, error) {
	propertyID := property.ID(cmd.PropertyID)
	start, end := daterange.Day(cmd.Start), daterange.Day(cmd.End)
	result := &PatchAvailabilityResult{PropertyID: cmd.PropertyID, Months: []string{}, KeptUnavailable: []string{}}
	if !end.After(start) {
		h.logger().InfoContext(ctx, "availability patch skipped: empty range",
			slog.String("property_id", cmd.PropertyID),
			slog.String("start", daterange.Key(start)),
			slog.String("end", daterange.Key(end)))
		result.Skipped = true
		return result, nil
	}
	rng, err := daterange.New(start, end)
	if err != nil {
		return nil, errors.Mark(err, domaincalendar.ErrValidation)
	}

	bookingID := booking.BookingID(cmd.BookingID)
	if bookingID == "" {
		bookingID = holdID(propertyID, rng)
	}
	snapshot, err := h.nextSnapshot(ctx, propertyID, bookingID, rng, cmd.Available, cmd.BookingID == "")
	if err != nil {
		return nil, err
	}

	var keep booking.DateSet
	if cmd.Available {
		keep, err = h.stillClosed(ctx, propertyID, rng, bookingID)
		if err != nil {
			return nil, err
		}
	}

	byMonth := make(map[domaincalendar.YearMonth]map[int]bool)
	for _, day := range rng.Days() {
		value := cmd.Available
		if keep != nil && keep.Has(day) {
			value = false
			result.KeptUnavailable = append(result.KeptUnavailable, daterange.Key(day))
		}
		month := domaincalendar.MonthOf(day)
		if byMonth[month] == nil {
			byMonth[month] = make(map[int]bool)
		}
		byMonth[month][day.Day()] = value
		result.Days++
	}

	months := make([]domaincalendar.YearMonth, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	changes := make([]persister.AvailabilityChange, 0, len(months))
	for _, m := range months {
		changes = append(changes, persister.AvailabilityChange{PropertyID: propertyID, Month: m, Days: byMonth[m]})
		result.Months = append(result.Months, m.String())
	}

	if _, err := h.Persister.Apply(ctx, persister.Plan{Availability: changes, MirrorToPrices: true}); err != nil {
		return nil, errors.Wrapf(err, "patch availability for %s", propertyID)
	}
	if snapshot != nil {
		if err := h.Bookings.Save(ctx, *snapshot); err != nil {
			return nil, errors.Wrapf(err, "save booking %s", snapshot.ID)
		}
	}

	evt := domaincalendar.AvailabilityPatched{
		PropertyID: propertyID,
		From:       rng.CheckIn,
		To:         rng.CheckOut,
		Available:  cmd.Available,
		Months:     result.Months,
		Kept:       result.KeptUnavailable,
		At:         h.clock().Now(),
	}
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, []events.DomainEvent{evt}); err != nil {
		return nil, err
	}
	return result, nil
}

// nextSnapshot returns the booking snapshot that makes a later regeneration
// derive the same availability as this patch, or nil when the stored one
// already does. It is saved only once the shards are committed.
func (h *Patcher) nextSnapshot(ctx context.Context, propertyID property.ID, id booking.BookingID, rng daterange.DateRange, available, anonymous bool) (*booking.Booking, error) {
	existing, err := h.Bookings.ByID(ctx, id)
	found := err == nil
	if err != nil && !errors.Is(err, booking.ErrBookingNotFound) {
		return nil, errors.Wrapf(err, "load booking %s", id)
	}

	var next booking.Booking
	switch {
	case !available && found && existing.Blocks() && sameRange(existing.Range, rng):
		return nil, nil
	case !available:
		status := booking.StatusConfirmed
		if anonymous {
			status = booking.StatusOnHold
		}
		next = booking.Booking{ID: id, PropertyID: propertyID, Range: rng, Status: status}
	case found && existing.Blocks():
		next = existing
		next.Status = booking.StatusCancelled
	default:
		return nil, nil
	}
	next.UpdatedAt = h.clock().Now()
	return &next, nil
}

// stillClosed returns the days of rng that must stay unavailable after the
// booking identified by released gives them back.
func (h *Patcher) stillClosed(ctx context.Context, propertyID property.ID, rng daterange.DateRange, released booking.BookingID) (booking.DateSet, error) {
	others, err := h.Bookings.Blocking(ctx, propertyID)
	if err != nil {
		return nil, errors.Wrapf(err, "load bookings for %s", propertyID)
	}
	closed := booking.BlockedDates(others, released)
	overrides, err := h.Rules.Overrides(ctx, propertyID, rng.CheckIn, rng.CheckOut)
	if err != nil {
		return nil, errors.Wrapf(err, "load overrides for %s", propertyID)
	}
	for _, o := range overrides {
		if o.Blocks() {
			closed.Add(o.Date)
		}
	}
	return closed, nil
}

func sameRange(a, b daterange.DateRange) bool {
	return a.CheckIn.Equal(b.CheckIn) && a.CheckOut.Equal(b.CheckOut)
}

func holdID(propertyID property.ID, rng daterange.DateRange) booking.BookingID {
	return booking.BookingID("hold_" + string(propertyID) + "_" + daterange.Key(rng.CheckIn) + "_" + daterange.Key(rng.CheckOut))
}

func (h *Patcher) clock() clock.Clock { return clock.OrReal(h.Clock) }

func (h *Patcher) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var (
	_ commands.Handler[PatchAvailabilityCommand, *PatchAvailabilityResult] = (*Patcher)(nil)
	_ middleware.IdempotentCommand                                         = PatchAvailabilityCommand{}
)
