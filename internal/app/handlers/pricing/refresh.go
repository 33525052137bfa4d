package pricing

import (
	"context"

	calendarhandlers "rentalspot/internal/app/handlers/calendar"
	domaincalendar "rentalspot/internal/domain/calendar"
	domainpricing "rentalspot/internal/domain/pricing"
	"rentalspot/internal/domain/property"
	"rentalspot/internal/pkg/clock"
)

// CalendarSweeper regenerates a window of month shards.
type CalendarSweeper interface {
	Sweep(ctx context.Context, propertyID property.ID, from domaincalendar.YearMonth, n int) (*calendarhandlers.RegenerateResult, error)
}

// OverrideWriter lands a single override directly in its month shards.
type OverrideWriter interface {
	Apply(ctx context.Context, o domainpricing.DateOverride) (*calendarhandlers.OverrideDayResult, error)
}

// ChangeResult reports what a pricing change touched.
type ChangeResult struct {
	PropertyID  string                              `json:"propertyId"`
	ID          string                              `json:"id,omitempty"`
	Regenerated *calendarhandlers.RegenerateResult  `json:"regenerated,omitempty"`
	Override    *calendarhandlers.OverrideDayResult `json:"override,omitempty"`
}

// Refresh regenerates the configured window starting at the current month.
type Refresh struct {
	Sweeper      CalendarSweeper
	Clock        clock.Clock
	WindowMonths int
}

func (r Refresh) run(ctx context.Context, propertyID property.ID) (*calendarhandlers.RegenerateResult, error) {
	if r.Sweeper == nil {
		return nil, nil
	}
	months := r.WindowMonths
	if months <= 0 {
		months = calendarhandlers.DefaultWindowMonths
	}
	from := domaincalendar.MonthOf(clock.OrReal(r.Clock).Now())
	return r.Sweeper.Sweep(ctx, propertyID, from, months)
}
