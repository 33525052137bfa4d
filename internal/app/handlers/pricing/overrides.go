package pricing

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"rentalspot/internal/app/commands"
	domaincalendar "rentalspot/internal/domain/calendar"
	domainpricing "rentalspot/internal/domain/pricing"
	"rentalspot/internal/domain/property"
	"rentalspot/internal/domain/shared/daterange"
	"rentalspot/internal/pkg/clock"
)

const (
	upsertOverrideKey = "pricing.overrides.upsert"
	deleteOverrideKey = "pricing.overrides.delete"
)

// UpsertOverrideCommand stores the override for one day, replacing any
// override already set for it. With Sweep the whole window is regenerated;
// otherwise only that day's shards are updated in place.
type UpsertOverrideCommand struct {
	PropertyID  string  `validate:"required"`
	Date        string  `validate:"required,datetime=2006-01-02"`
	OverrideID  string  `validate:"omitempty,max=64"`
	CustomPrice float64 `validate:"gte=0"`
	Reason      string  `validate:"max=280"`
	MinimumStay *int    `validate:"omitempty,gte=1"`
	Available   *bool
	FlatRate    bool
	Sweep       bool
}

func (c UpsertOverrideCommand) Key() string { return upsertOverrideKey }

type UpsertOverrideHandler struct {
	Rules   domainpricing.RuleRepository
	Direct  OverrideWriter
	Refresh Refresh
	Clock   clock.Clock
	Logger  *slog.Logger
}

func (h *UpsertOverrideHandler) Handle(ctx context.Context, cmd UpsertOverrideCommand) (*ChangeResult, error) {
	date, err := daterange.ParseDay(cmd.Date)
	if err != nil {
		return nil, errors.Mark(err, domaincalendar.ErrValidation)
	}
	id := strings.TrimSpace(cmd.OverrideID)
	if id == "" {
		id = uuid.NewString()
	}
	propertyID := property.ID(cmd.PropertyID)
	o := domainpricing.DateOverride{
		ID:          id,
		PropertyID:  propertyID,
		Date:        date,
		CustomPrice: cmd.CustomPrice,
		Reason:      strings.TrimSpace(cmd.Reason),
		MinimumStay: cmd.MinimumStay,
		Available:   cmd.Available,
		FlatRate:    cmd.FlatRate,
		UpdatedAt:   clock.OrReal(h.Clock).Now(),
	}
	if err := o.Validate(); err != nil {
		return nil, errors.Mark(err, domaincalendar.ErrValidation)
	}
	moved, err := h.movesExisting(ctx, o)
	if err != nil {
		return nil, err
	}
	if err := h.Rules.SaveOverride(ctx, o); err != nil {
		return nil, errors.Wrapf(err, "save override %s", cmd.Date)
	}
	if h.Logger != nil {
		h.Logger.Info("date override saved", "property_id", propertyID, "date", cmd.Date, "sweep", cmd.Sweep)
	}

	result := &ChangeResult{PropertyID: cmd.PropertyID, ID: id}
	if cmd.Sweep || moved || h.Direct == nil {
		result.Regenerated, err = h.Refresh.run(ctx, propertyID)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	result.Override, err = h.Direct.Apply(ctx, o)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// movesExisting reports whether o reuses the id of an override stored on
// another day of the same property. Saving it vacates that day, which only
// a regeneration clears from the shards.
func (h *UpsertOverrideHandler) movesExisting(ctx context.Context, o domainpricing.DateOverride) (bool, error) {
	existing, err := h.Rules.OverrideByID(ctx, o.ID)
	if errors.Is(err, domainpricing.ErrOverrideNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "load override %s", o.ID)
	}
	if existing.PropertyID != o.PropertyID {
		return false, errors.Mark(errors.Wrapf(domainpricing.ErrOverrideIDInUse, "%s", o.ID), domaincalendar.ErrValidation)
	}
	return daterange.Key(existing.Date) != daterange.Key(o.Date), nil
}

type DeleteOverrideCommand struct {
	PropertyID string `validate:"required"`
	Date       string `validate:"required,datetime=2006-01-02"`
}

func (c DeleteOverrideCommand) Key() string { return deleteOverrideKey }

type DeleteOverrideHandler struct {
	Rules   domainpricing.RuleRepository
	Refresh Refresh
	Logger  *slog.Logger
}

func (h *DeleteOverrideHandler) Handle(ctx context.Context, cmd DeleteOverrideCommand) (*ChangeResult, error) {
	date, err := daterange.ParseDay(cmd.Date)
	if err != nil {
		return nil, errors.Mark(err, domaincalendar.ErrValidation)
	}
	propertyID := property.ID(cmd.PropertyID)
	if err := h.Rules.DeleteOverride(ctx, propertyID, date); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Info("date override deleted", "property_id", propertyID, "date", cmd.Date)
	}
	regenerated, err := h.Refresh.run(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return &ChangeResult{PropertyID: cmd.PropertyID, Regenerated: regenerated}, nil
}

var (
	_ commands.Handler[UpsertOverrideCommand, *ChangeResult] = (*UpsertOverrideHandler)(nil)
	_ commands.Handler[DeleteOverrideCommand, *ChangeResult] = (*DeleteOverrideHandler)(nil)
)
