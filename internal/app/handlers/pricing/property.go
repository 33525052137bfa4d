package pricing

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"rentalspot/internal/app/commands"
	domaincalendar "rentalspot/internal/domain/calendar"
	"rentalspot/internal/domain/property"
	"rentalspot/internal/pkg/clock"
)

const upsertPropertyKey = "pricing.property.upsert"

type WeekendPayload struct {
	Enabled    bool
	Days       []string `validate:"dive,min=3"`
	Multiplier float64  `validate:"gte=0"`
}

// UpsertPropertyCommand replaces the pricing configuration of a property.
type UpsertPropertyCommand struct {
	PropertyID    string  `validate:"required"`
	PricePerNight float64 `validate:"gte=0"`
	BaseOccupancy int     `validate:"gte=1"`
	MaxGuests     int     `validate:"gte=1"`
	ExtraGuestFee float64 `validate:"gte=0"`
	Weekend       *WeekendPayload
}

func (c UpsertPropertyCommand) Key() string { return upsertPropertyKey }

type UpsertPropertyHandler struct {
	Catalog property.Catalog
	Refresh Refresh
	Clock   clock.Clock
	Logger  *slog.Logger
}

func (h *UpsertPropertyHandler) Handle(ctx context.Context, cmd UpsertPropertyCommand) (*ChangeResult, error) {
	p := property.Property{
		ID:            property.ID(cmd.PropertyID),
		PricePerNight: cmd.PricePerNight,
		BaseOccupancy: cmd.BaseOccupancy,
		MaxGuests:     cmd.MaxGuests,
		ExtraGuestFee: cmd.ExtraGuestFee,
		UpdatedAt:     clock.OrReal(h.Clock).Now(),
	}
	if cmd.Weekend != nil {
		p.Weekend = &property.WeekendPricing{
			Enabled:    cmd.Weekend.Enabled,
			Days:       append([]string(nil), cmd.Weekend.Days...),
			Multiplier: cmd.Weekend.Multiplier,
		}
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Mark(err, domaincalendar.ErrValidation)
	}
	if err := h.Catalog.Save(ctx, p); err != nil {
		return nil, errors.Wrapf(err, "save property %s", p.ID)
	}
	if h.Logger != nil {
		h.Logger.Info("property pricing saved", "property_id", p.ID, "price_per_night", p.PricePerNight)
	}
	regenerated, err := h.Refresh.run(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &ChangeResult{PropertyID: cmd.PropertyID, ID: cmd.PropertyID, Regenerated: regenerated}, nil
}

var _ commands.Handler[UpsertPropertyCommand, *ChangeResult] = (*UpsertPropertyHandler)(nil)
