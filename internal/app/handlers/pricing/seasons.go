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
	upsertSeasonKey = "pricing.seasons.upsert"
	deleteSeasonKey = "pricing.seasons.delete"
)

// UpsertSeasonCommand creates a seasonal rule, or replaces the rule with
// SeasonID when one is given.
type UpsertSeasonCommand struct {
	PropertyID  string  `validate:"required"`
	SeasonID    string  `validate:"omitempty,max=64"`
	Name        string  `validate:"required,max=120"`
	Season      string  `validate:"omitempty,oneof=high low peak holiday custom"`
	Start       string  `validate:"required,datetime=2006-01-02"`
	End         string  `validate:"required,datetime=2006-01-02"`
	Multiplier  float64 `validate:"gt=0"`
	MinimumStay int     `validate:"gte=0"`
	Enabled     bool
}

func (c UpsertSeasonCommand) Key() string { return upsertSeasonKey }

type UpsertSeasonHandler struct {
	Rules   domainpricing.RuleRepository
	Refresh Refresh
	Clock   clock.Clock
	Logger  *slog.Logger
}

func (h *UpsertSeasonHandler) Handle(ctx context.Context, cmd UpsertSeasonCommand) (*ChangeResult, error) {
	start, err := daterange.ParseDay(cmd.Start)
	if err != nil {
		return nil, errors.Mark(err, domaincalendar.ErrValidation)
	}
	end, err := daterange.ParseDay(cmd.End)
	if err != nil {
		return nil, errors.Mark(err, domaincalendar.ErrValidation)
	}
	id := strings.TrimSpace(cmd.SeasonID)
	if id == "" {
		id = uuid.NewString()
	}
	season := domainpricing.SeasonType(cmd.Season)
	if season == "" {
		season = domainpricing.SeasonCustom
	}
	minStay := cmd.MinimumStay
	if minStay == 0 {
		minStay = 1
	}
	propertyID := property.ID(cmd.PropertyID)
	rule := domainpricing.SeasonalRule{
		ID:          id,
		PropertyID:  propertyID,
		Name:        strings.TrimSpace(cmd.Name),
		Season:      season,
		Start:       start,
		End:         end,
		Multiplier:  cmd.Multiplier,
		MinimumStay: minStay,
		Enabled:     cmd.Enabled,
		UpdatedAt:   clock.OrReal(h.Clock).Now(),
	}
	if err := rule.Validate(); err != nil {
		return nil, errors.Mark(err, domaincalendar.ErrValidation)
	}
	if err := h.Rules.SaveSeason(ctx, rule); err != nil {
		return nil, errors.Wrapf(err, "save season %s", id)
	}
	if h.Logger != nil {
		h.Logger.Info("seasonal rule saved", "property_id", propertyID, "season_id", id, "enabled", rule.Enabled)
	}

	regenerated, err := h.Refresh.run(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return &ChangeResult{PropertyID: cmd.PropertyID, ID: id, Regenerated: regenerated}, nil
}

type DeleteSeasonCommand struct {
	PropertyID string `validate:"required"`
	SeasonID   string `validate:"required"`
}

func (c DeleteSeasonCommand) Key() string { return deleteSeasonKey }

type DeleteSeasonHandler struct {
	Rules   domainpricing.RuleRepository
	Refresh Refresh
	Logger  *slog.Logger
}

func (h *DeleteSeasonHandler) Handle(ctx context.Context, cmd DeleteSeasonCommand) (*ChangeResult, error) {
	propertyID := property.ID(cmd.PropertyID)
	if err := h.Rules.DeleteSeason(ctx, propertyID, cmd.SeasonID); err != nil {
		return nil, err
	}
	if h.Logger != nil {
		h.Logger.Info("seasonal rule deleted", "property_id", propertyID, "season_id", cmd.SeasonID)
	}
	regenerated, err := h.Refresh.run(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return &ChangeResult{PropertyID: cmd.PropertyID, ID: cmd.SeasonID, Regenerated: regenerated}, nil
}

var (
	_ commands.Handler[UpsertSeasonCommand, *ChangeResult] = (*UpsertSeasonHandler)(nil)
	_ commands.Handler[DeleteSeasonCommand, *ChangeResult] = (*DeleteSeasonHandler)(nil)
)
