package ginserver

import (
	"log/slog"
	"net/http"
	"strconv"

	gin "github.com/gin-gonic/gin"

	"rentalspot/internal/app/commands"
	pricinghandlers "rentalspot/internal/app/handlers/pricing"
)

type PricingHandler struct {
	Commands commands.Bus
	Logger   *slog.Logger
}

type propertyRequest struct {
	PricePerNight float64                         `json:"pricePerNight"`
	BaseOccupancy int                             `json:"baseOccupancy"`
	MaxGuests     int                             `json:"maxGuests"`
	ExtraGuestFee float64                         `json:"extraGuestFee"`
	Weekend       *pricinghandlers.WeekendPayload `json:"weekendPricing"`
}

func (h PricingHandler) UpsertProperty(c *gin.Context) {
	var req propertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.Logger, err)
		return
	}
	cmd := pricinghandlers.UpsertPropertyCommand{
		PropertyID:    c.Param("id"),
		PricePerNight: req.PricePerNight,
		BaseOccupancy: req.BaseOccupancy,
		MaxGuests:     req.MaxGuests,
		ExtraGuestFee: req.ExtraGuestFee,
		Weekend:       req.Weekend,
	}
	h.dispatch(c, cmd)
}

type seasonRequest struct {
	Name        string  `json:"name"`
	Season      string  `json:"seasonType"`
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
	Multiplier  float64 `json:"priceMultiplier"`
	MinimumStay int     `json:"minimumStay"`
	Enabled     *bool   `json:"enabled"`
}

func (h PricingHandler) UpsertSeason(c *gin.Context) {
	var req seasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.Logger, err)
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	cmd := pricinghandlers.UpsertSeasonCommand{
		PropertyID:  c.Param("id"),
		SeasonID:    c.Param("seasonId"),
		Name:        req.Name,
		Season:      req.Season,
		Start:       req.StartDate,
		End:         req.EndDate,
		Multiplier:  req.Multiplier,
		MinimumStay: req.MinimumStay,
		Enabled:     enabled,
	}
	h.dispatch(c, cmd)
}

func (h PricingHandler) DeleteSeason(c *gin.Context) {
	h.dispatch(c, pricinghandlers.DeleteSeasonCommand{PropertyID: c.Param("id"), SeasonID: c.Param("seasonId")})
}

type overrideRequest struct {
	ID          string  `json:"id"`
	CustomPrice float64 `json:"customPrice"`
	Reason      string  `json:"reason"`
	MinimumStay *int    `json:"minimumStay"`
	Available   *bool   `json:"available"`
	FlatRate    bool    `json:"flatRate"`
}

// UpsertOverride writes the day in place unless ?sweep=true asks for a full
// regeneration of the window.
func (h PricingHandler) UpsertOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.Logger, err)
		return
	}
	sweep, _ := strconv.ParseBool(c.Query("sweep"))
	cmd := pricinghandlers.UpsertOverrideCommand{
		PropertyID:  c.Param("id"),
		Date:        c.Param("date"),
		OverrideID:  req.ID,
		CustomPrice: req.CustomPrice,
		Reason:      req.Reason,
		MinimumStay: req.MinimumStay,
		Available:   req.Available,
		FlatRate:    req.FlatRate,
		Sweep:       sweep,
	}
	h.dispatch(c, cmd)
}

func (h PricingHandler) DeleteOverride(c *gin.Context) {
	h.dispatch(c, pricinghandlers.DeleteOverrideCommand{PropertyID: c.Param("id"), Date: c.Param("date")})
}

func (h PricingHandler) dispatch(c *gin.Context, cmd commands.Command) {
	result, err := dispatchChange(c, h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func dispatchChange(c *gin.Context, bus commands.Bus, cmd commands.Command) (*pricinghandlers.ChangeResult, error) {
	return commands.Dispatch[commands.Command, *pricinghandlers.ChangeResult](c.Request.Context(), bus, cmd)
}

var _ PricingHTTP = PricingHandler{}
