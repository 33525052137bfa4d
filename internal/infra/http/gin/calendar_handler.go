package ginserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	gin "github.com/gin-gonic/gin"

	"rentalspot/internal/app/commands"
	"rentalspot/internal/app/dto"
	calendarhandlers "rentalspot/internal/app/handlers/calendar"
	"rentalspot/internal/app/queries"
	"rentalspot/internal/domain/shared/daterange"
)

const idempotencyHeader = "Idempotency-Key"

type CalendarHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h CalendarHandler) Availability(c *gin.Context) {
	query := calendarhandlers.GetAvailabilityQuery{PropertyID: c.Param("id"), Month: c.Param("month")}
	result, err := queries.Ask[calendarhandlers.GetAvailabilityQuery, *dto.AvailabilityMonth](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h CalendarHandler) PriceCalendar(c *gin.Context) {
	query := calendarhandlers.GetPriceCalendarQuery{PropertyID: c.Param("id"), Month: c.Param("month")}
	result, err := queries.Ask[calendarhandlers.GetPriceCalendarQuery, *dto.PriceCalendar](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h CalendarHandler) PriceCalendars(c *gin.Context) {
	months := 1
	if raw := strings.TrimSpace(c.Query("months")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, h.Logger, errors.Newf("months must be a number, got %q", raw))
			return
		}
		months = n
	}
	query := calendarhandlers.ListPriceCalendarsQuery{PropertyID: c.Param("id"), From: c.Query("from"), Months: months}
	result, err := queries.Ask[calendarhandlers.ListPriceCalendarsQuery, *calendarhandlers.PriceCalendarList](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type regenerateRequest struct {
	From   string `json:"from"`
	Months int    `json:"months"`
}

func (h CalendarHandler) Regenerate(c *gin.Context) {
	var req regenerateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, h.Logger, err)
			return
		}
	}
	cmd := calendarhandlers.RegenerateCommand{PropertyID: c.Param("id"), From: req.From, Months: req.Months}
	result, err := commands.Dispatch[calendarhandlers.RegenerateCommand, *calendarhandlers.RegenerateResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type patchAvailabilityRequest struct {
	BookingID string `json:"bookingId"`
	Start     string `json:"start" binding:"required"`
	End       string `json:"end" binding:"required"`
	Available *bool  `json:"available" binding:"required"`
}

// PatchAvailability is the booking workflow's entry point. A repeated
// Idempotency-Key replays the first successful result.
func (h CalendarHandler) PatchAvailability(c *gin.Context) {
	var req patchAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.Logger, err)
		return
	}
	start, err := daterange.ParseDay(req.Start)
	if err != nil {
		badRequest(c, h.Logger, err)
		return
	}
	end, err := daterange.ParseDay(req.End)
	if err != nil {
		badRequest(c, h.Logger, err)
		return
	}
	cmd := calendarhandlers.PatchAvailabilityCommand{
		PropertyID:      c.Param("id"),
		BookingID:       strings.TrimSpace(req.BookingID),
		Start:           start,
		End:             end,
		Available:       *req.Available,
		IdempotencyKeyV: strings.TrimSpace(c.GetHeader(idempotencyHeader)),
	}
	result, err := commands.Dispatch[calendarhandlers.PatchAvailabilityCommand, *calendarhandlers.PatchAvailabilityResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ CalendarHTTP = CalendarHandler{}
