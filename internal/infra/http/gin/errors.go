package ginserver

import (
	"log/slog"
	"net/http"

	"github.com/cockroachdb/errors"
	gin "github.com/gin-gonic/gin"

	"rentalspot/internal/app/commands"
	"rentalspot/internal/app/middleware"
	"rentalspot/internal/app/queries"
	"rentalspot/internal/domain/booking"
	"rentalspot/internal/domain/calendar"
	"rentalspot/internal/domain/pricing"
	"rentalspot/internal/domain/property"
	"rentalspot/internal/infra/obs"
)

// statusFor maps application errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, calendar.ErrValidation):
		return http.StatusBadRequest
	case errors.IsAny(err,
		calendar.ErrShardNotFound,
		property.ErrPropertyNotFound,
		pricing.ErrSeasonNotFound,
		pricing.ErrOverrideNotFound,
		booking.ErrBookingNotFound):
		return http.StatusNotFound
	case errors.IsAny(err, calendar.ErrConcurrentUpdate, middleware.ErrKeyReused):
		return http.StatusConflict
	case errors.IsAny(err, commands.ErrNilBus, queries.ErrNilBus):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	if logger != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request failed",
			"status", status,
			"path", c.FullPath(),
			"property_id", c.Param("id"),
			"request_id", obs.RequestIDFromContext(c.Request.Context()),
			"err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, logger *slog.Logger, err error) {
	respondError(c, logger, errors.Mark(err, calendar.ErrValidation))
}
