package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"rentalspot/internal/infra/config"
	"rentalspot/internal/infra/obs"
)

type CalendarHTTP interface {
	Availability(c *gin.Context)
	PriceCalendar(c *gin.Context)
	PriceCalendars(c *gin.Context)
	Regenerate(c *gin.Context)
	PatchAvailability(c *gin.Context)
}

type PricingHTTP interface {
	UpsertProperty(c *gin.Context)
	UpsertSeason(c *gin.Context)
	DeleteSeason(c *gin.Context)
	UpsertOverride(c *gin.Context)
	DeleteOverride(c *gin.Context)
}

type Handlers struct {
	Calendar CalendarHTTP
	Pricing  PricingHTTP
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.App.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.AccessLog())
	router.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins(cfg.HTTP.AllowOrigins),
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Idempotency-Key", obs.RequestIDHeader},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			obs.RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}))

	health.Register(router)

	props := router.Group("/api/v1/properties/:id")
	if h.Calendar != nil {
		props.GET("/availability/:month", h.Calendar.Availability)
		props.POST("/availability/patch", h.Calendar.PatchAvailability)
		props.GET("/calendar/:month", h.Calendar.PriceCalendar)
		props.GET("/calendar", h.Calendar.PriceCalendars)
		props.POST("/calendar/regenerate", h.Calendar.Regenerate)
	}
	if h.Pricing != nil {
		props.PUT("/pricing", h.Pricing.UpsertProperty)
		props.PUT("/seasons/:seasonId", h.Pricing.UpsertSeason)
		props.DELETE("/seasons/:seasonId", h.Pricing.DeleteSeason)
		props.PUT("/overrides/:date", h.Pricing.UpsertOverride)
		props.DELETE("/overrides/:date", h.Pricing.DeleteOverride)
	}
	return router
}

func allowOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
