package ginserver_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentalspot/internal/app/commands"
	"rentalspot/internal/app/dto"
	calendarhandlers "rentalspot/internal/app/handlers/calendar"
	pricinghandlers "rentalspot/internal/app/handlers/pricing"
	"rentalspot/internal/app/middleware"
	"rentalspot/internal/app/persister"
	"rentalspot/internal/app/queries"
	"rentalspot/internal/infra/config"
	ginserver "rentalspot/internal/infra/http/gin"
	"rentalspot/internal/infra/obs"
	"rentalspot/internal/infra/storage/memory"
	"rentalspot/internal/pkg/clock"
)

type api struct {
	router http.Handler
	store  *memory.ShardStore
}

func newAPI(t *testing.T) *api {
	t.Helper()
	clk := clock.NewMockClock(time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC))
	store := memory.NewShardStore(30)
	catalog := memory.NewPropertyCatalog()
	rules := memory.NewRuleRepository()
	bookings := memory.NewBookingRepository()
	box := memory.NewOutbox()
	p := persister.New(store, clk)

	sweeper := &calendarhandlers.Sweeper{Catalog: catalog, Rules: rules, Bookings: bookings, Persister: p, Outbox: box, Clock: clk, WindowMonths: 2}
	patcher := &calendarhandlers.Patcher{Rules: rules, Bookings: bookings, Persister: p, Outbox: box, Clock: clk}
	direct := &calendarhandlers.OverrideDayUpdater{Catalog: catalog, Bookings: bookings, Persister: p, Outbox: box, Clock: clk}
	refresh := pricinghandlers.Refresh{Sweeper: sweeper, Clock: clk, WindowMonths: 2}
	reader := &calendarhandlers.Reader{Persister: p}

	cmdBus := commands.NewInMemoryBus()
	commands.RegisterHandler[calendarhandlers.RegenerateCommand, *calendarhandlers.RegenerateResult](cmdBus, sweeper)
	commands.RegisterHandler[calendarhandlers.PatchAvailabilityCommand, *calendarhandlers.PatchAvailabilityResult](cmdBus, patcher)
	commands.RegisterHandler[pricinghandlers.UpsertPropertyCommand, *pricinghandlers.ChangeResult](cmdBus, &pricinghandlers.UpsertPropertyHandler{Catalog: catalog, Refresh: refresh, Clock: clk})
	commands.RegisterHandler[pricinghandlers.UpsertSeasonCommand, *pricinghandlers.ChangeResult](cmdBus, &pricinghandlers.UpsertSeasonHandler{Rules: rules, Refresh: refresh, Clock: clk})
	commands.RegisterHandler[pricinghandlers.DeleteSeasonCommand, *pricinghandlers.ChangeResult](cmdBus, &pricinghandlers.DeleteSeasonHandler{Rules: rules, Refresh: refresh})
	commands.RegisterHandler[pricinghandlers.UpsertOverrideCommand, *pricinghandlers.ChangeResult](cmdBus, &pricinghandlers.UpsertOverrideHandler{Rules: rules, Direct: direct, Refresh: refresh, Clock: clk})
	commands.RegisterHandler[pricinghandlers.DeleteOverrideCommand, *pricinghandlers.ChangeResult](cmdBus, &pricinghandlers.DeleteOverrideHandler{Rules: rules, Refresh: refresh})

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler[calendarhandlers.GetAvailabilityQuery, *dto.AvailabilityMonth](queryBus, queries.HandlerFunc[calendarhandlers.GetAvailabilityQuery, *dto.AvailabilityMonth](reader.Availability))
	queries.RegisterHandler[calendarhandlers.GetPriceCalendarQuery, *dto.PriceCalendar](queryBus, queries.HandlerFunc[calendarhandlers.GetPriceCalendarQuery, *dto.PriceCalendar](reader.PriceCalendar))
	queries.RegisterHandler[calendarhandlers.ListPriceCalendarsQuery, *calendarhandlers.PriceCalendarList](queryBus, queries.HandlerFunc[calendarhandlers.ListPriceCalendarsQuery, *calendarhandlers.PriceCalendarList](reader.PriceCalendars))

	v := middleware.NewStructValidator()
	cmds := middleware.ChainCommands(cmdBus,
		middleware.Validation(v),
		middleware.Idempotency(memory.NewIdempotencyStore(0, clk), nil, clk),
		middleware.OutboxFlush(box),
	)
	qs := middleware.ChainQueries(queryBus, middleware.QueryValidation(v))

	cfg := config.Config{App: config.AppConfig{Env: "test"}}
	router := ginserver.NewRouter(cfg, obs.Middleware{}, obs.HealthHandlers{}, ginserver.Handlers{
		Calendar: ginserver.CalendarHandler{Commands: cmds, Queries: qs},
		Pricing:  ginserver.PricingHandler{Commands: cmds},
	})
	return &api{router: router, store: store}
}

func (a *api) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (a *api) seed(t *testing.T) {
	t.Helper()
	rec := a.do(t, http.MethodPut, "/api/v1/properties/loft/pricing",
		`{"pricePerNight":100,"baseOccupancy":2,"maxGuests":3,"extraGuestFee":25}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPricingUpsertGeneratesReadableCalendar(t *testing.T) {
	a := newAPI(t)
	a.seed(t)

	rec := a.do(t, http.MethodGet, "/api/v1/properties/loft/calendar/2025-07", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cal := decode[dto.PriceCalendar](t, rec)
	assert.Equal(t, "July 2025", cal.MonthStr)
	assert.Len(t, cal.Days, 31)
	assert.Equal(t, map[string]float64{"2": 100, "3": 125}, cal.Days["1"].Prices)

	rec = a.do(t, http.MethodGet, "/api/v1/properties/loft/availability/2025-08", "")
	require.Equal(t, http.StatusOK, rec.Code)
	avail := decode[dto.AvailabilityMonth](t, rec)
	assert.Len(t, avail.Available, 31)
	assert.True(t, avail.Available["31"])

	rec = a.do(t, http.MethodGet, "/api/v1/properties/loft/calendar?from=2025-07&months=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[calendarhandlers.PriceCalendarList](t, rec)
	assert.Len(t, list.Calendars, 2)
	assert.Equal(t, []string{"2025-09"}, list.Missing)
}

func TestPatchAvailabilityHonorsIdempotencyKey(t *testing.T) {
	a := newAPI(t)
	a.seed(t)
	body := `{"bookingId":"b1","start":"2025-07-10","end":"2025-07-13","available":false}`

	first := a.do(t, http.MethodPost, "/api/v1/properties/loft/availability/patch", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	commits := len(a.store.Commits())

	second := a.do(t, http.MethodPost, "/api/v1/properties/loft/availability/patch", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Len(t, a.store.Commits(), commits)

	rec := a.do(t, http.MethodGet, "/api/v1/properties/loft/availability/2025-07", "")
	avail := decode[dto.AvailabilityMonth](t, rec)
	assert.False(t, avail.Available["10"])
	assert.False(t, avail.Available["12"])
	assert.True(t, avail.Available["13"])
}

func TestErrorStatusMapping(t *testing.T) {
	a := newAPI(t)
	a.seed(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "malformed month", method: http.MethodGet, path: "/api/v1/properties/loft/calendar/2025-13", want: http.StatusBadRequest},
		{name: "missing shard", method: http.MethodGet, path: "/api/v1/properties/loft/calendar/2030-01", want: http.StatusNotFound},
		{name: "unknown property", method: http.MethodGet, path: "/api/v1/properties/ghost/availability/2025-07", want: http.StatusNotFound},
		{name: "bad patch body", method: http.MethodPost, path: "/api/v1/properties/loft/availability/patch", body: `{"start":"2025-07-10"}`, want: http.StatusBadRequest},
		{name: "negative override price", method: http.MethodPut, path: "/api/v1/properties/loft/overrides/2025-07-08", body: `{"customPrice":-1}`, want: http.StatusBadRequest},
		{name: "unknown season", method: http.MethodDelete, path: "/api/v1/properties/loft/seasons/nope", want: http.StatusNotFound},
		{name: "unknown override", method: http.MethodDelete, path: "/api/v1/properties/loft/overrides/2025-07-09", want: http.StatusNotFound},
		{name: "list window too wide", method: http.MethodGet, path: "/api/v1/properties/loft/calendar?from=2025-07&months=61", want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := a.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
			assert.Contains(t, decode[map[string]any](t, rec), "error")
		})
	}
}

func TestOverrideRoutes(t *testing.T) {
	a := newAPI(t)
	a.seed(t)

	rec := a.do(t, http.MethodPut, "/api/v1/properties/loft/overrides/2025-07-08", `{"id":"o1","customPrice":80,"reason":"promo"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[pricinghandlers.ChangeResult](t, rec)
	assert.Equal(t, "o1", res.ID)
	require.NotNil(t, res.Override)
	assert.Nil(t, res.Regenerated)

	cal := decode[dto.PriceCalendar](t, a.do(t, http.MethodGet, "/api/v1/properties/loft/calendar/2025-07", ""))
	assert.Equal(t, 80.0, cal.Days["8"].AdjustedPrice)
	assert.Equal(t, "override", cal.Days["8"].PriceSource)

	rec = a.do(t, http.MethodDelete, "/api/v1/properties/loft/overrides/2025-07-08", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cal = decode[dto.PriceCalendar](t, a.do(t, http.MethodGet, "/api/v1/properties/loft/calendar/2025-07", ""))
	assert.Equal(t, 100.0, cal.Days["8"].AdjustedPrice)
}

func TestSeasonRoutes(t *testing.T) {
	a := newAPI(t)
	a.seed(t)

	rec := a.do(t, http.MethodPut, "/api/v1/properties/loft/seasons/summer",
		`{"name":"Summer","seasonType":"high","startDate":"2025-07-14","endDate":"2025-07-20","priceMultiplier":1.5,"minimumStay":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cal := decode[dto.PriceCalendar](t, a.do(t, http.MethodGet, "/api/v1/properties/loft/calendar/2025-07", ""))
	assert.Equal(t, 150.0, cal.Days["14"].AdjustedPrice)
	require.NotNil(t, cal.Days["14"].SeasonID)
	assert.Equal(t, "summer", *cal.Days["14"].SeasonID)
	assert.True(t, cal.Summary.HasSeasonalRates)
}

func TestHealthRoutes(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/livez", "").Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/readyz", "").Code)
}

func TestNilBusIsUnavailable(t *testing.T) {
	router := ginserver.NewRouter(config.Config{App: config.AppConfig{Env: "test"}}, obs.Middleware{}, obs.HealthHandlers{}, ginserver.Handlers{
		Calendar: ginserver.CalendarHandler{},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/properties/loft/calendar/2025-07", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
