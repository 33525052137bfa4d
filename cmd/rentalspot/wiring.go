package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"rentalspot/internal/app/commands"
	"rentalspot/internal/app/dto"
	calendarhandlers "rentalspot/internal/app/handlers/calendar"
	pricinghandlers "rentalspot/internal/app/handlers/pricing"
	"rentalspot/internal/app/middleware"
	appoutbox "rentalspot/internal/app/outbox"
	"rentalspot/internal/app/persister"
	"rentalspot/internal/app/queries"
	"rentalspot/internal/domain/booking"
	"rentalspot/internal/domain/calendar"
	"rentalspot/internal/domain/pricing"
	"rentalspot/internal/domain/property"
	"rentalspot/internal/infra/broker/kafka"
	rediscache "rentalspot/internal/infra/cache/redis"
	"rentalspot/internal/infra/config"
	mongostore "rentalspot/internal/infra/db/mongo"
	ginserver "rentalspot/internal/infra/http/gin"
	"rentalspot/internal/infra/inbox"
	"rentalspot/internal/infra/obs"
	"rentalspot/internal/infra/outbox"
	"rentalspot/internal/infra/storage/memory"
	"rentalspot/internal/pkg/clock"
)

const idempotencyTTL = 24 * time.Hour

// stores bundles the persistence backends selected by STORE_DRIVER.
type stores struct {
	shards      calendar.Store
	catalog     property.Catalog
	rules       pricing.RuleRepository
	bookings    booking.Repository
	outbox      appoutbox.Outbox
	queue       appoutbox.Queue
	idempotency middleware.IdempotencyStore
	inbox       kafka.Inbox
	ready       func(ctx context.Context) error
}

type application struct {
	server   *http.Server
	worker   *outbox.Worker
	consumer *kafka.Consumer
	closers  []func(context.Context) error
}

func (a *application) close(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logger.Warn("shutdown step failed", "error", err)
		}
	}
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{}
	clk := clock.InLocation(clock.NewRealClock(), cfg.Location())
	st, err := openStores(ctx, cfg, clk, app)
	if err != nil {
		app.close(logger)
		return nil, err
	}

	readShards := st.shards
	if cfg.Redis.Addr != "" {
		client, err := rediscache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("price cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			app.closers = append(app.closers, func(context.Context) error { return client.Close() })
			cached := rediscache.NewCachedStore(st.shards, client, cfg.Redis.TTL, logger)
			readShards = cached
			st.shards = cached.Writes()
			logger.Info("price cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
		}
	}

	p := persister.New(st.shards, clk)
	encoder := appoutbox.JSONEventEncoder{}

	sweeper := &calendarhandlers.Sweeper{
		Catalog: st.catalog, Rules: st.rules, Bookings: st.bookings,
		Persister: p, Outbox: st.outbox, Encoder: encoder,
		Clock: clk, Logger: logger, WindowMonths: cfg.Calendar.WindowMonths,
	}
	patcher := &calendarhandlers.Patcher{
		Rules: st.rules, Bookings: st.bookings,
		Persister: p, Outbox: st.outbox, Encoder: encoder,
		Clock: clk, Logger: logger,
	}
	direct := &calendarhandlers.OverrideDayUpdater{
		Catalog: st.catalog, Bookings: st.bookings,
		Persister: p, Outbox: st.outbox, Encoder: encoder,
		Clock: clk, Logger: logger,
	}
	reader := &calendarhandlers.Reader{Persister: persister.New(readShards, clk)}
	refresh := pricinghandlers.Refresh{Sweeper: sweeper, Clock: clk, WindowMonths: cfg.Calendar.WindowMonths}

	commandBus := commands.NewInMemoryBus()
	commands.RegisterHandler[calendarhandlers.RegenerateCommand, *calendarhandlers.RegenerateResult](commandBus, sweeper)
	commands.RegisterHandler[calendarhandlers.PatchAvailabilityCommand, *calendarhandlers.PatchAvailabilityResult](commandBus, patcher)
	commands.RegisterHandler[pricinghandlers.UpsertPropertyCommand, *pricinghandlers.ChangeResult](commandBus,
		&pricinghandlers.UpsertPropertyHandler{Catalog: st.catalog, Refresh: refresh, Clock: clk, Logger: logger})
	commands.RegisterHandler[pricinghandlers.UpsertSeasonCommand, *pricinghandlers.ChangeResult](commandBus,
		&pricinghandlers.UpsertSeasonHandler{Rules: st.rules, Refresh: refresh, Clock: clk, Logger: logger})
	commands.RegisterHandler[pricinghandlers.DeleteSeasonCommand, *pricinghandlers.ChangeResult](commandBus,
		&pricinghandlers.DeleteSeasonHandler{Rules: st.rules, Refresh: refresh, Logger: logger})
	commands.RegisterHandler[pricinghandlers.UpsertOverrideCommand, *pricinghandlers.ChangeResult](commandBus,
		&pricinghandlers.UpsertOverrideHandler{Rules: st.rules, Direct: direct, Refresh: refresh, Clock: clk, Logger: logger})
	commands.RegisterHandler[pricinghandlers.DeleteOverrideCommand, *pricinghandlers.ChangeResult](commandBus,
		&pricinghandlers.DeleteOverrideHandler{Rules: st.rules, Refresh: refresh, Logger: logger})

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler[calendarhandlers.GetAvailabilityQuery, *dto.AvailabilityMonth](queryBus,
		queries.HandlerFunc[calendarhandlers.GetAvailabilityQuery, *dto.AvailabilityMonth](reader.Availability))
	queries.RegisterHandler[calendarhandlers.GetPriceCalendarQuery, *dto.PriceCalendar](queryBus,
		queries.HandlerFunc[calendarhandlers.GetPriceCalendarQuery, *dto.PriceCalendar](reader.PriceCalendar))
	queries.RegisterHandler[calendarhandlers.ListPriceCalendarsQuery, *calendarhandlers.PriceCalendarList](queryBus,
		queries.HandlerFunc[calendarhandlers.ListPriceCalendarsQuery, *calendarhandlers.PriceCalendarList](reader.PriceCalendars))

	validator := middleware.NewStructValidator()
	commandBusWithMiddleware := middleware.ChainCommands(
		commandBus,
		middleware.CommandLogging(logger),
		middleware.Validation(validator),
		middleware.Idempotency(st.idempotency, nil, clk),
		middleware.OutboxFlush(st.outbox),
	)
	queryBusWithMiddleware := middleware.ChainQueries(queryBus, middleware.QueryValidation(validator))

	if len(cfg.Kafka.Brokers) > 0 {
		if err := wireKafka(cfg, logger, clk, st, commandBusWithMiddleware, app); err != nil {
			app.close(logger)
			return nil, err
		}
	} else {
		logger.Info("kafka disabled: outbox events stay in the store and booking events come over HTTP only")
	}

	app.server = ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Ready: st.ready}, ginserver.Handlers{
		Calendar: ginserver.CalendarHandler{Commands: commandBusWithMiddleware, Queries: queryBusWithMiddleware, Logger: logger},
		Pricing:  ginserver.PricingHandler{Commands: commandBusWithMiddleware, Logger: logger},
	})
	return app, nil
}

func openStores(ctx context.Context, cfg config.Config, clk clock.Clock, app *application) (stores, error) {
	if !cfg.UsesMongo() {
		box := memory.NewOutbox()
		if len(cfg.Kafka.Brokers) > 0 {
			box.Relayed()
		}
		return stores{
			shards:      memory.NewShardStore(cfg.Calendar.MaxIDsPerQuery),
			catalog:     memory.NewPropertyCatalog(),
			rules:       memory.NewRuleRepository(),
			bookings:    memory.NewBookingRepository(),
			outbox:      box,
			queue:       box,
			idempotency: memory.NewIdempotencyStore(idempotencyTTL, clk),
			inbox:       memory.NewInbox(),
		}, nil
	}

	client, err := mongostore.New(ctx, cfg.Mongo.URI, cfg.Mongo.DB)
	if err != nil {
		return stores{}, errors.Wrap(err, "open mongo store")
	}
	app.closers = append(app.closers, client.Close)
	db := client.DB
	box := outbox.NewStore(db, outbox.DefaultLease)
	return stores{
		shards:      mongostore.NewShardStore(db, cfg.Calendar.MaxIDsPerQuery),
		catalog:     mongostore.NewPropertyCatalog(db),
		rules:       mongostore.NewRuleRepository(db),
		bookings:    mongostore.NewBookingRepository(db),
		outbox:      box,
		queue:       box,
		idempotency: mongostore.NewIdempotencyStore(db, idempotencyTTL),
		inbox:       inbox.NewStore(db, cfg.Kafka.GroupID),
		ready:       client.Ping,
	}, nil
}

func wireKafka(cfg config.Config, logger *slog.Logger, clk clock.Clock, st stores, bus commands.Bus, app *application) error {
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, nil)
	if err != nil {
		return err
	}
	app.closers = append(app.closers, func(context.Context) error { return producer.Close() })
	app.worker = &outbox.Worker{
		Queue:       st.queue,
		Producer:    producer,
		Interval:    cfg.Outbox.PollInterval,
		TopicPrefix: cfg.Kafka.TopicPrefix,
		Backoff:     cfg.Outbox.Backoff,
		Logger:      logger,
		Now:         clk.Now,
	}

	handler := &kafka.BookingEventHandler{
		Bookings: st.bookings,
		Commands: bus,
		Inbox:    st.inbox,
		Clock:    clk,
		Logger:   logger,
	}
	consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, nil, handler, logger)
	if err != nil {
		return err
	}
	app.closers = append(app.closers, func(context.Context) error { return consumer.Close() })
	app.consumer = consumer
	return nil
}
