package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Outbox   OutboxConfig
	Calendar CalendarConfig
}

type AppConfig struct {
	Env         string `envconfig:"APP_ENV" default:"dev"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	StoreDriver string `envconfig:"STORE_DRIVER" default:"memory"`
}

type HTTPConfig struct {
	Addr         string   `envconfig:"HTTP_ADDR" default:":8080"`
	AllowOrigins []string `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:3000"`
}

type MongoConfig struct {
	URI string `envconfig:"MONGO_URI"`
	DB  string `envconfig:"MONGO_DB" default:"rentalspot"`
}

type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	TTL      time.Duration `envconfig:"CALENDAR_CACHE_TTL" default:"10m"`
}

type KafkaConfig struct {
	Brokers      []string `envconfig:"KAFKA_BROKERS"`
	TopicPrefix  string   `envconfig:"KAFKA_TOPIC_PREFIX"`
	BookingTopic string   `envconfig:"KAFKA_BOOKING_TOPIC" default:"booking.events.v1"`
	GroupID      string   `envconfig:"KAFKA_GROUP_ID" default:"rentalspot-calendar"`
}

type OutboxConfig struct {
	PollInterval time.Duration   `envconfig:"OUTBOX_POLL_INTERVAL" default:"500ms"`
	Backoff      []time.Duration `envconfig:"OUTBOX_BACKOFF" default:"1s,5s,30s"`
}

type CalendarConfig struct {
	WindowMonths   int    `envconfig:"CALENDAR_WINDOW_MONTHS" default:"12"`
	MaxIDsPerQuery int    `envconfig:"CALENDAR_MAX_IDS_PER_QUERY" default:"30"`
	TimeZone       string `envconfig:"CALENDAR_TIMEZONE" default:"UTC"`
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "process env config")
	}
	cfg.App.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.App.StoreDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.App.StoreDriver) {
	case StoreMemory:
	case StoreMongo:
		if c.Mongo.URI == "" {
			return errors.New("MONGO_URI is required when STORE_DRIVER=mongo")
		}
	default:
		return errors.Newf("unknown STORE_DRIVER %q", c.App.StoreDriver)
	}
	if c.Calendar.WindowMonths < 1 {
		return errors.New("CALENDAR_WINDOW_MONTHS must be at least 1")
	}
	if c.Calendar.MaxIDsPerQuery < 1 {
		return errors.New("CALENDAR_MAX_IDS_PER_QUERY must be at least 1")
	}
	if _, err := time.LoadLocation(c.Calendar.TimeZone); err != nil {
		return errors.Wrapf(err, "invalid CALENDAR_TIMEZONE %q", c.Calendar.TimeZone)
	}
	return nil
}

// Location is the zone whose calendar decides the current day and month.
// Validate has already checked that it loads.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Calendar.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// UsesMongo reports whether shards and rules live in MongoDB.
func (c Config) UsesMongo() bool {
	return strings.EqualFold(c.App.StoreDriver, StoreMongo)
}
