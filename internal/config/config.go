// Package config provides configuration structures and loading for the fuel advisor.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	// DriverPostgres selects PostgreSQL through the pgx stdlib driver.
	DriverPostgres = "pgx"
	// DriverSQLite selects an embedded SQLite database.
	DriverSQLite = "sqlite3"

	// PriceStoreSQL keeps price history in the relational database.
	PriceStoreSQL = "sql"
	// PriceStoreInflux keeps price history in the tenant's InfluxDB endpoint.
	PriceStoreInflux = "influx"
)

// Config holds all configuration for the fuel advisor.
type Config struct {
	// Database driver (pgx, sqlite3)
	DBDriver string `env:"DB_DRIVER" envDefault:"pgx"`
	// Database connection string
	DatabaseDSN string `env:"DATABASE_DSN"`
	// Log level (debug, info, warn, error)
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// Log format (json, console)
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	// HTTP server address
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	// Token required by administrative endpoints. Empty disables them.
	AdminToken string `env:"ADMIN_TOKEN"`
	// Redis address for the sync lock. Empty disables locking.
	RedisAddr string `env:"REDIS_ADDR"`

	PriceStore PriceStoreConfig
	Feed       FeedConfig
	Sync       SyncConfig
	Advisor    AdvisorConfig
}

// PriceStoreConfig selects and configures the price history store.
type PriceStoreConfig struct {
	// Backend (sql, influx)
	Backend string `env:"PRICE_STORE" envDefault:"sql"`
	// InfluxDB API token, used with the influx backend
	InfluxToken string `env:"INFLUX_TOKEN"`
	// InfluxDB organization, used with the influx backend
	InfluxOrg string `env:"INFLUX_ORG"`
}

// FeedConfig holds configuration for the external price feed.
type FeedConfig struct {
	URL        string        `env:"FEED_URL" envDefault:"http://localhost:9090/api/prices"`
	Instrument string        `env:"FEED_INSTRUMENT" envDefault:"gasoline"`
	PageSize   int           `env:"FEED_PAGE_SIZE" envDefault:"500"`
	MaxPages   int           `env:"FEED_MAX_PAGES" envDefault:"50"`
	Rate       float64       `env:"FEED_RATE" envDefault:"2"`
	Timeout    time.Duration `env:"FEED_TIMEOUT" envDefault:"30s"`
}

// SyncConfig holds configuration for the sync coordinator.
type SyncConfig struct {
	// First date backfilled for a tenant without history
	Epoch string `env:"SYNC_EPOCH" envDefault:"2017-01-01"`
	// Look-back window when searching for the watermark
	Lookback time.Duration `env:"SYNC_LOOKBACK" envDefault:"8760h"`
	// History younger than this is considered fresh
	Freshness time.Duration `env:"SYNC_FRESHNESS" envDefault:"24h"`
	// Expiry of the per-tenant sync lock
	LockTTL time.Duration `env:"SYNC_LOCK_TTL" envDefault:"2m"`
}

// AdvisorConfig holds configuration for forecasting and decisions.
type AdvisorConfig struct {
	ForecastWindowDays int     `env:"FORECAST_WINDOW_DAYS" envDefault:"90"`
	DefaultHorizon     int     `env:"DEFAULT_HORIZON" envDefault:"7"`
	MaxHorizon         int     `env:"MAX_HORIZON" envDefault:"60"`
	SafetyMargin       float64 `env:"SAFETY_MARGIN" envDefault:"1000"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	// Parsing an empty environment only applies envDefault tags and cannot fail.
	_ = env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

// LoadFromEnv loads configuration from environment variables and an optional .env file.
func (c *Config) LoadFromEnv() error {
	_ = godotenv.Load()

	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

// EpochDate returns the parsed backfill epoch.
func (c *Config) EpochDate() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.Sync.Epoch)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing sync epoch %q: %w", c.Sync.Epoch, err)
	}
	return t, nil
}

// Validate checks the configuration for unusable combinations.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unknown database driver %q", c.DBDriver)
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database dsn is required")
	}

	switch c.PriceStore.Backend {
	case PriceStoreSQL:
	case PriceStoreInflux:
		if c.PriceStore.InfluxToken == "" || c.PriceStore.InfluxOrg == "" {
			return fmt.Errorf("influx price store requires INFLUX_TOKEN and INFLUX_ORG")
		}
	default:
		return fmt.Errorf("unknown price store %q", c.PriceStore.Backend)
	}

	if c.Feed.URL == "" {
		return fmt.Errorf("feed url is required")
	}
	if c.Feed.PageSize < 1 {
		return fmt.Errorf("feed page size must be at least 1, got %d", c.Feed.PageSize)
	}
	if c.Feed.MaxPages < 1 {
		return fmt.Errorf("feed max pages must be at least 1, got %d", c.Feed.MaxPages)
	}
	if c.Feed.Rate <= 0 {
		return fmt.Errorf("feed rate must be positive, got %v", c.Feed.Rate)
	}

	if _, err := c.EpochDate(); err != nil {
		return err
	}

	if c.Advisor.MaxHorizon < 1 {
		return fmt.Errorf("max horizon must be at least 1, got %d", c.Advisor.MaxHorizon)
	}
	if c.Advisor.DefaultHorizon < 1 || c.Advisor.DefaultHorizon > c.Advisor.MaxHorizon {
		return fmt.Errorf("default horizon %d outside [1, %d]", c.Advisor.DefaultHorizon, c.Advisor.MaxHorizon)
	}
	if c.Advisor.ForecastWindowDays < 2 {
		return fmt.Errorf("forecast window must cover at least 2 days, got %d", c.Advisor.ForecastWindowDays)
	}
	return nil
}
