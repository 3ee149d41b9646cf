package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/andygrunwald/fuel-advisor/internal/advisor"
	"github.com/andygrunwald/fuel-advisor/internal/api/pricefeed"
	"github.com/andygrunwald/fuel-advisor/internal/config"
	"github.com/andygrunwald/fuel-advisor/internal/database"
	"github.com/andygrunwald/fuel-advisor/internal/forecast"
	"github.com/andygrunwald/fuel-advisor/internal/ledger"
	"github.com/andygrunwald/fuel-advisor/internal/lock"
	"github.com/andygrunwald/fuel-advisor/internal/metrics"
	"github.com/andygrunwald/fuel-advisor/internal/pricestore"
	"github.com/andygrunwald/fuel-advisor/internal/pricestore/influx"
	"github.com/andygrunwald/fuel-advisor/internal/pricestore/sqlstore"
	"github.com/andygrunwald/fuel-advisor/internal/syncer"
	"github.com/andygrunwald/fuel-advisor/internal/tenant"
)

const lockPrefix = "fueladvisor"

// app holds the wired components shared by all commands.
type app struct {
	db      *database.DB
	redis   *redis.Client
	feed    *pricefeed.Client
	metrics *metrics.Metrics
	advisor *advisor.Service
}

func newApp(reg prometheus.Registerer, logger zerolog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	epoch, err := cfg.EpochDate()
	if err != nil {
		return nil, err
	}

	m := metrics.New(reg)

	// Connect to database
	db, err := database.New(cfg.DBDriver, cfg.DatabaseDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	db.SetRecorder(m)

	a := &app{db: db, metrics: m}

	registry := tenant.New(db, logger)
	led := ledger.New(db, logger)
	led.SetRecorder(m)

	var prices pricestore.Store
	switch cfg.PriceStore.Backend {
	case config.PriceStoreInflux:
		prices = influx.New(cfg.PriceStore.InfluxToken, cfg.PriceStore.InfluxOrg, cfg.Feed.Timeout, logger)
	default:
		prices = sqlstore.New(db, logger)
	}

	a.feed = pricefeed.New(pricefeed.Options{
		BaseURL:    cfg.Feed.URL,
		Instrument: cfg.Feed.Instrument,
		PageSize:   cfg.Feed.PageSize,
		MaxPages:   cfg.Feed.MaxPages,
		Rate:       cfg.Feed.Rate,
		Timeout:    cfg.Feed.Timeout,
	}, logger)
	a.feed.SetRecorder(m)

	coordinator := syncer.New(prices, a.feed, syncer.Options{
		Epoch:     epoch,
		Lookback:  cfg.Sync.Lookback,
		Freshness: cfg.Sync.Freshness,
		LockTTL:   cfg.Sync.LockTTL,
	}, logger)
	coordinator.SetRecorder(m)

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		coordinator.SetLocker(lock.NewRedis(a.redis, lockPrefix))
		logger.Info().Str("addr", cfg.RedisAddr).Msg("sync lock enabled")
	}

	a.advisor = advisor.New(
		registry,
		led,
		coordinator,
		prices,
		forecast.NewLinearTrend(cfg.Advisor.ForecastWindowDays),
		advisor.Options{
			DefaultHorizon: cfg.Advisor.DefaultHorizon,
			MaxHorizon:     cfg.Advisor.MaxHorizon,
			SafetyMargin:   cfg.Advisor.SafetyMargin,
			HistoryFrom:    epoch,
			AdminToken:     cfg.AdminToken,
		},
		logger,
	)
	a.advisor.SetRecorder(m)

	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.db.Close()
}
