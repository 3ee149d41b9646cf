// Package advisor exposes the public commands of the fuel advisor: tenant
// management, price synchronization, ledger bookkeeping and predictions.
package advisor

import (
	"context"
	"crypto/subtle"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/andygrunwald/fuel-advisor/internal/decision"
	"github.com/andygrunwald/fuel-advisor/internal/errs"
	"github.com/andygrunwald/fuel-advisor/internal/forecast"
	"github.com/andygrunwald/fuel-advisor/internal/ledger"
	"github.com/andygrunwald/fuel-advisor/internal/models"
	"github.com/andygrunwald/fuel-advisor/internal/pricestore"
	"github.com/andygrunwald/fuel-advisor/internal/tenant"
)

// Syncer keeps tenant price history up to date.
type Syncer interface {
	Sync(ctx context.Context, profile models.TenantProfile) (models.SyncResult, error)
	EnsureFresh(ctx context.Context, profile models.TenantProfile) (models.SyncResult, error)
}

// Recorder receives a notification for every decision made.
type Recorder interface {
	RecordDecision(action string)
}

// Options configures the service.
type Options struct {
	DefaultHorizon int
	MaxHorizon     int
	SafetyMargin   float64
	// HistoryFrom is the first day of price history loaded for forecasting.
	HistoryFrom time.Time
	// AdminToken guards ResetAll. Empty disables it.
	AdminToken string
}

// Service implements the advisor commands.
type Service struct {
	registry   *tenant.Registry
	ledger     *ledger.Ledger
	syncer     Syncer
	prices     pricestore.Store
	forecaster forecast.Provider
	recorder   Recorder
	opts       Options
	now        func() time.Time
	logger     zerolog.Logger
}

// New creates a new Service.
func New(
	reg *tenant.Registry,
	led *ledger.Ledger,
	syncer Syncer,
	prices pricestore.Store,
	forecaster forecast.Provider,
	opts Options,
	logger zerolog.Logger,
) *Service {
	if opts.DefaultHorizon < 1 {
		opts.DefaultHorizon = decision.DefaultHorizon
	}
	if opts.MaxHorizon < opts.DefaultHorizon {
		opts.MaxHorizon = opts.DefaultHorizon
	}
	return &Service{
		registry:   reg,
		ledger:     led,
		syncer:     syncer,
		prices:     prices,
		forecaster: forecaster,
		opts:       opts,
		now:        time.Now,
		logger:     logger.With().Str("component", "advisor").Logger(),
	}
}

// SetRecorder wires a metrics recorder into the service.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// RegisterTenant registers a new organization and returns its secret.
func (s *Service) RegisterTenant(ctx context.Context, p models.TenantProfile) (string, error) {
	return s.registry.Register(ctx, p)
}

// LookupTenant returns the profile of an authorized organization.
func (s *Service) LookupTenant(ctx context.Context, org, secret string) (*models.TenantProfile, error) {
	return s.registry.Lookup(ctx, org, secret)
}

// UpdateTenant applies a partial profile update.
func (s *Service) UpdateTenant(ctx context.Context, org, secret string, u models.TenantUpdate) (*models.TenantProfile, error) {
	return s.registry.Update(ctx, org, secret, u)
}

// SyncNow backfills the organization's price history from the feed.
func (s *Service) SyncNow(ctx context.Context, org, secret string) (models.SyncResult, error) {
	profile, err := s.registry.Lookup(ctx, org, secret)
	if err != nil {
		return models.SyncResult{}, err
	}
	return s.syncer.Sync(ctx, *profile)
}

// RequestPrediction forecasts prices for [today, today+horizon) and decides
// whether the pump should be restocked now. A horizon of 0 selects the default.
func (s *Service) RequestPrediction(ctx context.Context, org, secret, pumpID string, horizon int) (*models.Prediction, error) {
	if horizon == 0 {
		horizon = s.opts.DefaultHorizon
	}
	if horizon < 1 || horizon > s.opts.MaxHorizon {
		return nil, errs.Validation("horizon must be between 1 and %d, got %d", s.opts.MaxHorizon, horizon)
	}
	if strings.TrimSpace(pumpID) == "" {
		return nil, errs.Validation("pump id is required")
	}

	profile, err := s.registry.Lookup(ctx, org, secret)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With().Str("org", profile.Org).Str("pump_id", pumpID).Logger()

	if _, err := s.syncer.EnsureFresh(ctx, *profile); err != nil {
		return nil, fmt.Errorf("refreshing price history: %w", err)
	}

	history, err := s.history(ctx, profile.Stream())
	if err != nil {
		return nil, err
	}

	today := models.Day(s.now())
	series, err := s.forecast(ctx, history, today, horizon)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", profile.Org, err)
	}

	stock, err := s.ledger.Projection(ctx, pumpID, profile.Org)
	if err != nil {
		return nil, err
	}

	d, err := decision.Decide(decision.Input{
		PumpID:                  pumpID,
		Today:                   today,
		Horizon:                 horizon,
		Forecast:                series,
		CurrentStock:            stock.CurrentStock,
		AverageDailyConsumption: stock.AverageDailyConsumption,
		SafetyMargin:            s.opts.SafetyMargin,
	})
	if err != nil {
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.RecordDecision(string(d.Action))
	}

	logger.Info().
		Str("action", string(d.Action)).
		Int("horizon", horizon).
		Float64("current_stock", stock.CurrentStock).
		Float64("avg_daily_consumption", stock.AverageDailyConsumption).
		Msg("prediction computed")

	return &models.Prediction{
		Org:      profile.Org,
		Horizon:  horizon,
		Decision: d,
		Stock:    stock,
		Forecast: series,
	}, nil
}

func (s *Service) history(ctx context.Context, stream models.Stream) ([]models.PricePoint, error) {
	sess, err := s.prices.Open(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("opening price store: %w", err)
	}
	defer func() { _ = sess.Close() }()

	points, err := sess.Series(ctx, s.opts.HistoryFrom)
	if err != nil {
		return nil, fmt.Errorf("loading price history: %w", err)
	}
	return points, nil
}

// forecast returns one point per day of [today, today+horizon). The model is
// fit on prices before today and asked for enough days to bridge the gap
// between the end of that history and the window. Stored prices within the
// window take precedence over predictions.
func (s *Service) forecast(ctx context.Context, history []models.PricePoint, today time.Time, horizon int) ([]models.ForecastPoint, error) {
	end := today.AddDate(0, 0, horizon)

	past := history
	for len(past) > 0 && !models.Day(past[len(past)-1].Date).Before(today) {
		past = past[:len(past)-1]
	}
	if len(past) == 0 {
		return nil, fmt.Errorf("%w: no price history before %s", errs.ErrNoData, today.Format(models.DateLayout))
	}
	pastEnd := models.Day(past[len(past)-1].Date)

	byDay := make(map[time.Time]float64, horizon)
	if steps := models.DaysBetween(pastEnd, end) - 1; steps > 0 {
		predicted, err := s.forecaster.Forecast(ctx, past, steps)
		if err != nil {
			return nil, fmt.Errorf("forecasting prices: %w", err)
		}
		for _, p := range predicted {
			byDay[models.Day(p.Date)] = p.Price
		}
	}
	for _, p := range history {
		d := models.Day(p.Date)
		if !d.Before(today) && d.Before(end) {
			byDay[d] = p.Value
		}
	}

	series := make([]models.ForecastPoint, 0, horizon)
	for d, v := range byDay {
		if !d.Before(today) && d.Before(end) {
			series = append(series, models.ForecastPoint{Date: d, Price: v})
		}
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	return series, nil
}

// SubmitPrice stores a single authoritative price for date in the
// organization's price history.
func (s *Service) SubmitPrice(ctx context.Context, org, secret string, date time.Time, price float64) error {
	if date.IsZero() {
		return errs.Validation("date is required")
	}
	if day, today := models.Day(date), models.Day(s.now()); day.After(today) {
		return errs.Validation("date %s is in the future", day.Format(models.DateLayout))
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return errs.Validation("price must be a positive finite number, got %v", price)
	}

	profile, err := s.registry.Lookup(ctx, org, secret)
	if err != nil {
		return err
	}

	sess, err := s.prices.Open(ctx, profile.Stream())
	if err != nil {
		return fmt.Errorf("opening price store: %w", err)
	}
	defer func() { _ = sess.Close() }()

	exists, err := sess.BucketExists(ctx)
	if err != nil {
		return fmt.Errorf("checking bucket: %w", err)
	}
	if !exists {
		if err := sess.CreateBucket(ctx); err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
	}

	if _, err := sess.Upsert(ctx, []models.PricePoint{{Date: models.Day(date), Value: price}}); err != nil {
		return fmt.Errorf("storing price: %w", err)
	}

	s.logger.Debug().
		Str("org", profile.Org).
		Str("date", models.Day(date).Format(models.DateLayout)).
		Float64("price", price).
		Msg("price submitted")
	return nil
}

// RecordUsage appends a usage event for the organization's pump.
func (s *Service) RecordUsage(ctx context.Context, org, secret, pumpID string, amount float64) (models.LedgerEvent, error) {
	profile, err := s.registry.Lookup(ctx, org, secret)
	if err != nil {
		return models.LedgerEvent{}, err
	}
	return s.ledger.RecordUsage(ctx, pumpID, amount, profile.Org)
}

// RecordRestock appends a restock event for the organization's pump.
func (s *Service) RecordRestock(ctx context.Context, org, secret, pumpID string, amount float64) (models.LedgerEvent, error) {
	profile, err := s.registry.Lookup(ctx, org, secret)
	if err != nil {
		return models.LedgerEvent{}, err
	}
	return s.ledger.RecordRestock(ctx, pumpID, amount, profile.Org)
}

// Stock returns the pump's current stock projection.
func (s *Service) Stock(ctx context.Context, org, secret, pumpID string) (models.StockProjection, error) {
	profile, err := s.registry.Lookup(ctx, org, secret)
	if err != nil {
		return models.StockProjection{}, err
	}
	return s.ledger.Projection(ctx, pumpID, profile.Org)
}

// ResetAll removes every tenant and all ledger state. It requires the
// configured admin token and is disabled when none is configured.
func (s *Service) ResetAll(ctx context.Context, adminToken string) error {
	if s.opts.AdminToken == "" || subtle.ConstantTimeCompare([]byte(adminToken), []byte(s.opts.AdminToken)) != 1 {
		return fmt.Errorf("admin reset: %w", errs.ErrNotFound)
	}
	return s.registry.ResetAll(ctx)
}
