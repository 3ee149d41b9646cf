// Package ledger implements the append-only consumption ledger and the stock
// projection derived from it.
package ledger

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/andygrunwald/fuel-advisor/internal/errs"
	"github.com/andygrunwald/fuel-advisor/internal/models"
)

// Store is the persistence required by the ledger.
type Store interface {
	InsertEvent(ctx context.Context, e models.LedgerEvent) error
	EventsFor(ctx context.Context, org, pumpID string) ([]models.LedgerEvent, error)
}

// Recorder receives a notification for every appended event.
type Recorder interface {
	RecordLedgerEvent(kind string)
}

// Ledger records usage and restock events per pump and organization.
type Ledger struct {
	store    Store
	recorder Recorder
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates a new Ledger.
func New(store Store, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// SetRecorder wires a metrics recorder into the ledger.
func (l *Ledger) SetRecorder(r Recorder) {
	l.recorder = r
}

// RecordUsage appends a usage event stamped with the current time.
func (l *Ledger) RecordUsage(ctx context.Context, pumpID string, amount float64, org string) (models.LedgerEvent, error) {
	return l.append(ctx, models.EventUsage, pumpID, amount, org)
}

// RecordRestock appends a restock event stamped with the current time.
func (l *Ledger) RecordRestock(ctx context.Context, pumpID string, amount float64, org string) (models.LedgerEvent, error) {
	return l.append(ctx, models.EventRestock, pumpID, amount, org)
}

func (l *Ledger) append(ctx context.Context, kind models.EventKind, pumpID string, amount float64, org string) (models.LedgerEvent, error) {
	if err := validate(pumpID, org); err != nil {
		return models.LedgerEvent{}, err
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return models.LedgerEvent{}, errs.Validation("amount must be a positive finite number, got %v", amount)
	}

	e := models.LedgerEvent{
		ID:         uuid.NewString(),
		Org:        org,
		PumpID:     pumpID,
		Kind:       kind,
		Amount:     amount,
		OccurredAt: l.now().UTC(),
	}
	if err := l.store.InsertEvent(ctx, e); err != nil {
		return models.LedgerEvent{}, err
	}
	if l.recorder != nil {
		l.recorder.RecordLedgerEvent(string(kind))
	}

	l.logger.Info().
		Str("org", org).
		Str("pump", pumpID).
		Str("kind", string(kind)).
		Float64("amount", amount).
		Msg("ledger event recorded")

	return e, nil
}

// CurrentStock returns the sum of restocks minus the sum of usage. The result
// may be negative when more usage than restock has been reported.
func (l *Ledger) CurrentStock(ctx context.Context, pumpID, org string) (float64, error) {
	p, err := l.Projection(ctx, pumpID, org)
	if err != nil {
		return 0, err
	}
	return p.CurrentStock, nil
}

// AverageDailyConsumption returns the mean of per-day usage totals over the
// days that have at least one usage event.
func (l *Ledger) AverageDailyConsumption(ctx context.Context, pumpID, org string) (float64, error) {
	p, err := l.Projection(ctx, pumpID, org)
	if err != nil {
		return 0, err
	}
	return p.AverageDailyConsumption, nil
}

// Projection loads the pump's events and derives its stock projection.
func (l *Ledger) Projection(ctx context.Context, pumpID, org string) (models.StockProjection, error) {
	if err := validate(pumpID, org); err != nil {
		return models.StockProjection{}, err
	}
	events, err := l.store.EventsFor(ctx, org, pumpID)
	if err != nil {
		return models.StockProjection{}, fmt.Errorf("loading ledger events: %w", err)
	}
	p := Project(events)
	p.PumpID = pumpID
	return p, nil
}

// Project derives current stock and average daily consumption from events.
// Usage is bucketed by UTC calendar day; days without usage are excluded from
// the average rather than counted as zero-consumption days.
func Project(events []models.LedgerEvent) models.StockProjection {
	var restocked, used float64
	perDay := make(map[time.Time]float64)

	for _, e := range events {
		switch e.Kind {
		case models.EventRestock:
			restocked += e.Amount
		case models.EventUsage:
			used += e.Amount
			perDay[models.Day(e.OccurredAt)] += e.Amount
		}
	}

	p := models.StockProjection{
		CurrentStock: restocked - used,
		UsageDays:    len(perDay),
	}
	if len(perDay) > 0 {
		var total float64
		for _, v := range perDay {
			total += v
		}
		p.AverageDailyConsumption = total / float64(len(perDay))
	}
	return p
}

func validate(pumpID, org string) error {
	if strings.TrimSpace(pumpID) == "" {
		return errs.Validation("pump id is required")
	}
	if strings.TrimSpace(org) == "" {
		return errs.Validation("org is required")
	}
	return nil
}
