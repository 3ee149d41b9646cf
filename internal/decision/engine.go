// Package decision implements the replenishment decision engine.
//
// The engine is a greedy, single-trigger heuristic and not an optimal
// purchase-timing search. It finds the earliest day within the horizon on which
// projected stock drops below the safety margin and recommends buying now,
// unless a later day in the horizon has a strictly lower forecast price. It
// does not consider partial purchases or multiple trigger points.
package decision

import (
	"fmt"
	"time"

	"github.com/andygrunwald/fuel-advisor/internal/errs"
	"github.com/andygrunwald/fuel-advisor/internal/models"
)

const (
	// DefaultHorizon is the default look-ahead window in days.
	DefaultHorizon = 7
	// DefaultSafetyMargin is the minimum acceptable stock level.
	DefaultSafetyMargin = 1000.0
)

// Input holds everything the engine needs for one decision.
type Input struct {
	PumpID string
	// Today is the calendar date of day offset 0.
	Today                   time.Time
	Horizon                 int
	Forecast                []models.ForecastPoint
	CurrentStock            float64
	AverageDailyConsumption float64
	SafetyMargin            float64
}

// Decide returns the BuyNow or Wait recommendation for in.
func Decide(in Input) (models.Decision, error) {
	if in.Horizon < 1 {
		return models.Decision{}, errs.Validation("horizon must be at least 1, got %d", in.Horizon)
	}

	d := models.Decision{PumpID: in.PumpID, Action: models.ActionWait}

	projected := in.AverageDailyConsumption * float64(in.Horizon)
	if in.CurrentStock >= projected {
		d.Reason = fmt.Sprintf("stock %.2f covers projected consumption %.2f over %d days", in.CurrentStock, projected, in.Horizon)
		return d, nil
	}

	prices := index(in.Forecast)
	today := models.Day(in.Today)

	for i := 0; i < in.Horizon; i++ {
		futureStock := in.CurrentStock - in.AverageDailyConsumption*float64(i+1)
		ref, err := priceAt(prices, today, i)
		if err != nil {
			return models.Decision{}, err
		}
		if futureStock >= in.SafetyMargin {
			continue
		}

		day, date, price := i, today.AddDate(0, 0, i), ref
		d.Action = models.ActionBuyNow
		d.TriggerDay = &day
		d.TriggerDate = &date
		d.TriggerPrice = &price
		d.Reason = fmt.Sprintf("stock falls to %.2f below safety margin %.2f on day %d", futureStock, in.SafetyMargin, i)

		for j := i + 1; j < in.Horizon; j++ {
			later, err := priceAt(prices, today, j)
			if err != nil {
				return models.Decision{}, err
			}
			if later < ref {
				cheaperDay, cheaperPrice := j, later
				d.Action = models.ActionWait
				d.CheaperDay = &cheaperDay
				d.CheaperPrice = &cheaperPrice
				d.Reason = fmt.Sprintf("forecast price %.4f on day %d is below %.4f on trigger day %d", later, j, ref, i)
				break
			}
		}
		return d, nil
	}

	d.Reason = fmt.Sprintf("stock stays above safety margin %.2f within %d days", in.SafetyMargin, in.Horizon)
	return d, nil
}

func index(forecast []models.ForecastPoint) map[time.Time]float64 {
	m := make(map[time.Time]float64, len(forecast))
	for _, p := range forecast {
		m[models.Day(p.Date)] = p.Price
	}
	return m
}

func priceAt(prices map[time.Time]float64, today time.Time, offset int) (float64, error) {
	date := today.AddDate(0, 0, offset)
	p, ok := prices[date]
	if !ok {
		return 0, fmt.Errorf("%w: %s", errs.ErrNoForecastForDate, date.Format(models.DateLayout))
	}
	return p, nil
}
