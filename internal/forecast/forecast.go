// Package forecast produces short-horizon price forecasts from a tenant's
// price history.
package forecast

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/andygrunwald/fuel-advisor/internal/errs"
	"github.com/andygrunwald/fuel-advisor/internal/models"
)

// Provider fits a model on history and predicts the days following its last point.
type Provider interface {
	// Forecast returns one point per day for historyEnd+1 ... historyEnd+horizon.
	Forecast(ctx context.Context, history []models.PricePoint, horizon int) ([]models.ForecastPoint, error)
}

// LinearTrend fits y = alpha + beta*day over a trailing window and adds the
// mean residual of each weekday.
type LinearTrend struct {
	// WindowDays limits the fit to the most recent days of history.
	WindowDays int
	// Weekly enables the weekday seasonal adjustment.
	Weekly bool
}

// NewLinearTrend creates a LinearTrend with weekly seasonality enabled.
func NewLinearTrend(windowDays int) *LinearTrend {
	return &LinearTrend{WindowDays: windowDays, Weekly: true}
}

// Forecast implements Provider.
func (m *LinearTrend) Forecast(ctx context.Context, history []models.PricePoint, horizon int) ([]models.ForecastPoint, error) {
	if horizon < 1 {
		return nil, errs.Validation("horizon must be at least 1, got %d", horizon)
	}

	points := window(history, m.WindowDays)
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 price points to forecast, have %d", errs.ErrNoData, len(points))
	}

	origin := models.Day(points[0].Date)
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = float64(models.DaysBetween(origin, p.Date))
		ys[i] = p.Value
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)

	var seasonal [7]float64
	if m.Weekly {
		seasonal = weekdayResiduals(points, xs, ys, alpha, beta)
	}

	last := models.Day(points[len(points)-1].Date)
	out := make([]models.ForecastPoint, 0, horizon)
	for h := 1; h <= horizon; h++ {
		date := last.AddDate(0, 0, h)
		x := float64(models.DaysBetween(origin, date))
		out = append(out, models.ForecastPoint{
			Date:  date,
			Price: alpha + beta*x + seasonal[date.Weekday()],
		})
	}
	return out, nil
}

// window returns the points of the last windowDays calendar days, sorted by date,
// keeping the last value for duplicate dates.
func window(history []models.PricePoint, windowDays int) []models.PricePoint {
	byDay := make(map[time.Time]float64, len(history))
	for _, p := range history {
		byDay[models.Day(p.Date)] = p.Value
	}

	points := make([]models.PricePoint, 0, len(byDay))
	for d, v := range byDay {
		points = append(points, models.PricePoint{Date: d, Value: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	if windowDays > 0 && len(points) > 0 {
		cutoff := points[len(points)-1].Date.AddDate(0, 0, -(windowDays - 1))
		start := sort.Search(len(points), func(i int) bool { return !points[i].Date.Before(cutoff) })
		points = points[start:]
	}
	return points
}

func weekdayResiduals(points []models.PricePoint, xs, ys []float64, alpha, beta float64) [7]float64 {
	var buckets [7][]float64
	for i, p := range points {
		wd := p.Date.Weekday()
		buckets[wd] = append(buckets[wd], ys[i]-(alpha+beta*xs[i]))
	}

	var out [7]float64
	for wd, residuals := range buckets {
		if len(residuals) > 0 {
			out[wd] = stat.Mean(residuals, nil)
		}
	}
	return out
}
