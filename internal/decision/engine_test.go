package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andygrunwald/fuel-advisor/internal/errs"
	"github.com/andygrunwald/fuel-advisor/internal/models"
)

var today = time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

func series(prices ...float64) []models.ForecastPoint {
	out := make([]models.ForecastPoint, len(prices))
	for i, p := range prices {
		out[i] = models.ForecastPoint{Date: today.AddDate(0, 0, i), Price: p}
	}
	return out
}

func TestDecide(t *testing.T) {
	increasing := series(1.70, 1.75, 1.80, 1.85, 1.90, 1.95, 2.00)

	tests := []struct {
		name        string
		stock       float64
		avg         float64
		margin      *float64
		forecast    []models.ForecastPoint
		want        models.Action
		wantTrigger *int
		wantCheaper *int
	}{
		{
			name:     "wait on surplus",
			stock:    10000,
			avg:      100,
			forecast: increasing,
			want:     models.ActionWait,
		},
		{
			name:        "buy now, no better price ahead",
			stock:       1200,
			avg:         200,
			forecast:    increasing,
			want:        models.ActionBuyNow,
			wantTrigger: intPtr(1),
		},
		{
			name:        "buy now overridden to wait",
			stock:       1200,
			avg:         200,
			forecast:    series(1.70, 1.80, 1.85, 1.60, 1.90, 1.95, 2.00),
			want:        models.ActionWait,
			wantTrigger: intPtr(1),
			wantCheaper: intPtr(3),
		},
		{
			name:     "no crossing within horizon",
			stock:    1300,
			avg:      200,
			margin:   floatPtr(-200),
			forecast: increasing,
			want:     models.ActionWait,
		},
		{
			name:        "equal later price does not override",
			stock:       1200,
			avg:         200,
			forecast:    series(1.70, 1.80, 1.80, 1.80, 1.80, 1.80, 1.80),
			want:        models.ActionBuyNow,
			wantTrigger: intPtr(1),
		},
		{
			name:        "negative stock without consumption triggers immediately",
			stock:       -5,
			avg:         0,
			forecast:    increasing,
			want:        models.ActionBuyNow,
			wantTrigger: intPtr(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			margin := DefaultSafetyMargin
			if tt.margin != nil {
				margin = *tt.margin
			}
			d, err := Decide(Input{
				PumpID:                  "7",
				Today:                   today,
				Horizon:                 DefaultHorizon,
				Forecast:                tt.forecast,
				CurrentStock:            tt.stock,
				AverageDailyConsumption: tt.avg,
				SafetyMargin:            margin,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Action)
			assert.Equal(t, "7", d.PumpID)
			assert.Equal(t, tt.wantTrigger, d.TriggerDay)
			assert.Equal(t, tt.wantCheaper, d.CheaperDay)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestDecideOverrideDetails(t *testing.T) {
	d, err := Decide(Input{
		Today:                   today,
		Horizon:                 7,
		Forecast:                series(1.70, 1.80, 1.85, 1.60, 1.50, 1.95, 2.00),
		CurrentStock:            1200,
		AverageDailyConsumption: 200,
		SafetyMargin:            1000,
	})
	require.NoError(t, err)

	require.NotNil(t, d.TriggerPrice)
	assert.Equal(t, 1.80, *d.TriggerPrice)
	assert.Equal(t, today.AddDate(0, 0, 1), *d.TriggerDate)
	// The inner scan stops at the first cheaper day.
	require.NotNil(t, d.CheaperPrice)
	assert.Equal(t, 1.60, *d.CheaperPrice)
}

func TestDecideMissingForecastDate(t *testing.T) {
	forecast := series(1.70, 1.75, 1.80)
	forecast = append(forecast[:1], forecast[2:]...) // drop day 1

	_, err := Decide(Input{
		Today:                   today,
		Horizon:                 3,
		Forecast:                forecast,
		CurrentStock:            1200,
		AverageDailyConsumption: 200,
		SafetyMargin:            1000,
	})
	assert.ErrorIs(t, err, errs.ErrNoForecastForDate)
}

func TestDecideMissingLaterDateIsFatal(t *testing.T) {
	_, err := Decide(Input{
		Today:                   today,
		Horizon:                 4,
		Forecast:                series(1.70, 1.80, 1.90),
		CurrentStock:            1200,
		AverageDailyConsumption: 200,
		SafetyMargin:            1000,
	})
	assert.ErrorIs(t, err, errs.ErrNoForecastForDate)
}

func TestDecideSurplusNeedsNoForecast(t *testing.T) {
	d, err := Decide(Input{
		Today:                   today,
		Horizon:                 7,
		CurrentStock:            10000,
		AverageDailyConsumption: 100,
		SafetyMargin:            1000,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionWait, d.Action)
}

func TestDecideIsDeterministic(t *testing.T) {
	in := Input{
		Today:                   today,
		Horizon:                 7,
		Forecast:                series(1.70, 1.80, 1.85, 1.60, 1.90, 1.95, 2.00),
		CurrentStock:            1200,
		AverageDailyConsumption: 200,
		SafetyMargin:            1000,
	}
	first, err := Decide(in)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Decide(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDecideRejectsZeroHorizon(t *testing.T) {
	_, err := Decide(Input{Today: today, Horizon: 0})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func intPtr(i int) *int { return &i }

func floatPtr(f float64) *float64 { return &f }
