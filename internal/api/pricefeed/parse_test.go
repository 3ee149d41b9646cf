package pricefeed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andygrunwald/fuel-advisor/internal/errs"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{raw: "1,749 €/L", want: 1.749},
		{raw: "5,89", want: 5.89},
		{raw: "  6,05 zł ", want: 6.05},
		{raw: "1.234,56 EUR", want: 1234.56},
		{raw: "1.749", want: 1.749},
		{raw: "2", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParsePrice(tt.raw)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParsePriceMalformed(t *testing.T) {
	for _, raw := range []string{"abc", "", "€/L", "1,2,3", "null"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParsePrice(raw)
			assert.ErrorIs(t, err, errs.ErrMalformedUpstream)
			assert.ErrorIs(t, err, errs.ErrUpstream)
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2024-03-07", "07/03/2024", "2024-03-07T15:04:05Z"} {
		got, err := ParseDate(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseDate("March 7")
	assert.ErrorIs(t, err, errs.ErrMalformedUpstream)
}
