package pricefeed

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/andygrunwald/fuel-advisor/internal/errs"
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	time.RFC3339,
}

// ParsePrice converts a localized price such as "1,749 €/L" into a number.
// Trailing unit characters are stripped. When the text carries a decimal
// comma, dots are treated as thousands separators.
func ParsePrice(raw string) (float64, error) {
	s := strings.TrimRightFunc(strings.TrimSpace(raw), func(r rune) bool {
		return !unicode.IsDigit(r)
	})
	if s == "" {
		return 0, errs.Malformed("price %q has no digits", raw)
	}

	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errs.Malformed("price %q: %v", raw, err)
	}
	f, _ := d.Float64()
	return f, nil
}

// ParseDate parses a feed date into its UTC calendar day.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, errs.Malformed("date %q", raw)
}
