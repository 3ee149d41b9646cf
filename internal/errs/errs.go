// Package errs defines the error taxonomy shared by all fuel advisor components.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks missing or malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned for unknown tenants and for secret mismatches alike.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a uniqueness violation in the storage layer.
	ErrConflict = errors.New("conflict")
	// ErrUpstream marks an unreachable or misbehaving external price feed.
	ErrUpstream = errors.New("upstream error")
	// ErrMalformedUpstream marks a feed payload that could not be parsed.
	ErrMalformedUpstream = fmt.Errorf("malformed upstream payload: %w", ErrUpstream)
	// ErrNoData is returned when a tenant's price history is empty.
	ErrNoData = errors.New("no data")
	// ErrNoForecastForDate is returned when the forecast lacks a required calendar date.
	ErrNoForecastForDate = errors.New("no forecast for date")
	// ErrInternal marks unexpected store or engine failures.
	ErrInternal = errors.New("internal error")
)

// Validation returns an ErrValidation carrying a user-facing message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Malformed returns an ErrMalformedUpstream carrying details about the bad record.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedUpstream, fmt.Sprintf(format, args...))
}

// Upstream wraps err as an ErrUpstream.
func Upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
}

// Code returns a stable machine-readable code for err.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrMalformedUpstream):
		return "malformed_upstream"
	case errors.Is(err, ErrUpstream):
		return "upstream"
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, ErrNoForecastForDate):
		return "no_forecast_for_date"
	default:
		return "internal"
	}
}
