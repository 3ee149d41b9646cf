// Package api provides the interface for external price feeds.
package api

import (
	"context"
	"time"

	"github.com/andygrunwald/fuel-advisor/internal/models"
)

// Feed defines the interface for external price feeds.
type Feed interface {
	// Name returns the feed identifier.
	Name() string

	// FetchRange fetches daily records for the inclusive date range [from, to],
	// ordered by date ascending.
	FetchRange(ctx context.Context, from, to time.Time) ([]models.FeedRecord, error)

	// Status returns a snapshot of the feed client's request history.
	Status() models.FeedStatus
}
