// Package pricestore defines the price history store used by the sync
// coordinator and the prediction path.
package pricestore

import (
	"context"
	"time"

	"github.com/andygrunwald/fuel-advisor/internal/models"
)

// Store opens sessions against a tenant's price stream.
type Store interface {
	// Open establishes a session scoped to one stream. The caller must Close it.
	Open(ctx context.Context, stream models.Stream) (Session, error)
}

// Session is a connection to one tenant price stream.
type Session interface {
	// BucketExists reports whether the stream's bucket exists.
	BucketExists(ctx context.Context) (bool, error)
	// CreateBucket creates the stream's bucket. Creating an existing bucket succeeds.
	CreateBucket(ctx context.Context) error
	// LatestDate returns the most recent stored date in [since, before).
	LatestDate(ctx context.Context, since, before time.Time) (time.Time, bool, error)
	// Upsert writes points, replacing any existing value for the same date.
	Upsert(ctx context.Context, points []models.PricePoint) (int, error)
	// Series returns the stored points from the given date onwards, ascending by date.
	Series(ctx context.Context, from time.Time) ([]models.PricePoint, error)
	Close() error
}
