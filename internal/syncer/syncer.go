// Package syncer keeps each tenant's price history covered up to yesterday by
// backfilling missing days from the external price feed.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/andygrunwald/fuel-advisor/internal/api"
	"github.com/andygrunwald/fuel-advisor/internal/lock"
	"github.com/andygrunwald/fuel-advisor/internal/models"
	"github.com/andygrunwald/fuel-advisor/internal/pricestore"
)

const lockPollInterval = 250 * time.Millisecond

// Recorder receives the outcome of every sync run.
type Recorder interface {
	RecordSync(org, result string, upserted int, at time.Time)
}

// Options configures the coordinator.
type Options struct {
	// Epoch is the first day backfilled for a tenant without history.
	Epoch time.Time
	// Lookback bounds the search for the watermark. Gaps older than this are not detected.
	Lookback time.Duration
	// Freshness is the maximum age of the latest stored day accepted by EnsureFresh.
	Freshness time.Duration
	// LockTTL is the expiry of the per-tenant sync lock.
	LockTTL time.Duration
}

// Coordinator backfills tenant price history from the feed.
type Coordinator struct {
	store    pricestore.Store
	feed     api.Feed
	locker   lock.Locker
	recorder Recorder
	opts     Options
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates a new Coordinator. Without a locker, concurrent syncs of one
// tenant both hit the feed; the idempotent upsert keeps the result correct.
func New(store pricestore.Store, feed api.Feed, opts Options, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		feed:   feed,
		locker: lock.Noop{},
		opts:   opts,
		now:    time.Now,
		logger: logger.With().Str("component", "syncer").Logger(),
	}
}

// SetLocker wires a lock used to suppress duplicate concurrent feed calls.
func (c *Coordinator) SetLocker(l lock.Locker) {
	c.locker = l
}

// SetRecorder wires a metrics recorder into the coordinator.
func (c *Coordinator) SetRecorder(r Recorder) {
	c.recorder = r
}

// Sync fetches [watermark, today) from the feed and upserts it into the
// tenant's price history.
func (c *Coordinator) Sync(ctx context.Context, profile models.TenantProfile) (models.SyncResult, error) {
	return c.run(ctx, profile, false)
}

// EnsureFresh syncs only when the latest stored day is older than the
// configured freshness.
func (c *Coordinator) EnsureFresh(ctx context.Context, profile models.TenantProfile) (models.SyncResult, error) {
	return c.run(ctx, profile, true)
}

func (c *Coordinator) run(ctx context.Context, profile models.TenantProfile, onlyIfStale bool) (models.SyncResult, error) {
	start := c.now()
	logger := c.logger.With().Str("org", profile.Org).Logger()

	// Waiting callers must not hold a store session while blocked on the lock.
	release := c.lock(ctx, profile.Org, logger)
	defer release()

	sess, err := c.store.Open(ctx, profile.Stream())
	if err != nil {
		c.record(profile.Org, "error", 0)
		return models.SyncResult{}, fmt.Errorf("opening price store: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close price store session")
		}
	}()

	result, err := c.sync(ctx, sess, profile.Org, onlyIfStale, logger)
	result.Org = profile.Org
	result.Duration = c.now().Sub(start).String()
	if err != nil {
		c.record(profile.Org, "error", 0)
		logger.Error().Err(err).Msg("sync failed")
		return result, err
	}

	outcome := "ok"
	if result.Skipped {
		outcome = "skipped"
	}
	c.record(profile.Org, outcome, result.Upserted)

	logger.Info().
		Bool("skipped", result.Skipped).
		Int("fetched", result.Fetched).
		Int("upserted", result.Upserted).
		Str("duration", result.Duration).
		Msg("sync completed")

	return result, nil
}

func (c *Coordinator) sync(ctx context.Context, sess pricestore.Session, org string, onlyIfStale bool, logger zerolog.Logger) (models.SyncResult, error) {
	today := models.Day(c.now())

	watermark, found, err := c.watermark(ctx, sess, today)
	if err != nil {
		return models.SyncResult{}, err
	}
	result := models.SyncResult{From: watermark, To: today, Watermark: watermark}

	if onlyIfStale && found && !watermark.Before(today.Add(-c.opts.Freshness)) {
		logger.Debug().Str("watermark", watermark.Format(models.DateLayout)).Msg("price history is fresh")
		result.Skipped = true
		return result, nil
	}
	if !watermark.Before(today) {
		logger.Debug().Str("watermark", watermark.Format(models.DateLayout)).Msg("nothing to fetch")
		result.Skipped = true
		return result, nil
	}

	if err := c.ensureBucket(ctx, sess, logger); err != nil {
		return result, err
	}

	records, err := c.feed.FetchRange(ctx, watermark, today.AddDate(0, 0, -1))
	if err != nil {
		return result, fmt.Errorf("fetching prices for %s: %w", org, err)
	}
	result.Fetched = len(records)

	points := toPoints(records)
	n, err := sess.Upsert(ctx, points)
	if err != nil {
		return result, fmt.Errorf("storing prices for %s: %w", org, err)
	}
	result.Upserted = n
	return result, nil
}

// watermark returns the most recent stored day before today within the
// look-back window, or the epoch when there is none. Prices stored for today
// or later are not feed data and never advance the watermark.
func (c *Coordinator) watermark(ctx context.Context, sess pricestore.Session, today time.Time) (time.Time, bool, error) {
	since := today.Add(-c.opts.Lookback)
	if since.Before(c.opts.Epoch) {
		since = c.opts.Epoch
	}

	latest, ok, err := sess.LatestDate(ctx, since, today)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading watermark: %w", err)
	}
	if !ok {
		return models.Day(c.opts.Epoch), false, nil
	}
	return models.Day(latest), true, nil
}

func (c *Coordinator) ensureBucket(ctx context.Context, sess pricestore.Session, logger zerolog.Logger) error {
	exists, err := sess.BucketExists(ctx)
	if err != nil {
		return fmt.Errorf("checking bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := sess.CreateBucket(ctx); err != nil {
		return fmt.Errorf("creating bucket: %w", err)
	}
	logger.Info().Msg("created price bucket")
	return nil
}

// lock serializes syncs of one org when a real locker is configured. Lock
// failures are logged and the sync proceeds unlocked.
func (c *Coordinator) lock(ctx context.Context, org string, logger zerolog.Logger) func() {
	name := "sync:" + org

	waitCtx, cancel := context.WithTimeout(ctx, c.lockTTL())
	defer cancel()

	token, err := lock.Wait(waitCtx, c.locker, name, c.lockTTL(), lockPollInterval)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			logger.Warn().Msg("timed out waiting for sync lock, proceeding unlocked")
		} else {
			logger.Warn().Err(err).Msg("sync lock unavailable, proceeding unlocked")
		}
		return func() {}
	}

	return func() {
		// Release even when the request context is already cancelled.
		if err := c.locker.Release(context.WithoutCancel(ctx), name, token); err != nil {
			logger.Warn().Err(err).Msg("failed to release sync lock")
		}
	}
}

func (c *Coordinator) lockTTL() time.Duration {
	if c.opts.LockTTL > 0 {
		return c.opts.LockTTL
	}
	return 2 * time.Minute
}

func (c *Coordinator) record(org, result string, upserted int) {
	if c.recorder != nil {
		c.recorder.RecordSync(org, result, upserted, c.now())
	}
}

// toPoints collapses duplicate dates to the last record and sorts by date.
func toPoints(records []models.FeedRecord) []models.PricePoint {
	byDay := make(map[time.Time]float64, len(records))
	for _, r := range records {
		byDay[models.Day(r.Date)] = r.Price
	}

	points := make([]models.PricePoint, 0, len(byDay))
	for d, v := range byDay {
		points = append(points, models.PricePoint{Date: d, Value: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points
}
