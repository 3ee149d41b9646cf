package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andygrunwald/fuel-advisor/internal/database"
	"github.com/andygrunwald/fuel-advisor/internal/errs"
	"github.com/andygrunwald/fuel-advisor/internal/models"
	"github.com/andygrunwald/fuel-advisor/internal/pricestore"
	"github.com/andygrunwald/fuel-advisor/internal/pricestore/sqlstore"
)

type fetchCall struct {
	from, to time.Time
}

// fakeFeed serves one record per day of prices within the requested range.
type fakeFeed struct {
	mu     sync.Mutex
	prices map[time.Time]float64
	extra  []models.FeedRecord
	err    error
	calls  []fetchCall
}

func (f *fakeFeed) Name() string { return "fake" }

func (f *fakeFeed) Status() models.FeedStatus { return models.FeedStatus{} }

func (f *fakeFeed) FetchRange(_ context.Context, from, to time.Time) ([]models.FeedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{from: from, to: to})
	if f.err != nil {
		return nil, f.err
	}

	var out []models.FeedRecord
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if v, ok := f.prices[d]; ok {
			out = append(out, models.FeedRecord{Date: d, Price: v})
		}
	}
	return append(out, f.extra...), nil
}

func dailyPrices(from time.Time, days int) map[time.Time]float64 {
	out := make(map[time.Time]float64, days)
	for i := 0; i < days; i++ {
		out[from.AddDate(0, 0, i)] = 1.5 + float64(i)/100
	}
	return out
}

type syncRecorder struct {
	results []string
}

func (r *syncRecorder) RecordSync(_ string, result string, _ int, _ time.Time) {
	r.results = append(r.results, result)
}

var (
	epoch   = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	profile = models.TenantProfile{
		Org:         "orgA",
		URL:         "http://influx:8086",
		Bucket:      "Gas-Prices",
		Measurement: "Prices",
		Field:       "y",
	}
)

type fixture struct {
	coord *Coordinator
	store pricestore.Store
	feed  *fakeFeed
	rec   *syncRecorder
	now   time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "sync.db") + "?_busy_timeout=5000"
	db, err := database.New("sqlite3", dsn, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		store: sqlstore.New(db, zerolog.Nop()),
		feed:  &fakeFeed{prices: dailyPrices(epoch, 3000)},
		rec:   &syncRecorder{},
		now:   now,
	}
	f.coord = New(f.store, f.feed, Options{
		Epoch:     epoch,
		Lookback:  365 * 24 * time.Hour,
		Freshness: 24 * time.Hour,
		LockTTL:   time.Second,
	}, zerolog.Nop())
	f.coord.now = func() time.Time { return f.now }
	f.coord.SetRecorder(f.rec)
	return f
}

func (f *fixture) series(t *testing.T) []models.PricePoint {
	t.Helper()
	sess, err := f.store.Open(context.Background(), profile.Stream())
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()
	points, err := sess.Series(context.Background(), epoch)
	require.NoError(t, err)
	return points
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSyncBackfillsFromEpoch(t *testing.T) {
	f := newFixture(t, day(2017, 1, 11).Add(10*time.Hour))

	result, err := f.coord.Sync(context.Background(), profile)
	require.NoError(t, err)

	assert.Equal(t, "orgA", result.Org)
	assert.False(t, result.Skipped)
	assert.Equal(t, 10, result.Fetched)
	assert.Equal(t, 10, result.Upserted)
	assert.Equal(t, epoch, result.From)
	assert.Equal(t, day(2017, 1, 11), result.To)

	require.Len(t, f.feed.calls, 1)
	assert.Equal(t, fetchCall{from: epoch, to: day(2017, 1, 10)}, f.feed.calls[0])

	points := f.series(t)
	require.Len(t, points, 10)
	for i, p := range points {
		assert.Equal(t, epoch.AddDate(0, 0, i), p.Date)
	}
	assert.Equal(t, []string{"ok"}, f.rec.results)
}

func TestSyncIsIdempotent(t *testing.T) {
	f := newFixture(t, day(2017, 1, 11))

	_, err := f.coord.Sync(context.Background(), profile)
	require.NoError(t, err)
	first := f.series(t)

	result, err := f.coord.Sync(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, fetchCall{from: day(2017, 1, 10), to: day(2017, 1, 10)}, f.feed.calls[1])
	assert.Equal(t, 1, result.Upserted)

	assert.Equal(t, first, f.series(t))
}

func TestSyncSkipsWhenEpochIsToday(t *testing.T) {
	f := newFixture(t, epoch.Add(8*time.Hour))

	result, err := f.coord.Sync(context.Background(), profile)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, f.feed.calls)
}

func TestPriceStoredForTodayDoesNotHideGap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, day(2017, 1, 11))

	_, err := f.coord.Sync(ctx, profile)
	require.NoError(t, err)
	require.Len(t, f.feed.calls, 1)

	f.now = day(2017, 1, 21)
	sess, err := f.store.Open(ctx, profile.Stream())
	require.NoError(t, err)
	_, err = sess.Upsert(ctx, []models.PricePoint{{Date: day(2017, 1, 21), Value: 1.9}})
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	result, err := f.coord.EnsureFresh(ctx, profile)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, day(2017, 1, 10), result.Watermark)
	require.Len(t, f.feed.calls, 2)
	assert.Equal(t, fetchCall{from: day(2017, 1, 10), to: day(2017, 1, 20)}, f.feed.calls[1])

	points := f.series(t)
	require.Len(t, points, 21, "every day from the epoch up to today is stored")
	for i, p := range points {
		assert.Equal(t, epoch.AddDate(0, 0, i), p.Date)
	}
	assert.InDelta(t, 1.9, points[20].Value, 1e-9, "the stored price for today is kept")

	result, err = f.coord.Sync(ctx, profile)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, day(2017, 1, 20), result.Watermark)
}

func TestEnsureFresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, day(2017, 1, 11))

	_, err := f.coord.EnsureFresh(ctx, profile)
	require.NoError(t, err)
	require.Len(t, f.feed.calls, 1)

	result, err := f.coord.EnsureFresh(ctx, profile)
	require.NoError(t, err)
	assert.True(t, result.Skipped, "history up to yesterday is fresh")
	assert.Len(t, f.feed.calls, 1)

	f.now = day(2017, 1, 14)
	result, err = f.coord.EnsureFresh(ctx, profile)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	require.Len(t, f.feed.calls, 2)
	assert.Equal(t, fetchCall{from: day(2017, 1, 10), to: day(2017, 1, 13)}, f.feed.calls[1])
	assert.Len(t, f.series(t), 13)
}

func TestSyncMalformedFeedWritesNothing(t *testing.T) {
	f := newFixture(t, day(2017, 1, 11))
	f.feed.err = errs.Malformed("price %q", "n/a")

	_, err := f.coord.Sync(context.Background(), profile)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrMalformedUpstream)
	assert.Empty(t, f.series(t))
	assert.Equal(t, []string{"error"}, f.rec.results)
}

func TestSyncCollapsesDuplicateDates(t *testing.T) {
	f := newFixture(t, day(2017, 1, 4))
	f.feed.extra = []models.FeedRecord{{Date: day(2017, 1, 2), Price: 9.99}}

	result, err := f.coord.Sync(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Fetched)
	assert.Equal(t, 3, result.Upserted)

	points := f.series(t)
	require.Len(t, points, 3)
	assert.InDelta(t, 9.99, points[1].Value, 1e-9)
}

func TestSyncIgnoresHistoryOlderThanLookback(t *testing.T) {
	f := newFixture(t, day(2019, 6, 1))

	sess, err := f.store.Open(context.Background(), profile.Stream())
	require.NoError(t, err)
	_, err = sess.Upsert(context.Background(), []models.PricePoint{{Date: day(2017, 3, 1), Value: 1.2}})
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	_, err = f.coord.Sync(context.Background(), profile)
	require.NoError(t, err)
	require.Len(t, f.feed.calls, 1)
	assert.Equal(t, epoch, f.feed.calls[0].from)
}

type recordingLocker struct {
	mu       sync.Mutex
	acquired []string
	released []string
	err      error
}

func (l *recordingLocker) Acquire(_ context.Context, name string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", false, l.err
	}
	l.acquired = append(l.acquired, name)
	return "token", true, nil
}

func (l *recordingLocker) Release(_ context.Context, name, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = append(l.released, name)
	return nil
}

func TestSyncHoldsLockPerOrg(t *testing.T) {
	f := newFixture(t, day(2017, 1, 5))
	locker := &recordingLocker{}
	f.coord.SetLocker(locker)

	_, err := f.coord.Sync(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, []string{"sync:orgA"}, locker.acquired)
	assert.Equal(t, []string{"sync:orgA"}, locker.released)
}

func TestSyncProceedsWhenLockUnavailable(t *testing.T) {
	f := newFixture(t, day(2017, 1, 5))
	f.coord.SetLocker(&recordingLocker{err: errors.New("redis down")})

	result, err := f.coord.Sync(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Upserted)
}

func TestToPoints(t *testing.T) {
	points := toPoints([]models.FeedRecord{
		{Date: day(2024, 1, 3), Price: 3},
		{Date: day(2024, 1, 1), Price: 1},
		{Date: day(2024, 1, 3).Add(6 * time.Hour), Price: 4},
	})
	assert.Equal(t, []models.PricePoint{
		{Date: day(2024, 1, 1), Value: 1},
		{Date: day(2024, 1, 3), Value: 4},
	}, points)
}

// orderedStore records when a session is opened into a shared event log.
type orderedStore struct {
	pricestore.Store
	events *[]string
}

func (s orderedStore) Open(ctx context.Context, stream models.Stream) (pricestore.Session, error) {
	*s.events = append(*s.events, "open")
	return s.Store.Open(ctx, stream)
}

type orderedLocker struct {
	events *[]string
}

func (l orderedLocker) Acquire(context.Context, string, time.Duration) (string, bool, error) {
	*l.events = append(*l.events, "lock")
	return "token", true, nil
}

func (l orderedLocker) Release(context.Context, string, string) error {
	*l.events = append(*l.events, "unlock")
	return nil
}

func TestSyncTakesLockBeforeOpeningStore(t *testing.T) {
	f := newFixture(t, day(2017, 1, 5))
	var events []string
	f.coord.store = orderedStore{Store: f.store, events: &events}
	f.coord.SetLocker(orderedLocker{events: &events})

	_, err := f.coord.Sync(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, []string{"lock", "open", "unlock"}, events)
}
