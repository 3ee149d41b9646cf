package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andygrunwald/fuel-advisor/internal/errs"
	"github.com/andygrunwald/fuel-advisor/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "advisor.db") + "?_busy_timeout=5000"
	db, err := New(driverSQLite, dsn, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testProfile(org string) models.TenantProfile {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return models.TenantProfile{
		Org:         org,
		URL:         "http://influx:8086",
		Bucket:      "Gas-Prices",
		Measurement: "Prices",
		Field:       "y",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", Rebind(driverPostgres, q))
	assert.Equal(t, q, Rebind(driverSQLite, q))
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New("mysql", "dsn", zerolog.Nop())
	require.Error(t, err)
}

func TestTenantRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.InsertTenant(ctx, testProfile("orgA"), "hash-a"))

	got, hash, err := db.GetTenant(ctx, "orgA")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hash-a", hash)
	assert.Equal(t, "Gas-Prices", got.Bucket)
	assert.True(t, got.CreatedAt.Equal(testProfile("orgA").CreatedAt))

	missing, _, err := db.GetTenant(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertTenantConflicts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.InsertTenant(ctx, testProfile("orgA"), "hash-a"))

	t.Run("duplicate org", func(t *testing.T) {
		err := db.InsertTenant(ctx, testProfile("orgA"), "hash-b")
		assert.ErrorIs(t, err, errs.ErrConflict)
	})

	t.Run("duplicate secret", func(t *testing.T) {
		err := db.InsertTenant(ctx, testProfile("orgB"), "hash-a")
		assert.ErrorIs(t, err, errs.ErrConflict)
	})
}

func TestUpdateTenantPartial(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.InsertTenant(ctx, testProfile("orgA"), "hash-a"))

	bucket := "Diesel"
	later := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	ok, err := db.UpdateTenant(ctx, "orgA", models.TenantUpdate{Bucket: &bucket}, later)
	require.NoError(t, err)
	assert.True(t, ok)

	got, _, err := db.GetTenant(ctx, "orgA")
	require.NoError(t, err)
	assert.Equal(t, "Diesel", got.Bucket)
	assert.Equal(t, "Prices", got.Measurement)
	assert.Equal(t, "http://influx:8086", got.URL)
	assert.True(t, got.UpdatedAt.Equal(later))

	ok, err = db.UpdateTenant(ctx, "missing", models.TenantUpdate{Bucket: &bucket}, later)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedgerEvents(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	events := []models.LedgerEvent{
		{ID: "e2", Org: "orgA", PumpID: "1", Kind: models.EventUsage, Amount: 40, OccurredAt: base.Add(time.Hour)},
		{ID: "e1", Org: "orgA", PumpID: "1", Kind: models.EventRestock, Amount: 500, OccurredAt: base},
		{ID: "e3", Org: "orgA", PumpID: "2", Kind: models.EventUsage, Amount: 10, OccurredAt: base},
		{ID: "e4", Org: "orgB", PumpID: "1", Kind: models.EventUsage, Amount: 10, OccurredAt: base},
	}
	for _, e := range events {
		require.NoError(t, db.InsertEvent(ctx, e))
	}

	got, err := db.EventsFor(ctx, "orgA", "1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].ID)
	assert.Equal(t, models.EventRestock, got[0].Kind)
	assert.Equal(t, "e2", got[1].ID)
	assert.Equal(t, 40.0, got[1].Amount)

	count, err := db.GetLedgerEventsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestResetAll(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.InsertTenant(ctx, testProfile("orgA"), "hash-a"))
	require.NoError(t, db.InsertEvent(ctx, models.LedgerEvent{
		ID: "e1", Org: "orgA", PumpID: "1", Kind: models.EventRestock, Amount: 1, OccurredAt: time.Now(),
	}))

	require.NoError(t, db.ResetAll(ctx))

	tenants, err := db.GetTenantsCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, tenants)
	events, err := db.GetLedgerEventsCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, events)

	// The org can be registered again after a reset.
	require.NoError(t, db.InsertTenant(ctx, testProfile("orgA"), "hash-a"))
}

type opRecorder struct {
	ops []string
}

func (r *opRecorder) RecordDBOperation(operation, status string) {
	r.ops = append(r.ops, operation+":"+status)
}

func TestRecorderObservesWrites(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	rec := &opRecorder{}
	db.SetRecorder(rec)

	require.NoError(t, db.InsertTenant(ctx, testProfile("orgA"), "hash-a"))
	require.Error(t, db.InsertTenant(ctx, testProfile("orgA"), "hash-a"))
	require.NoError(t, db.ResetAll(ctx))

	assert.Equal(t, []string{"insert_tenant:success", "insert_tenant:error", "reset_all:success"}, rec.ops)
}
