// Package database provides relational storage for tenants, the consumption
// ledger and the SQL price history, on PostgreSQL (pgx) or SQLite.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const (
	driverPostgres = "pgx"
	driverSQLite   = "sqlite3"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		org TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		bucket TEXT NOT NULL,
		measurement TEXT NOT NULL,
		field TEXT NOT NULL,
		secret_hash TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_events (
		id TEXT PRIMARY KEY,
		org TEXT NOT NULL,
		pump_id TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('usage', 'restock')),
		amount DOUBLE PRECISION NOT NULL CHECK (amount > 0),
		occurred_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_events_org_pump ON ledger_events (org, pump_id)`,
	`CREATE TABLE IF NOT EXISTS price_buckets (
		org TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (org, name)
	)`,
	`CREATE TABLE IF NOT EXISTS price_points (
		org TEXT NOT NULL,
		bucket TEXT NOT NULL,
		measurement TEXT NOT NULL,
		field TEXT NOT NULL,
		price_date DATE NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		written_at TIMESTAMP NOT NULL,
		PRIMARY KEY (org, bucket, measurement, field, price_date)
	)`,
}

// Recorder receives the outcome of every write operation.
type Recorder interface {
	RecordDBOperation(operation, status string)
}

// DB wraps the database connection pool.
type DB struct {
	db       *sql.DB
	driver   string
	recorder Recorder
	logger   zerolog.Logger
}

// New opens a database connection for driver ("pgx" or "sqlite3") and applies the schema.
func New(driver, dsn string, logger zerolog.Logger) (*DB, error) {
	if driver != driverPostgres && driver != driverSQLite {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test the connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{
		db:     db,
		driver: driver,
		logger: logger.With().Str("component", "database").Logger(),
	}

	if err := d.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	if d.driver == driverSQLite {
		if _, err := d.db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return fmt.Errorf("enabling WAL mode: %w", err)
		}
	}
	for _, stmt := range schema {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	d.logger.Debug().Int("statements", len(schema)).Msg("schema applied")
	return nil
}

// SetRecorder wires a metrics recorder into the database.
func (d *DB) SetRecorder(r Recorder) {
	d.recorder = r
}

func (d *DB) observe(operation string, err error) {
	if d.recorder == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	d.recorder.RecordDBOperation(operation, status)
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks if the database connection is alive.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// Conn acquires a dedicated connection from the pool. The caller must close it.
func (d *DB) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	return conn, nil
}

// Rebind rewrites '?' placeholders into the driver's native form.
func (d *DB) Rebind(query string) string {
	return Rebind(d.driver, query)
}

// Rebind rewrites '?' placeholders into '$n' for PostgreSQL and leaves them unchanged otherwise.
func Rebind(driver, query string) string {
	if driver != driverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsUniqueViolation reports whether err is a unique or primary key constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func (d *DB) count(ctx context.Context, table string) (int64, error) {
	var count int64
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return count, nil
}

// GetTenantsCount returns the number of registered tenants.
func (d *DB) GetTenantsCount(ctx context.Context) (int64, error) {
	return d.count(ctx, "tenants")
}

// GetLedgerEventsCount returns the number of ledger events.
func (d *DB) GetLedgerEventsCount(ctx context.Context) (int64, error) {
	return d.count(ctx, "ledger_events")
}

// GetPricePointsCount returns the number of price points held in the SQL price store.
func (d *DB) GetPricePointsCount(ctx context.Context) (int64, error) {
	return d.count(ctx, "price_points")
}

// ResetAll removes every tenant and every ledger event in one transaction.
func (d *DB) ResetAll(ctx context.Context) error {
	var err error
	defer func() { d.observe("reset_all", err) }()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning reset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"ledger_events", "tenants"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing reset: %w", err)
	}

	d.logger.Warn().Msg("all tenants and ledger events removed")
	return nil
}
