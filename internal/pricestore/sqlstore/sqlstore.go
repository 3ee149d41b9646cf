// Package sqlstore keeps tenant price history in the relational database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/andygrunwald/fuel-advisor/internal/database"
	"github.com/andygrunwald/fuel-advisor/internal/models"
	"github.com/andygrunwald/fuel-advisor/internal/pricestore"
)

// Store implements pricestore.Store on top of the shared connection pool.
type Store struct {
	db     *database.DB
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a new SQL price store.
func New(db *database.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		now:    time.Now,
		logger: logger.With().Str("component", "sqlstore").Logger(),
	}
}

// Open acquires a dedicated connection for the session.
func (s *Store) Open(ctx context.Context, stream models.Stream) (pricestore.Session, error) {
	if stream.Org == "" {
		return nil, fmt.Errorf("stream org is empty")
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &session{
		conn:   conn,
		rebind: s.db.Rebind,
		stream: stream,
		now:    s.now,
		logger: s.logger.With().Str("org", stream.Org).Str("bucket", stream.Bucket).Logger(),
	}, nil
}

type session struct {
	conn   *sql.Conn
	rebind func(string) string
	stream models.Stream
	now    func() time.Time
	logger zerolog.Logger
}

func (s *session) BucketExists(ctx context.Context) (bool, error) {
	var one int
	err := s.conn.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM price_buckets WHERE org = ? AND name = ?`), s.stream.Org, s.stream.Bucket).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking bucket: %w", err)
	}
	return true, nil
}

func (s *session) CreateBucket(ctx context.Context) error {
	query := s.rebind(`
		INSERT INTO price_buckets (org, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (org, name) DO NOTHING
	`)
	if _, err := s.conn.ExecContext(ctx, query, s.stream.Org, s.stream.Bucket, s.now().UTC()); err != nil {
		return fmt.Errorf("creating bucket: %w", err)
	}
	s.logger.Debug().Msg("bucket ensured")
	return nil
}

func (s *session) LatestDate(ctx context.Context, since, before time.Time) (time.Time, bool, error) {
	// ORDER BY keeps the column type for SQLite, which MAX() would drop.
	query := s.rebind(`
		SELECT price_date
		FROM price_points
		WHERE org = ? AND bucket = ? AND measurement = ? AND field = ?
			AND price_date >= ? AND price_date < ?
		ORDER BY price_date DESC
		LIMIT 1
	`)

	var latest time.Time
	err := s.conn.QueryRowContext(ctx, query,
		s.stream.Org,
		s.stream.Bucket,
		s.stream.Measurement,
		s.stream.Field,
		since.UTC().Format(models.DateLayout),
		before.UTC().Format(models.DateLayout),
	).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("querying latest date: %w", err)
	}
	return models.Day(latest), true, nil
}

func (s *session) Upsert(ctx context.Context, points []models.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO price_points (org, bucket, measurement, field, price_date, value, written_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org, bucket, measurement, field, price_date)
		DO UPDATE SET value = excluded.value, written_at = excluded.written_at
	`))
	if err != nil {
		return 0, fmt.Errorf("preparing upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	writtenAt := s.now().UTC()
	for _, p := range points {
		_, err := stmt.ExecContext(ctx,
			s.stream.Org,
			s.stream.Bucket,
			s.stream.Measurement,
			s.stream.Field,
			p.Date.UTC().Format(models.DateLayout),
			p.Value,
			writtenAt,
		)
		if err != nil {
			return 0, fmt.Errorf("upserting price for %s: %w", p.Date.Format(models.DateLayout), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing upsert: %w", err)
	}

	s.logger.Debug().Int("count", len(points)).Msg("upserted price points")
	return len(points), nil
}

func (s *session) Series(ctx context.Context, from time.Time) ([]models.PricePoint, error) {
	query := s.rebind(`
		SELECT price_date, value
		FROM price_points
		WHERE org = ? AND bucket = ? AND measurement = ? AND field = ? AND price_date >= ?
		ORDER BY price_date ASC
	`)

	rows, err := s.conn.QueryContext(ctx, query,
		s.stream.Org,
		s.stream.Bucket,
		s.stream.Measurement,
		s.stream.Field,
		from.UTC().Format(models.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("querying series: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Date, &p.Value); err != nil {
			return nil, fmt.Errorf("scanning price point: %w", err)
		}
		p.Date = models.Day(p.Date)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating series: %w", err)
	}
	return points, nil
}

func (s *session) Close() error {
	return s.conn.Close()
}
