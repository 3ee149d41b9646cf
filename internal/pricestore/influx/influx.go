// Package influx keeps tenant price history in the tenant's own InfluxDB
// endpoint.
package influx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/andygrunwald/fuel-advisor/internal/models"
	"github.com/andygrunwald/fuel-advisor/internal/pricestore"
)

// Store opens one InfluxDB client per session, against the stream's endpoint.
type Store struct {
	token   string
	org     string
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a new InfluxDB price store.
func New(token, org string, timeout time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		token:   token,
		org:     org,
		timeout: timeout,
		logger:  logger.With().Str("component", "influx").Logger(),
	}
}

// Open creates a client for the stream's endpoint. Close releases it.
func (s *Store) Open(ctx context.Context, stream models.Stream) (pricestore.Session, error) {
	if stream.Endpoint == "" {
		return nil, fmt.Errorf("stream endpoint is empty")
	}

	opts := influxdb2.DefaultOptions()
	if s.timeout > 0 {
		opts.SetHTTPRequestTimeout(uint(s.timeout.Seconds()))
	}

	return &session{
		client: influxdb2.NewClientWithOptions(stream.Endpoint, s.token, opts),
		org:    s.org,
		stream: stream,
		logger: s.logger.With().Str("endpoint", stream.Endpoint).Str("bucket", stream.Bucket).Logger(),
	}, nil
}

type session struct {
	client influxdb2.Client
	org    string
	stream models.Stream
	logger zerolog.Logger
}

func (s *session) BucketExists(ctx context.Context) (bool, error) {
	name := s.stream.Bucket
	resp, err := s.client.APIClient().GetBuckets(ctx, &domain.GetBucketsParams{Name: &name, Org: &s.org})
	if err != nil {
		return false, fmt.Errorf("looking up bucket %q: %w", name, err)
	}
	if resp.Buckets == nil {
		return false, nil
	}
	for _, b := range *resp.Buckets {
		if b.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *session) CreateBucket(ctx context.Context) error {
	org, err := s.client.OrganizationsAPI().FindOrganizationByName(ctx, s.org)
	if err != nil {
		return fmt.Errorf("looking up organization %q: %w", s.org, err)
	}

	if _, err := s.client.BucketsAPI().CreateBucketWithName(ctx, org, s.stream.Bucket); err != nil {
		// A concurrent creator may have won the race.
		exists, existsErr := s.BucketExists(ctx)
		if existsErr == nil && exists {
			s.logger.Debug().Msg("bucket already exists")
			return nil
		}
		return fmt.Errorf("creating bucket %q: %w", s.stream.Bucket, err)
	}

	s.logger.Info().Msg("created bucket")
	return nil
}

func (s *session) LatestDate(ctx context.Context, since, before time.Time) (time.Time, bool, error) {
	query := s.baseQuery(since, before) + `
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: 1)`

	points, err := s.query(ctx, query)
	if err != nil {
		return time.Time{}, false, err
	}
	if len(points) == 0 {
		return time.Time{}, false, nil
	}
	return points[0].Date, true, nil
}

func (s *session) Upsert(ctx context.Context, points []models.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	batch := make([]*write.Point, 0, len(points))
	for _, p := range points {
		batch = append(batch, influxdb2.NewPoint(
			s.stream.Measurement,
			nil,
			map[string]interface{}{s.stream.Field: p.Value},
			models.Day(p.Date),
		))
	}

	// Points with an existing timestamp replace the stored value.
	writer := s.client.WriteAPIBlocking(s.org, s.stream.Bucket)
	if err := writer.WritePoint(ctx, batch...); err != nil {
		return 0, fmt.Errorf("writing price points: %w", err)
	}

	s.logger.Debug().Int("count", len(points)).Msg("wrote price points")
	return len(points), nil
}

func (s *session) Series(ctx context.Context, from time.Time) ([]models.PricePoint, error) {
	return s.query(ctx, s.baseQuery(from, time.Time{})+`
  |> sort(columns: ["_time"])`)
}

func (s *session) Close() error {
	s.client.Close()
	return nil
}

// baseQuery selects the stream's points from start on. A non-zero stop
// bounds the range exclusively.
func (s *session) baseQuery(start, stop time.Time) string {
	bounds := "start: " + models.Day(start).Format(time.RFC3339)
	if !stop.IsZero() {
		bounds += ", stop: " + models.Day(stop).Format(time.RFC3339)
	}
	return fmt.Sprintf(`from(bucket: %s)
  |> range(%s)
  |> filter(fn: (r) => r._measurement == %s and r._field == %s)
  |> group()`,
		strconv.Quote(s.stream.Bucket),
		bounds,
		strconv.Quote(s.stream.Measurement),
		strconv.Quote(s.stream.Field),
	)
}

func (s *session) query(ctx context.Context, flux string) ([]models.PricePoint, error) {
	result, err := s.client.QueryAPI(s.org).Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("querying price history: %w", err)
	}
	defer func() { _ = result.Close() }()

	var points []models.PricePoint
	for result.Next() {
		rec := result.Record()
		value, ok := toFloat(rec.Value())
		if !ok {
			return nil, fmt.Errorf("unexpected value type %T at %s", rec.Value(), rec.Time().Format(time.RFC3339))
		}
		points = append(points, models.PricePoint{Date: models.Day(rec.Time()), Value: value})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading query result: %w", err)
	}
	return points, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
