// Package pricefeed provides an API client for the external daily price feed.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/andygrunwald/fuel-advisor/internal/errs"
	"github.com/andygrunwald/fuel-advisor/internal/models"
	"github.com/andygrunwald/fuel-advisor/internal/useragent"
)

// FeedName is the identifier for this feed.
const FeedName = "pricefeed"

// record is a single entry of the feed's JSON array.
type record struct {
	Date  string          `json:"date"`
	Price json.RawMessage `json:"price"`
}

// Recorder receives one observation per page request.
type Recorder interface {
	RecordFeedRequest(status string, duration time.Duration)
}

// Options configures the client.
type Options struct {
	BaseURL    string
	Instrument string
	PageSize   int
	MaxPages   int
	// Rate is the maximum number of page requests per second.
	Rate    float64
	Timeout time.Duration
}

// Client fetches daily prices from the external feed.
type Client struct {
	client   *http.Client
	opts     Options
	limiter  *rate.Limiter
	recorder Recorder
	logger   zerolog.Logger

	mu     sync.RWMutex
	status models.FeedStatus
}

// New creates a new feed client.
func New(opts Options, logger zerolog.Logger) *Client {
	if opts.PageSize < 1 {
		opts.PageSize = 500
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	return &Client{
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With().Str("feed", FeedName).Logger(),
	}
}

// SetRecorder wires a metrics recorder into the client.
func (c *Client) SetRecorder(r Recorder) {
	c.recorder = r
}

// Name returns the feed identifier.
func (c *Client) Name() string {
	return FeedName
}

// FetchRange fetches the records for the inclusive date range [from, to].
// Pages are requested until a page comes back short or the range is covered.
// Needing more than MaxPages pages is an upstream error.
func (c *Client) FetchRange(ctx context.Context, from, to time.Time) ([]models.FeedRecord, error) {
	from, to = models.Day(from), models.Day(to)
	if to.Before(from) {
		return nil, errs.Validation("range end %s before start %s", to.Format(models.DateLayout), from.Format(models.DateLayout))
	}

	days := models.DaysBetween(from, to) + 1
	pageSize := c.opts.PageSize
	if days < pageSize {
		pageSize = days
	}

	c.logger.Debug().
		Str("from", from.Format(models.DateLayout)).
		Str("to", to.Format(models.DateLayout)).
		Int("days", days).
		Int("page_size", pageSize).
		Msg("fetching price range")

	var out []models.FeedRecord
	for page := 1; ; page++ {
		if page > c.opts.MaxPages {
			return nil, errs.Upstream("fetching price range",
				fmt.Errorf("range %s..%s needs more than %d pages of %d records",
					from.Format(models.DateLayout), to.Format(models.DateLayout), c.opts.MaxPages, pageSize))
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}

		records, err := c.fetchPage(ctx, from, to, pageSize, page)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)

		if len(records) < pageSize || len(out) >= days {
			break
		}
	}

	c.logger.Info().
		Int("count", len(out)).
		Str("from", from.Format(models.DateLayout)).
		Str("to", to.Format(models.DateLayout)).
		Msg("fetched prices from feed")

	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, from, to time.Time, pageSize, page int) ([]models.FeedRecord, error) {
	params := url.Values{}
	params.Set("type", c.opts.Instrument)
	params.Set("startDate", from.Format(models.DateLayout))
	params.Set("endDate", to.Format(models.DateLayout))
	params.Set("pageSize", strconv.Itoa(pageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("sort", "asc")
	apiURL := c.opts.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", useragent.Random())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	records, status, err := c.do(req, page)
	c.observe(status, time.Since(start), err)
	return records, err
}

func (c *Client) do(req *http.Request, page int) ([]models.FeedRecord, string, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "error", errs.Upstream(fmt.Sprintf("requesting page %d", page), err)
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, status, errs.Upstream(fmt.Sprintf("requesting page %d", page),
			fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, status, errs.Upstream(fmt.Sprintf("reading page %d", page), err)
	}

	var raw []record
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, status, errs.Malformed("decoding page %d: %v", page, err)
	}

	records := make([]models.FeedRecord, 0, len(raw))
	for i, r := range raw {
		rec, err := decode(r)
		if err != nil {
			return nil, status, fmt.Errorf("record %d of page %d: %w", i, page, err)
		}
		records = append(records, rec)
	}
	return records, status, nil
}

func decode(r record) (models.FeedRecord, error) {
	date, err := ParseDate(r.Date)
	if err != nil {
		return models.FeedRecord{}, err
	}

	var text string
	if len(r.Price) > 0 && r.Price[0] == '"' {
		if err := json.Unmarshal(r.Price, &text); err != nil {
			return models.FeedRecord{}, errs.Malformed("price for %s: %v", r.Date, err)
		}
	} else {
		text = string(r.Price)
	}

	price, err := ParsePrice(text)
	if err != nil {
		return models.FeedRecord{}, fmt.Errorf("price for %s: %w", r.Date, err)
	}
	return models.FeedRecord{Date: date, Price: price, Raw: text}, nil
}

func (c *Client) observe(status string, duration time.Duration, err error) {
	if c.recorder != nil {
		c.recorder.RecordFeedRequest(status, duration)
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.TotalRequests++
	c.status.LastFetchAt = &now
	c.status.LastResponseTimeMs = duration.Milliseconds()
	if err != nil {
		c.status.TotalErrors++
		c.status.LastFetchSuccess = false
		errStr := err.Error()
		c.status.LastError = &errStr
		return
	}
	c.status.LastFetchSuccess = true
	c.status.LastError = nil
}

// Status returns a thread-safe snapshot of the client's request history.
func (c *Client) Status() models.FeedStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}
