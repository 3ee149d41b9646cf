// Package models provides shared data types for the fuel advisor.
package models

import (
	"time"
)

// DateLayout is the calendar-date format used on the wire and in storage.
const DateLayout = "2006-01-02"

// TenantProfile is the connection profile of one organization.
type TenantProfile struct {
	// Org is the unique organization identifier.
	Org string `json:"org"`
	// URL is the endpoint of the tenant's price history store.
	URL string `json:"url"`
	// Bucket, Measurement and Field address the tenant's price stream.
	Bucket      string    `json:"bucket"`
	Measurement string    `json:"measurement"`
	Field       string    `json:"field"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Stream returns the price stream addressed by the profile.
func (p TenantProfile) Stream() Stream {
	return Stream{
		Org:         p.Org,
		Endpoint:    p.URL,
		Bucket:      p.Bucket,
		Measurement: p.Measurement,
		Field:       p.Field,
	}
}

// TenantUpdate carries a partial profile update. Nil fields are left untouched.
type TenantUpdate struct {
	URL         *string `json:"url,omitempty"`
	Bucket      *string `json:"bucket,omitempty"`
	Measurement *string `json:"measurement,omitempty"`
	Field       *string `json:"field,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u TenantUpdate) Empty() bool {
	return u.URL == nil && u.Bucket == nil && u.Measurement == nil && u.Field == nil
}

// Stream identifies one tenant price series in a price history store.
// Org scopes the series, so tenants may reuse bucket and series names.
type Stream struct {
	Org         string
	Endpoint    string
	Bucket      string
	Measurement string
	Field       string
}

// PricePoint is one authoritative price for a calendar date.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// FeedRecord is one record returned by the external price feed.
type FeedRecord struct {
	Date  time.Time
	Price float64
	// Raw is the localized price text as delivered by the feed.
	Raw string
}

// EventKind distinguishes ledger events.
type EventKind string

const (
	// EventUsage records fuel drawn from a pump.
	EventUsage EventKind = "usage"
	// EventRestock records fuel delivered to a pump.
	EventRestock EventKind = "restock"
)

// LedgerEvent is an immutable usage or restock record.
type LedgerEvent struct {
	ID         string    `json:"id"`
	Org        string    `json:"org"`
	PumpID     string    `json:"pump_id"`
	Kind       EventKind `json:"kind"`
	Amount     float64   `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StockProjection is derived from the ledger on every request.
type StockProjection struct {
	PumpID                  string  `json:"pump_id"`
	CurrentStock            float64 `json:"current_stock"`
	AverageDailyConsumption float64 `json:"average_daily_consumption"`
	// UsageDays is the number of calendar days with at least one usage event.
	UsageDays int `json:"usage_days"`
}

// ForecastPoint is one predicted price.
type ForecastPoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"predicted_price"`
}

// Action is the replenishment recommendation.
type Action string

const (
	// ActionBuyNow recommends purchasing fuel today.
	ActionBuyNow Action = "buy_now"
	// ActionWait recommends postponing the purchase.
	ActionWait Action = "wait"
)

// Decision is the outcome of the decision engine.
type Decision struct {
	PumpID string `json:"pump_id"`
	Action Action `json:"action"`
	// TriggerDay is the first day offset whose projected stock falls below the safety margin.
	TriggerDay   *int       `json:"trigger_day,omitempty"`
	TriggerDate  *time.Time `json:"trigger_date,omitempty"`
	TriggerPrice *float64   `json:"trigger_price,omitempty"`
	// CheaperDay is set when a later, cheaper forecast day overrode BuyNow.
	CheaperDay   *int     `json:"cheaper_day,omitempty"`
	CheaperPrice *float64 `json:"cheaper_price,omitempty"`
	Reason       string   `json:"reason"`
}

// Prediction is the response to a prediction request.
type Prediction struct {
	Org      string          `json:"org"`
	Horizon  int             `json:"horizon"`
	Decision Decision        `json:"decision"`
	Stock    StockProjection `json:"stock"`
	Forecast []ForecastPoint `json:"forecast"`
}

// SyncResult summarizes one run of the sync coordinator.
type SyncResult struct {
	Org       string    `json:"org"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Fetched   int       `json:"fetched"`
	Upserted  int       `json:"upserted"`
	Skipped   bool      `json:"skipped"`
	Duration  string    `json:"duration"`
	Watermark time.Time `json:"watermark"`
}

// FeedStatus holds the operational status of the external price feed client.
type FeedStatus struct {
	LastFetchAt        *time.Time `json:"last_fetch_at"`
	LastFetchSuccess   bool       `json:"last_fetch_success"`
	LastResponseTimeMs int64      `json:"last_response_time_ms"`
	LastError          *string    `json:"last_error"`
	TotalRequests      int64      `json:"total_requests"`
	TotalErrors        int64      `json:"total_errors"`
}

// StatusResponse is the response for the /status endpoint.
type StatusResponse struct {
	Status        string         `json:"status"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Feed          FeedStatus     `json:"feed"`
	Database      DatabaseStatus `json:"database"`
}

// DatabaseStatus holds the database connection status.
type DatabaseStatus struct {
	Connected         bool  `json:"connected"`
	TenantsStored     int64 `json:"tenants_stored"`
	LedgerEventsTotal int64 `json:"ledger_events_total"`
	PricePointsStored int64 `json:"price_points_stored"`
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
