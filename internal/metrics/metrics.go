// Package metrics provides the Prometheus metrics of the fuel advisor.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the advisor.
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Price feed metrics
	FeedRequestsTotal   *prometheus.CounterVec
	FeedRequestDuration prometheus.Histogram

	// Sync metrics
	SyncRunsTotal       *prometheus.CounterVec
	PointsUpsertedTotal prometheus.Counter
	LastSyncTimestamp   *prometheus.GaugeVec

	// Advisor metrics
	DecisionsTotal    *prometheus.CounterVec
	LedgerEventsTotal *prometheus.CounterVec

	// Database metrics
	DBOperationsTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FeedRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fueladvisor_feed_requests_total",
				Help: "Total number of price feed page requests by status",
			},
			[]string{"status"},
		),
		FeedRequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fueladvisor_feed_request_duration_seconds",
				Help:    "Price feed page request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		SyncRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fueladvisor_sync_runs_total",
				Help: "Total number of sync runs by result",
			},
			[]string{"result"},
		),
		PointsUpsertedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fueladvisor_price_points_upserted_total",
				Help: "Total number of price points written to price history stores",
			},
		),
		LastSyncTimestamp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fueladvisor_last_sync_timestamp",
				Help: "Timestamp of the last successful sync per organization",
			},
			[]string{"org"},
		),
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fueladvisor_decisions_total",
				Help: "Total number of replenishment decisions by action",
			},
			[]string{"action"},
		),
		LedgerEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fueladvisor_ledger_events_total",
				Help: "Total number of ledger events recorded by kind",
			},
			[]string{"kind"},
		),
		DBOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fueladvisor_db_operations_total",
				Help: "Total number of database operations by type and status",
			},
			[]string{"operation", "status"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fueladvisor_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fueladvisor_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// RecordFeedRequest records one price feed page request.
func (m *Metrics) RecordFeedRequest(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.FeedRequestsTotal.WithLabelValues(status).Inc()
	m.FeedRequestDuration.Observe(duration.Seconds())
}

// RecordSync records the outcome of a sync run.
func (m *Metrics) RecordSync(org, result string, upserted int, at time.Time) {
	if m == nil {
		return
	}
	m.SyncRunsTotal.WithLabelValues(result).Inc()
	if result == "error" {
		return
	}
	m.PointsUpsertedTotal.Add(float64(upserted))
	m.LastSyncTimestamp.WithLabelValues(org).Set(float64(at.Unix()))
}

// RecordDecision records a replenishment decision.
func (m *Metrics) RecordDecision(action string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(action).Inc()
}

// RecordLedgerEvent records an appended ledger event.
func (m *Metrics) RecordLedgerEvent(kind string) {
	if m == nil {
		return
	}
	m.LedgerEventsTotal.WithLabelValues(kind).Inc()
}

// RecordDBOperation records a database operation metric.
func (m *Metrics) RecordDBOperation(operation, status string) {
	if m == nil {
		return
	}
	m.DBOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordHTTPRequest records a served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
