package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSync(t *testing.T) {
	m := New(prometheus.NewRegistry())
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	m.RecordSync("orgA", "ok", 12, at)
	m.RecordSync("orgA", "skipped", 0, at.Add(time.Hour))
	m.RecordSync("orgA", "error", 5, at.Add(2*time.Hour))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncRunsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncRunsTotal.WithLabelValues("error")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.PointsUpsertedTotal))
	assert.Equal(t, float64(at.Add(time.Hour).Unix()), testutil.ToFloat64(m.LastSyncTimestamp.WithLabelValues("orgA")))
}

func TestRecordCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordDecision("buy_now")
	m.RecordDecision("buy_now")
	m.RecordLedgerEvent("usage")
	m.RecordFeedRequest("200", 150*time.Millisecond)
	m.RecordDBOperation("insert_tenant", "success")
	m.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("buy_now")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerEventsTotal.WithLabelValues("usage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedRequestsTotal.WithLabelValues("200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DBOperationsTotal.WithLabelValues("insert_tenant", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDecision("wait")
		m.RecordSync("orgA", "ok", 1, time.Now())
		m.RecordLedgerEvent("restock")
		m.RecordFeedRequest("error", time.Second)
		m.RecordDBOperation("reset", "error")
		m.RecordHTTPRequest("POST", "/tenants", 201, time.Second)
	})
}
