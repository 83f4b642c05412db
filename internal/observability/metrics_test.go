package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.CacheDegraded("get")
	m.CacheDegraded("get")
	m.CacheLookup("current", true)
	m.CacheLookup("current", false)
	m.UpstreamCall("alpaca", OutcomeRateLimited, 10*time.Millisecond)
	m.Fallback("last_known")
	m.SnapshotWritten(nil)
	m.SnapshotWritten(errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheDegradations.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("current")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses.WithLabelValues("current")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamCalls.WithLabelValues("alpaca", OutcomeRateLimited)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackSteps.WithLabelValues("last_known")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsWritten))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotErrors))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheDegraded("set")
		m.CacheLookup("hist", false)
		m.UpstreamCall("binance", OutcomeOK, time.Second)
		m.Collapsed()
		m.Fallback("reference")
		m.LeaderboardComputed("daily", 3, time.Second)
		m.SnapshotWritten(nil)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.Collapsed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "gainboard_upstream_collapsed_waiters_total 1"))
}
