package metrics

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

func TestRecorders(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.RecordHit()
	m.RecordHit()
	m.RecordMiss(MissAbsent)
	m.RecordMiss(MissStale)
	m.RecordMiss(MissStale)
	m.RecordEvictions(3)
	m.RecordEvictions(0)
	m.RecordEvictionFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Misses.WithLabelValues(MissAbsent)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Misses.WithLabelValues(MissStale)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Evictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvictionFailures))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordHit()
	m.RecordMiss(MissAbsent)
	m.RecordEvictions(1)
	m.RecordEvictionFailure()
	m.ObserveOperation("get", time.Now(), nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("test", prometheus.NewRegistry())
	m.ObserveOperation("set", time.Now(), errors.New("boom"))
	m.RecordHit()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "test_cache_hits_total 1"), body)
	assert.Contains(t, body, `test_cache_operation_duration_seconds_count{operation="set",status="error"} 1`)
}
