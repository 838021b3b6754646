package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSingleton(t *testing.T) {
	assert.Same(t, New(), New())
}

func TestRecorders(t *testing.T) {
	m := New()

	before := testutil.ToFloat64(m.RunsTotal.WithLabelValues("manual", "completed"))
	m.RecordRun("manual", "completed")
	assert.Equal(t, before+1, testutil.ToFloat64(m.RunsTotal.WithLabelValues("manual", "completed")))

	hits := testutil.ToFloat64(m.StepCacheHits)
	misses := testutil.ToFloat64(m.StepCacheMisses)
	m.RecordCache(true)
	m.RecordCache(false)
	m.RecordCache(false)
	assert.Equal(t, hits+1, testutil.ToFloat64(m.StepCacheHits))
	assert.Equal(t, misses+2, testutil.ToFloat64(m.StepCacheMisses))

	m.RecordDelivery("EMAIL", "failed")
	m.ObserveStage("deliver", 20*time.Millisecond)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRun("manual", "completed")
		m.RecordCache(true)
		m.RecordDelivery("EMAIL", "success")
		m.ObserveStage("select", time.Second)
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	New().RecordRun("batch", "completed")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "briefing_runs_total")
}
