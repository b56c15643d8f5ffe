package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsCounters(t *testing.T) {
	m := New("test")
	c := NewDefaultMetricsCollector(m)

	c.RecordCacheRequest("credit_report", true)
	c.RecordCacheRequest("credit_report", false)
	c.RecordCacheRequest("credit_report", false)
	c.RecordCreditFallback()
	c.RecordAssessment("APPROVED", 120*time.Millisecond)
	c.RecordEventPublished("decision-events", false)
	c.RecordCircuitStateChange("bureau", "CLOSED", "OPEN")
	c.RecordRetryAttemptFailure("bureau")
	c.RecordRetryAttemptFailure("bureau")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheRequestsTotal.WithLabelValues("credit_report", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheRequestsTotal.WithLabelValues("credit_report", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CreditFallbacksTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssessmentsTotal.WithLabelValues("APPROVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublishedTotal.WithLabelValues("decision-events", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitState.WithLabelValues("bureau")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetryAttemptFailures.WithLabelValues("bureau")))

	c.RecordCircuitStateChange("bureau", "HALF_OPEN", "CLOSED")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CircuitState.WithLabelValues("bureau")))
}

func TestRegisterAndServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("test")
	require.NoError(t, m.Register(reg))
	require.Error(t, m.Register(reg), "double registration must fail")

	NewDefaultMetricsCollector(m).RecordCreditFallback()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "risk_test_credit_bureau_fallbacks_total 1")
}
