package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordGraphRequest(t *testing.T) {
	m := NewMetrics("leadsync")

	m.RecordGraphRequest("get_pages", "success", 0.2)
	m.RecordGraphRequest("get_pages", "success", 0.3)
	m.RecordGraphRequest("get_pages", "api_error", 0.1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GraphRequests.WithLabelValues("get_pages", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GraphRequests.WithLabelValues("get_pages", "api_error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordGraphRequest("get_lead", "success", 1)
		m.RecordHTTPRequest("/", "GET", "200")
		m.RecordConnection("oauth", "success")
		m.RecordLeadDelivery("delivered")
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics("leadsync")
	m.RecordConnection("oauth", "success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `leadsync_connection_attempts_total{mode="oauth",outcome="success"} 1`)
}
