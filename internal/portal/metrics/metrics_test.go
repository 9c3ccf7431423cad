package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/portal/internal/portal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newMetrics(t *testing.T) (*metrics.Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	return m, reg
}

func TestRecordCountsEvents(t *testing.T) {
	m, _ := newMetrics(t)

	m.Record("login_failure")
	m.Record("login_failure")
	m.Record("lockout")

	require.InDelta(t, 2, testutil.ToFloat64(m.Events.WithLabelValues("login_failure")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.Events.WithLabelValues("lockout")), 0)
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := metrics.New(reg)
	require.NoError(t, err)
	second, err := metrics.New(reg)
	require.NoError(t, err)

	first.Record("registration")
	require.InDelta(t, 1, testutil.ToFloat64(second.Events.WithLabelValues("registration")), 0)
}

func TestHandlerAndMiddleware(t *testing.T) {
	m, _ := newMetrics(t)
	m.Record("login_success")

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	require.InDelta(t, 1, testutil.ToFloat64(m.RequestCount.WithLabelValues("GET", "418")), 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `portal_security_events_total{event="login_success"} 1`), body)
}

func TestNewDefaultGathersWhatItRegisters(t *testing.T) {
	m, err := metrics.NewDefault()
	require.NoError(t, err)
	m.Record("session_revoked")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `portal_security_events_total{event="session_revoked"}`)
}
