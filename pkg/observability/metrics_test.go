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

func TestMetrics_ObserveLookup(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveLookup("get_user_role", "postgres", 3*time.Millisecond, nil)
	m.ObserveLookup("get_user_role", "postgres", time.Millisecond, errors.New("timeout"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterOperationsTotal.WithLabelValues("get_user_role", "postgres", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterOperationsTotal.WithLabelValues("get_user_role", "postgres", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterErrorsTotal.WithLabelValues("get_user_role", "postgres")))
}

func TestMetrics_DecisionsAndCache(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveResolution("granted")
	m.ObserveResolution("granted")
	m.ObserveDecision("forbidden")
	m.ObserveCache("user_role", true)
	m.ObserveCache("user_role", false)
	m.ObserveCache("user_role", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ResolutionsTotal.WithLabelValues("granted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("forbidden")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("user_role")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("user_role")))
}

func TestTee(t *testing.T) {
	a := NewMetrics(prometheus.NewRegistry())
	b := NewMetrics(prometheus.NewRegistry())

	Tee{a, b}.ObserveDecision("allowed")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.DecisionsTotal.WithLabelValues("allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.DecisionsTotal.WithLabelValues("allowed")))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	handler := HTTPMetricsMiddleware(m, func(*http.Request) string { return "/api/users" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}),
	)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/users?page=2", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/users", "403")))
}

func TestMetricsHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.ObserveDecision("allowed")

	rr := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), `gatekeeper_decisions_total{outcome="allowed"} 1`))
}
