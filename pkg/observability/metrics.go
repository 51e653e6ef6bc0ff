package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives authorization observations. It has the same method set
// as rbac.Metrics so both Metrics and OTelMetrics can be handed to the
// resolver, enforcer and adapter wrappers.
type Recorder interface {
	ObserveLookup(op, backend string, d time.Duration, err error)
	ObserveResolution(result string)
	ObserveDecision(outcome string)
	ObserveCache(kind string, hit bool)
}

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Adapter metrics
	AdapterOperationsTotal   *prometheus.CounterVec
	AdapterOperationDuration *prometheus.HistogramVec
	AdapterErrorsTotal       *prometheus.CounterVec

	// Authorization metrics
	ResolutionsTotal *prometheus.CounterVec
	DecisionsTotal   *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		AdapterOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_adapter_operations_total",
				Help: "Total number of storage adapter lookups",
			},
			[]string{"operation", "backend", "status"},
		),
		AdapterOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeeper_adapter_operation_duration_seconds",
				Help:    "Storage adapter lookup duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "backend"},
		),
		AdapterErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_adapter_errors_total",
				Help: "Total number of failed storage adapter lookups",
			},
			[]string{"operation", "backend"},
		),

		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_resolutions_total",
				Help: "Permission resolutions by result",
			},
			[]string{"result"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_decisions_total",
				Help: "Enforcement decisions by outcome",
			},
			[]string{"outcome"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_cache_hits_total",
				Help: "Total number of resolution cache hits",
			},
			[]string{"kind"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeeper_cache_misses_total",
				Help: "Total number of resolution cache misses",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AdapterOperationsTotal,
		m.AdapterOperationDuration,
		m.AdapterErrorsTotal,
		m.ResolutionsTotal,
		m.DecisionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// ObserveLookup records one adapter lookup
func (m *Metrics) ObserveLookup(op, backend string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.AdapterErrorsTotal.WithLabelValues(op, backend).Inc()
	}
	m.AdapterOperationsTotal.WithLabelValues(op, backend, status).Inc()
	m.AdapterOperationDuration.WithLabelValues(op, backend).Observe(d.Seconds())
}

// ObserveResolution counts a resolver result
func (m *Metrics) ObserveResolution(result string) {
	m.ResolutionsTotal.WithLabelValues(result).Inc()
}

// ObserveDecision counts an enforcer outcome
func (m *Metrics) ObserveDecision(outcome string) {
	m.DecisionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCache counts a resolution cache hit or miss
func (m *Metrics) ObserveCache(kind string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(kind).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(kind).Inc()
}

// Tee fans every observation out to each recorder
type Tee []Recorder

func (t Tee) ObserveLookup(op, backend string, d time.Duration, err error) {
	for _, r := range t {
		r.ObserveLookup(op, backend, d, err)
	}
}

func (t Tee) ObserveResolution(result string) {
	for _, r := range t {
		r.ObserveResolution(result)
	}
}

func (t Tee) ObserveDecision(outcome string) {
	for _, r := range t {
		r.ObserveDecision(outcome)
	}
}

func (t Tee) ObserveCache(kind string, hit bool) {
	for _, r := range t {
		r.ObserveCache(kind, hit)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	return rw.ResponseWriter.Write(b)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// routeName maps a request to a low-cardinality label; nil uses the path.
func HTTPMetricsMiddleware(metrics *Metrics, routeName func(*http.Request) string) func(http.Handler) http.Handler {
	if routeName == nil {
		routeName = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeName(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
