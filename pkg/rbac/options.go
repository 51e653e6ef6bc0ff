package rbac

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// InstrumentationName names the tracer and meter scope for this package
const InstrumentationName = "github.com/platinummonkey/gatekeeper/pkg/rbac"

// Resolution results reported to Metrics.ObserveResolution
const (
	ResultGranted = "granted"
	ResultEmpty   = "empty"
	ResultError   = "error"
)

// Decision outcomes reported to Metrics.ObserveDecision
const (
	OutcomeAllowed     = "allowed"
	OutcomeForbidden   = "forbidden"
	OutcomeUnavailable = "unavailable"
)

// Metrics receives counters from the resolution path. The observability
// package provides the Prometheus implementation.
type Metrics interface {
	ObserveLookup(op, backend string, d time.Duration, err error)
	ObserveResolution(result string)
	ObserveDecision(outcome string)
	ObserveCache(kind string, hit bool)
}

type nopMetrics struct{}

func (nopMetrics) ObserveLookup(string, string, time.Duration, error) {}
func (nopMetrics) ObserveResolution(string)                           {}
func (nopMetrics) ObserveDecision(string)                             {}
func (nopMetrics) ObserveCache(string, bool)                          {}

// NopMetrics discards every observation
var NopMetrics Metrics = nopMetrics{}

type options struct {
	logger  *observability.Logger
	metrics Metrics
	tracer  trace.Tracer
}

// Option configures a Resolver, Enforcer or adapter wrapper
type Option func(*options)

// WithLogger sets the logger used for unavailability and denial logs
func WithLogger(logger *observability.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer overrides the tracer, which defaults to the global provider
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:  observability.NopLogger(),
		metrics: NopMetrics,
		tracer:  otel.Tracer(InstrumentationName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
