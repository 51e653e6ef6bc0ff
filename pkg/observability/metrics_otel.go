package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics records the authorization observations as OpenTelemetry
// instruments, exported through whichever MeterProvider is global
type OTelMetrics struct {
	lookups       metric.Int64Counter
	lookupLatency metric.Float64Histogram
	resolutions   metric.Int64Counter
	decisions     metric.Int64Counter
	cacheHits     metric.Int64Counter
	cacheMisses   metric.Int64Counter
}

// NewOTelMetrics creates the instruments on the global meter provider
func NewOTelMetrics() (*OTelMetrics, error) {
	return NewOTelMetricsFrom(otel.GetMeterProvider())
}

// NewOTelMetricsFrom creates the instruments on provider
func NewOTelMetricsFrom(provider metric.MeterProvider) (*OTelMetrics, error) {
	meter := provider.Meter("github.com/platinummonkey/gatekeeper")

	m := &OTelMetrics{}
	var err error

	m.lookups, err = meter.Int64Counter(
		"gatekeeper.adapter.lookups",
		metric.WithDescription("Storage adapter lookups"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter lookups counter: %w", err)
	}

	m.lookupLatency, err = meter.Float64Histogram(
		"gatekeeper.adapter.duration",
		metric.WithDescription("Storage adapter lookup duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter duration histogram: %w", err)
	}

	m.resolutions, err = meter.Int64Counter(
		"gatekeeper.resolutions",
		metric.WithDescription("Permission resolutions by result"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolutions counter: %w", err)
	}

	m.decisions, err = meter.Int64Counter(
		"gatekeeper.decisions",
		metric.WithDescription("Enforcement decisions by outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create decisions counter: %w", err)
	}

	m.cacheHits, err = meter.Int64Counter(
		"gatekeeper.cache.hits",
		metric.WithDescription("Resolution cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	m.cacheMisses, err = meter.Int64Counter(
		"gatekeeper.cache.misses",
		metric.WithDescription("Resolution cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	return m, nil
}

// ObserveLookup records one adapter lookup
func (m *OTelMetrics) ObserveLookup(op, backend string, d time.Duration, err error) {
	ctx := context.Background()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("backend", backend),
		attribute.String("status", status),
	))
	m.lookupLatency.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("backend", backend),
	))
}

// ObserveResolution counts a resolver result
func (m *OTelMetrics) ObserveResolution(result string) {
	m.resolutions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

// ObserveDecision counts an enforcer outcome
func (m *OTelMetrics) ObserveDecision(outcome string) {
	m.decisions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// ObserveCache counts a resolution cache hit or miss
func (m *OTelMetrics) ObserveCache(kind string, hit bool) {
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	if hit {
		m.cacheHits.Add(context.Background(), 1, attrs)
		return
	}
	m.cacheMisses.Add(context.Background(), 1, attrs)
}
