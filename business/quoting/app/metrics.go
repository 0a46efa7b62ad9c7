package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/quote-router/business/quoting/domain"
)

const (
	metricRequests        = "quote_router_requests_total"
	metricCacheLookups    = "quote_router_cache_lookups_total"
	metricOutcomes        = "quote_router_provider_outcomes_total"
	metricProviderLatency = "quote_router_provider_latency_ms"
	metricFanOutDuration  = "quote_router_fanout_duration_ms"
)

type routerMetrics struct {
	requests        metric.Int64Counter
	cacheLookups    metric.Int64Counter
	outcomes        metric.Int64Counter
	providerLatency metric.Float64Histogram
	fanOutDuration  metric.Float64Histogram
}

func newRouterMetrics(mp metric.MeterProvider) (*routerMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("quote_router")

	var (
		m   routerMetrics
		err error
	)
	if m.requests, err = meter.Int64Counter(metricRequests,
		metric.WithDescription("Best-quote requests by result")); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = meter.Int64Counter(metricCacheLookups,
		metric.WithDescription("Quote cache lookups by result")); err != nil {
		return nil, err
	}
	if m.outcomes, err = meter.Int64Counter(metricOutcomes,
		metric.WithDescription("Provider outcomes by kind")); err != nil {
		return nil, err
	}
	if m.providerLatency, err = meter.Float64Histogram(metricProviderLatency,
		metric.WithDescription("Guarded provider call latency including retries"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.fanOutDuration, err = meter.Float64Histogram(metricFanOutDuration,
		metric.WithDescription("Time from fan-out to selection"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *routerMetrics) request(ctx context.Context, result string) {
	m.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *routerMetrics) cacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *routerMetrics) outcome(ctx context.Context, o domain.Outcome) {
	attrs := metric.WithAttributes(
		attribute.String("provider", o.Provider),
		attribute.String("kind", o.Kind.String()),
	)
	m.outcomes.Add(ctx, 1, attrs)
	if o.Latency > 0 {
		m.providerLatency.Record(ctx, ms(o.Latency), attrs)
	}
}

func (m *routerMetrics) fanOut(ctx context.Context, d time.Duration) {
	m.fanOutDuration.Record(ctx, ms(d))
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
