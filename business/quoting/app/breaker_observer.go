package app

import (
	"context"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/quote-router/internal/logger"
)

// NewBreakerObserver returns an OnStateChange hook that logs every breaker
// transition and counts it in quote_router_breaker_transitions_total.
func NewBreakerObserver(log logger.LoggerInterface, mp metric.MeterProvider) func(name string, from, to gobreaker.State) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	counter, err := mp.Meter("quote_router").Int64Counter(
		"quote_router_breaker_transitions_total",
		metric.WithDescription("Circuit breaker state transitions"),
	)
	if err != nil {
		log.Warn(context.Background(), "breaker transition counter unavailable", "error", err)
	}

	return func(name string, from, to gobreaker.State) {
		ctx := context.Background()
		args := []any{"provider", name, "from", from.String(), "to", to.String()}
		if to == gobreaker.StateOpen {
			log.Warn(ctx, "circuit opened", args...)
		} else {
			log.Info(ctx, "circuit state changed", args...)
		}

		if counter != nil {
			counter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("provider", name),
				attribute.String("from", from.String()),
				attribute.String("to", to.String()),
			))
		}
	}
}
