package handler

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/angeloszaimis/auth-proxy/internal/backend"
)

// registerUpstreamGauges publishes the upstream bookkeeping kept by
// backend.Backend as observable gauges.
func registerUpstreamGauges(meter metric.Meter, upstream *backend.Backend) error {
	inFlight, err := meter.Int64ObservableGauge("proxy.upstream.in_flight",
		metric.WithDescription("Upstream requests currently in progress"),
	)
	if err != nil {
		return err
	}

	responseTime, err := meter.Float64ObservableGauge("proxy.upstream.response_time.ewma",
		metric.WithDescription("Moving average of upstream response times"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	healthy, err := meter.Int64ObservableGauge("proxy.upstream.healthy",
		metric.WithDescription("1 when the upstream was reachable on the last probe"),
	)
	if err != nil {
		return err
	}

	attrs := metric.WithAttributes(attribute.String("upstream", upstream.URL()))

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(inFlight, int64(upstream.InFlight()), attrs)
		o.ObserveFloat64(responseTime, upstream.EWMATime().Seconds(), attrs)

		var up int64
		if upstream.IsHealthy() {
			up = 1
		}
		o.ObserveInt64(healthy, up, attrs)

		return nil
	}, inFlight, responseTime, healthy)

	return err
}
