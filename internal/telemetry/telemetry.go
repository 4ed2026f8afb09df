// Package telemetry bootstraps OpenTelemetry tracing and metrics for the
// proxy.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/host"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Exporter selects where spans and metrics are sent.
type Exporter string

const (
	// ExporterNone leaves the global no-op providers in place.
	ExporterNone Exporter = "none"
	// ExporterConsole writes spans and metrics to stdout.
	ExporterConsole Exporter = "console"
	// ExporterOTLP sends spans and metrics over OTLP/HTTP, configured by the
	// standard OTEL_EXPORTER_OTLP_* environment variables.
	ExporterOTLP Exporter = "otlp"
)

// ErrUnsupportedExporter is returned by Setup for an unknown exporter name.
var ErrUnsupportedExporter = errors.New("unsupported telemetry exporter")

// ParseExporter validates an exporter name.
func ParseExporter(name string) (Exporter, error) {
	switch e := Exporter(name); e {
	case ExporterNone, ExporterConsole, ExporterOTLP:
		return e, nil
	case "":
		return ExporterNone, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExporter, name)
	}
}

// Setup installs global tracer and meter providers for the chosen exporter.
// It returns a shutdown function that should be deferred by the caller.
func Setup(ctx context.Context, exporter Exporter, serviceName, serviceVersion string) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if fnErr := fn(ctx); fnErr != nil {
				errs = append(errs, fnErr)
			}
		}
		return errors.Join(errs...)
	}

	if exporter == ExporterNone || exporter == "" {
		return shutdown, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return shutdown, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	var (
		traceExporter  sdktrace.SpanExporter
		metricExporter metric.Exporter
	)

	switch exporter {
	case ExporterConsole:
		if traceExporter, err = stdouttrace.New(); err != nil {
			return shutdown, err
		}
		if metricExporter, err = stdoutmetric.New(); err != nil {
			return shutdown, err
		}
	case ExporterOTLP:
		if traceExporter, err = otlptracehttp.New(ctx); err != nil {
			return shutdown, err
		}
		if metricExporter, err = otlpmetrichttp.New(ctx); err != nil {
			return shutdown, err
		}
	default:
		return shutdown, fmt.Errorf("%w: %q", ErrUnsupportedExporter, exporter)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	meterProvider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
		metric.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return shutdown, fmt.Errorf("start runtime metrics: %w", err)
	}
	if err := host.Start(host.WithMeterProvider(meterProvider)); err != nil {
		return shutdown, fmt.Errorf("start host metrics: %w", err)
	}

	return shutdown, nil
}
