package nakama

import (
	"context"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"battlearena/internal/config"
)

const serviceName = "battlearena"

// initTelemetry installs the global tracer provider when tracing is enabled. The returned
// function flushes and stops it.
func initTelemetry(ctx context.Context, logger runtime.Logger, cfg config.TelemetryConfig) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.Endpoint == "" {
		return nil, eris.New("trace export is enabled without an endpoint")
	}
	rate := cfg.SampleRate
	if rate < 0 || rate > 1 {
		return nil, eris.Errorf("trace sample rate must be between 0 and 1, got %f", rate)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, eris.Wrap(err, "failed to create otlp exporter")
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	otel.SetTracerProvider(provider)
	logger.Info("exporting traces to %s (sample rate %.2f)", cfg.Endpoint, rate)
	return provider.Shutdown, nil
}
