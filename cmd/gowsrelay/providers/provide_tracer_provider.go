package providers

import (
	"context"

	"github.com/gbdevw/gowsrelay/configuration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

// Name used to identify the service in traces.
const serviceName = "gowsrelay"

// # Description
//
// Configure an OTLP HTTP exporter when tracing is enabled and register the tracer provider as the
// global one. The provider is flushed and shut down when the application stops.
//
// When tracing is disabled, the global tracer provider is returned as-is.
func ProvideTracerProvider(lc fx.Lifecycle, cfg configuration.Configuration) (trace.TracerProvider, error) {
	if !cfg.TracingEnabled {
		// Global tracer provider returns no-op tracers unless configured elsewhere
		return otel.GetTracerProvider(), nil
	}
	exp, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(cfg.TracingEndpoint),
		otlptracehttp.WithInsecure())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}
