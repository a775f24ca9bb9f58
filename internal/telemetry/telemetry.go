// Package telemetry wires OpenTelemetry tracing and metrics for islandgreet.
//
// Metrics are exported in Prometheus format on the HTTP transport's /metrics
// route. Traces go to an OTLP collector when an endpoint is configured, to
// stdout when trace_stdout is set, and nowhere otherwise.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nadzzz/islandgreet/internal/config"
)

// Provider holds the configured providers and the metrics handler.
type Provider struct {
	Tracer trace.TracerProvider
	Meter  metric.MeterProvider

	// MetricsHandler serves the Prometheus exposition format. Nil when
	// metrics are disabled.
	MetricsHandler http.Handler

	shutdowns []func(context.Context) error
}

// Setup builds the trace and meter providers and installs them as the
// OpenTelemetry globals.
func Setup(ctx context.Context, cfg config.TelemetryConfig, environment string) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			attribute.String("deployment.environment", environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	p := &Provider{}
	if err := p.initTracer(ctx, cfg, res); err != nil {
		return nil, err
	}
	if err := p.initMetrics(cfg, res); err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(p.Tracer)
	otel.SetMeterProvider(p.Meter)
	return p, nil
}

// Shutdown flushes and stops every exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdowns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Provider) initTracer(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource) error {
	var exporter sdktrace.SpanExporter
	switch endpoint := strings.TrimSpace(cfg.OTLPEndpoint); {
	case endpoint != "":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("otlp trace exporter: %w", err)
		}
		exporter = exp
		slog.Info("tracing initialized", "exporter", "otlp", "endpoint", endpoint)
	case cfg.TraceStdout:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("stdout trace exporter: %w", err)
		}
		exporter = exp
		slog.Info("tracing initialized", "exporter", "stdout")
	default:
		p.Tracer = noop.NewTracerProvider()
		return nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	p.Tracer = tp
	p.shutdowns = append(p.shutdowns, tp.Shutdown)
	return nil
}

func (p *Provider) initMetrics(cfg config.TelemetryConfig, res *resource.Resource) error {
	if !cfg.Metrics {
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		p.Meter = mp
		p.shutdowns = append(p.shutdowns, mp.Shutdown)
		return nil
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	p.Meter = mp
	p.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	p.shutdowns = append(p.shutdowns, mp.Shutdown)
	return nil
}
