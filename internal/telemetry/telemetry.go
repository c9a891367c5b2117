// Package telemetry wires the payload manager's tracer and meter
// providers. Both are process-wide singletons by nature (every package
// that wants a span or a counter needs the same provider instance), but
// SPEC_FULL.md's design notes require that global state to go through
// an explicit init/shutdown lifecycle rather than be reachable before
// setup — so, unlike the teacher's own globals, there is no
// package-level var here a caller could read before Init runs.
//
// Grounded on cuemby-warren's pkg/metrics (prometheus.MustRegister +
// promhttp.Handler pattern for counters/histograms) and on the
// go.opentelemetry.io/otel/sdk dependency the teacher already carries
// (indirectly, via its dependency graph) for the tracer/meter provider
// construction itself, which has no teacher precedent to imitate and
// follows the upstream SDK's own documented setup sequence.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls which telemetry facilities Init brings up, mirroring
// the observability.* options in SPEC_FULL.md §6.5.
type Config struct {
	NodeID         string
	MetricsEnabled bool
	TracingEnabled bool
	OTLPEndpoint   string
}

// Provider owns the process's tracer and meter providers plus the
// Prometheus registry metrics are published through. Nothing in this
// package is reachable until Init returns one.
type Provider struct {
	registry *prometheus.Registry

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	Tracer trace.Tracer
	Meter  metric.Meter

	Metrics *Metrics
}

// Init constructs tracer and meter providers per cfg and registers them
// as the otel global providers, then builds the Prometheus-backed
// operation counters. Callers must call Shutdown before process exit to
// flush any buffered spans.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName("payloadmgr"),
		semconv.ServiceInstanceID(cfg.NodeID),
	))
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("building tracer provider: %w", err)
	}
	otel.SetTracerProvider(tp)

	registry := prometheus.NewRegistry()

	mp, err := newMeterProvider(cfg, res, registry)
	if err != nil {
		return nil, fmt.Errorf("building meter provider: %w", err)
	}
	otel.SetMeterProvider(mp)

	p := &Provider{
		registry:       registry,
		tracerProvider: tp,
		meterProvider:  mp,
		Tracer:         tp.Tracer("payloadmgr"),
		Meter:          mp.Meter("payloadmgr"),
		Metrics:        newMetrics(registry),
	}
	return p, nil
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.TracingEnabled && cfg.OTLPEndpoint != "" {
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("building OTLP trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	} else {
		// No exporter: spans are created (so instrumented code needs no
		// nil checks) but never leave the process.
		opts = append(opts, sdktrace.WithSampler(sdktrace.NeverSample()))
	}

	return sdktrace.NewTracerProvider(opts...), nil
}

func newMeterProvider(cfg Config, res *resource.Resource, registry *prometheus.Registry) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.MetricsEnabled {
		exp, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("building prometheus metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exp))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

// Handler serves the Prometheus exposition format over both the
// client_golang counters in Metrics and any otel metrics routed through
// the same registry.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the tracer and meter providers. Safe to
// call once; subsequent calls are no-ops per the underlying SDK.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down tracer provider: %w", err)
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down meter provider: %w", err)
	}
	return nil
}
