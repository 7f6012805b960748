// Package observe wires OpenTelemetry metrics and tracing for the voice
// pipeline. Metrics are exported through the Prometheus bridge so the
// server can expose them on /metrics; traces use the SDK tracer provider
// with a configurable sampler.
package observe

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig controls how the metric and trace providers are built.
type ProviderConfig struct {
	// ServiceName identifies this process in exported telemetry.
	// Defaults to "lumid".
	ServiceName string
	// ServiceVersion is attached as a resource attribute when set.
	ServiceVersion string
	// Registerer receives the bridged Prometheus collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// SampleRatio sets the trace sampling ratio in [0, 1]. Zero disables
	// tracing entirely, one traces every request.
	SampleRatio float64
}

// Provider holds the initialized telemetry providers and their shutdown.
type Provider struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider

	shutdowns []func(context.Context) error
}

// InitProvider builds the OTel meter and tracer providers, registers them
// globally and returns a Provider whose Shutdown flushes both.
func InitProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "lumid"
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}

	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(cfg.ServiceVersion)))
	}
	res, err := resource.New(context.Background(), attrs...)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(cfg.Registerer))
	if err != nil {
		return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
	}

	p := &Provider{}

	p.MeterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(p.MeterProvider)
	p.shutdowns = append(p.shutdowns, p.MeterProvider.Shutdown)

	sampler := sdktrace.NeverSample()
	if cfg.SampleRatio > 0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}
	p.TracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(p.TracerProvider)
	p.shutdowns = append(p.shutdowns, p.TracerProvider.Shutdown)

	return p, nil
}

// Shutdown flushes and stops all providers, joining any errors.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdowns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
