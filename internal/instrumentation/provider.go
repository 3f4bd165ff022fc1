package instrumentation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// meterName identifies the instrumentation scope for all pipeline metrics.
const meterName = "github.com/kubewake/kubewake"

// Provider owns the OpenTelemetry meter provider, its Prometheus exporter
// and the Metrics instruments recorded by the pipeline.
//
// A zero Provider (or one built from a disabled Config) is valid: Enabled
// reports false, Metrics returns nil and Shutdown is a no-op. Components
// therefore never need to special-case disabled instrumentation.
type Provider struct {
	config        Config
	meterProvider *sdkmetric.MeterProvider
	metrics       *Metrics
	registry      *prometheus.Registry
}

// NewProvider creates an instrumentation provider from the given config.
// When the config is disabled the returned provider is inert.
func NewProvider(_ context.Context, config Config) (*Provider, error) {
	if !config.Enabled {
		return &Provider{config: config}, nil
	}

	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", config.ServiceName),
		attribute.String("service.version", config.ServiceVersion),
	)

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	metrics, err := NewMetrics(meterProvider.Meter(meterName))
	if err != nil {
		shutdownErr := meterProvider.Shutdown(context.Background())
		if shutdownErr != nil {
			return nil, fmt.Errorf("failed to create metrics: %w (shutdown also failed: %v)", err, shutdownErr)
		}
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	return &Provider{
		config:        config,
		meterProvider: meterProvider,
		metrics:       metrics,
		registry:      registry,
	}, nil
}

// Enabled reports whether instrumentation is active.
func (p *Provider) Enabled() bool {
	return p != nil && p.config.Enabled && p.meterProvider != nil
}

// Metrics returns the pipeline metrics, or nil when disabled.
func (p *Provider) Metrics() *Metrics {
	if p == nil {
		return nil
	}
	return p.metrics
}

// Handler returns an HTTP handler serving the Prometheus scrape endpoint,
// or nil when instrumentation is disabled.
func (p *Provider) Handler() http.Handler {
	if !p.Enabled() {
		return nil
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}
