// Package instrumentation provides OpenTelemetry-based metrics for the
// log-tailing pipeline, exported in Prometheus format.
//
// The package is built around three types:
//
//   - Config: environment-driven configuration (INSTRUMENTATION_ENABLED,
//     METRICS_ADDR, PROMETHEUS_ENDPOINT)
//   - Provider: owns the meter provider, the Prometheus registry and the
//     scrape endpoint handler
//   - Metrics: nil-safe recorders for the pipeline's counters and histograms
//
// Typical usage:
//
//	config := instrumentation.DefaultConfig()
//	config.ServiceVersion = version
//	provider, err := instrumentation.NewProvider(ctx, config)
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(context.Background())
//
//	metrics := provider.Metrics() // nil when disabled, safe to pass around
//	metrics.RecordDiscoveryPass(ctx, instrumentation.StatusSuccess, elapsed)
//
// Instrumentation is disabled by default; the zero overhead path is a nil
// *Metrics whose recording methods return immediately.
package instrumentation
