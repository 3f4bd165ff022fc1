package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency.
const (
	attrStatus = "status"
)

// Constants for metric label values.
const (
	// Discovery pass outcomes
	StatusSuccess = "success"
	StatusError   = "error"

	// Log entry outcomes at the filter stage
	EntryPassed   = "passed"
	EntryFiltered = "filtered"
)

// Metrics provides methods for recording pipeline observability metrics.
// All recording methods are safe to call on a nil receiver so that
// components can hold an optional *Metrics without guarding every call.
type Metrics struct {
	logEntriesTotal       metric.Int64Counter
	streamRetriesTotal    metric.Int64Counter
	systemEntriesDropped  metric.Int64Counter
	discoveryPassesTotal  metric.Int64Counter
	discoveryPassDuration metric.Float64Histogram
	activeStreamTasks     metric.Int64UpDownCounter
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.logEntriesTotal, err = meter.Int64Counter(
		"kubewake_log_entries_total",
		metric.WithDescription("Total number of log entries seen by the filter stage"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubewake_log_entries_total counter: %w", err)
	}

	m.streamRetriesTotal, err = meter.Int64Counter(
		"kubewake_stream_retries_total",
		metric.WithDescription("Total number of log stream retry attempts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubewake_stream_retries_total counter: %w", err)
	}

	m.systemEntriesDropped, err = meter.Int64Counter(
		"kubewake_system_entries_dropped_total",
		metric.WithDescription("Total number of synthetic system entries dropped due to backpressure"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubewake_system_entries_dropped_total counter: %w", err)
	}

	m.discoveryPassesTotal, err = meter.Int64Counter(
		"kubewake_discovery_passes_total",
		metric.WithDescription("Total number of pod discovery passes"),
		metric.WithUnit("{pass}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubewake_discovery_passes_total counter: %w", err)
	}

	m.discoveryPassDuration, err = meter.Float64Histogram(
		"kubewake_discovery_pass_duration_seconds",
		metric.WithDescription("Pod discovery pass duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubewake_discovery_pass_duration_seconds histogram: %w", err)
	}

	m.activeStreamTasks, err = meter.Int64UpDownCounter(
		"kubewake_active_stream_tasks",
		metric.WithDescription("Number of currently running container stream tasks"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubewake_active_stream_tasks gauge: %w", err)
	}

	return m, nil
}

// RecordLogEntry records one log entry passing the filter stage.
// Status should be EntryPassed or EntryFiltered.
func (m *Metrics) RecordLogEntry(ctx context.Context, status string) {
	if m == nil || m.logEntriesTotal == nil {
		return // Instrumentation not initialized
	}

	m.logEntriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}

// RecordStreamRetry records one retry attempt of a container stream task.
func (m *Metrics) RecordStreamRetry(ctx context.Context) {
	if m == nil || m.streamRetriesTotal == nil {
		return // Instrumentation not initialized
	}

	m.streamRetriesTotal.Add(ctx, 1)
}

// RecordSystemEntryDropped records a synthetic system entry dropped because
// the pipeline channel was full.
func (m *Metrics) RecordSystemEntryDropped(ctx context.Context) {
	if m == nil || m.systemEntriesDropped == nil {
		return // Instrumentation not initialized
	}

	m.systemEntriesDropped.Add(ctx, 1)
}

// RecordDiscoveryPass records one discovery pass with its outcome and duration.
// Status should be StatusSuccess or StatusError.
func (m *Metrics) RecordDiscoveryPass(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.discoveryPassesTotal == nil || m.discoveryPassDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.discoveryPassesTotal.Add(ctx, 1, attrs)
	m.discoveryPassDuration.Record(ctx, duration.Seconds(), attrs)
}

// IncrementActiveStreamTasks increments the active stream task counter.
func (m *Metrics) IncrementActiveStreamTasks(ctx context.Context) {
	if m == nil || m.activeStreamTasks == nil {
		return // Instrumentation not initialized
	}

	m.activeStreamTasks.Add(ctx, 1)
}

// DecrementActiveStreamTasks decrements the active stream task counter.
func (m *Metrics) DecrementActiveStreamTasks(ctx context.Context) {
	if m == nil || m.activeStreamTasks == nil {
		return // Instrumentation not initialized
	}

	m.activeStreamTasks.Add(ctx, -1)
}
