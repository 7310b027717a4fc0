package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/farmsync/internal/ports/outbound"
)

var _ outbound.SinkMetrics = (*Metrics)(nil)

// Metrics implements the SinkMetrics interface using OpenTelemetry.
type Metrics struct {
	writeLatency metric.Float64Histogram
	writes       metric.Int64Counter
}

// NewMetrics creates a new OpenTelemetry sink metrics recorder.
// meterName should typically be the package name or service name.
func NewMetrics(meterName string) (*Metrics, error) {
	return NewMetricsWithProvider(otel.GetMeterProvider(), meterName)
}

// NewMetricsWithProvider creates a recorder on a custom meter provider.
func NewMetricsWithProvider(mp metric.MeterProvider, meterName string) (*Metrics, error) {
	meter := mp.Meter(meterName)

	latency, err := meter.Float64Histogram(
		"sink_write_duration_seconds",
		metric.WithDescription("Time taken to deliver a farm update to a snapshot sink"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sink_write_duration_seconds histogram: %w", err)
	}

	writes, err := meter.Int64Counter(
		"sink_writes_total",
		metric.WithDescription("Total number of snapshot sink writes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sink_writes_total counter: %w", err)
	}

	return &Metrics{
		writeLatency: latency,
		writes:       writes,
	}, nil
}

// RecordSinkWrite records one delivery attempt to a sink.
func (m *Metrics) RecordSinkWrite(ctx context.Context, sink string, duration time.Duration, status string) {
	attrs := metric.WithAttributes(
		attribute.String("sink", sink),
		attribute.String("status", status),
	)
	m.writeLatency.Record(ctx, duration.Seconds(), attrs)
	m.writes.Add(ctx, 1, attrs)
}
