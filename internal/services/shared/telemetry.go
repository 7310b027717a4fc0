// Package shared provides shared instrumentation for application services.
package shared

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/archon-research/farmsync/internal/ports/outbound"
)

// Compile-time assertion that AppTelemetry implements ReconcilerMetrics.
var _ outbound.ReconcilerMetrics = (*AppTelemetry)(nil)

const (
	// instrumentationName is the name used for OpenTelemetry instrumentation.
	instrumentationName = "github.com/archon-research/farmsync/internal/services"
)

// AppTelemetry provides OpenTelemetry metrics for reconciliation events.
// Infrastructure concerns such as sink writes are tracked by the telemetry
// adapter instead.
type AppTelemetry struct {
	meter metric.Meter

	cyclesTotal        metric.Int64Counter
	cycleDuration      metric.Float64Histogram
	cyclesDiscarded    metric.Int64Counter
	batchFailures      metric.Int64Counter
	errorPositions     metric.Int64Counter
	malformedPositions metric.Int64Counter
}

// NewAppTelemetry creates a new AppTelemetry instance using the global meter
// provider.
func NewAppTelemetry() (*AppTelemetry, error) {
	return NewAppTelemetryWithProvider(otel.GetMeterProvider())
}

// NewAppTelemetryWithProvider creates a new AppTelemetry instance with a custom meter provider.
func NewAppTelemetryWithProvider(mp metric.MeterProvider) (*AppTelemetry, error) {
	meter := mp.Meter(instrumentationName)

	t := &AppTelemetry{
		meter: meter,
	}

	var err error

	t.cyclesTotal, err = meter.Int64Counter(
		"farmsync.cycles.total",
		metric.WithDescription("Total number of reconciliation cycles by outcome"),
	)
	if err != nil {
		return nil, err
	}

	t.cycleDuration, err = meter.Float64Histogram(
		"farmsync.cycle.duration",
		metric.WithDescription("Wall-clock duration of a reconciliation cycle"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	t.cyclesDiscarded, err = meter.Int64Counter(
		"farmsync.cycles.discarded",
		metric.WithDescription("Cycles whose result was dropped because a newer cycle had started"),
	)
	if err != nil {
		return nil, err
	}

	t.batchFailures, err = meter.Int64Counter(
		"farmsync.batch.failures",
		metric.WithDescription("Batch-level chain read failures by stage"),
	)
	if err != nil {
		return nil, err
	}

	t.errorPositions, err = meter.Int64Counter(
		"farmsync.positions.error",
		metric.WithDescription("Deposited positions whose reward query failed to decode"),
	)
	if err != nil {
		return nil, err
	}

	t.malformedPositions, err = meter.Int64Counter(
		"farmsync.positions.malformed",
		metric.WithDescription("Position details that came back but could not be decoded"),
	)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// RecordCycle records a finished cycle and its duration.
func (t *AppTelemetry) RecordCycle(ctx context.Context, chainID int64, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.Int64("chain.id", chainID),
		attribute.String("outcome", outcome),
	)
	t.cyclesTotal.Add(ctx, 1, attrs)
	t.cycleDuration.Record(ctx, duration.Seconds(), attrs)
	if outcome == "discarded" {
		t.cyclesDiscarded.Add(ctx, 1, metric.WithAttributes(attribute.Int64("chain.id", chainID)))
	}
}

// RecordBatchFailure records a degraded batch.
func (t *AppTelemetry) RecordBatchFailure(ctx context.Context, chainID int64, stage string) {
	t.batchFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.Int64("chain.id", chainID),
		attribute.String("stage", stage),
	))
}

// RecordErrorPositions records positions flagged for emergency withdraw.
func (t *AppTelemetry) RecordErrorPositions(ctx context.Context, chainID int64, count int) {
	t.errorPositions.Add(ctx, int64(count), metric.WithAttributes(attribute.Int64("chain.id", chainID)))
}

// RecordMalformedPositions records undecodable position details.
func (t *AppTelemetry) RecordMalformedPositions(ctx context.Context, chainID int64, count int) {
	t.malformedPositions.Add(ctx, int64(count), metric.WithAttributes(attribute.Int64("chain.id", chainID)))
}
