// Package outbound defines the outbound port interfaces.
package outbound

import (
	"context"
	"time"
)

// ReconcilerMetrics lets the reconciler record cycle outcomes without
// depending on a telemetry implementation.
type ReconcilerMetrics interface {
	// RecordCycle records a finished cycle. outcome is one of "published",
	// "discarded", "empty" or "failed".
	RecordCycle(ctx context.Context, chainID int64, outcome string, duration time.Duration)

	// RecordBatchFailure records a batch-level failure of one engine stage.
	RecordBatchFailure(ctx context.Context, chainID int64, stage string)

	// RecordErrorPositions records ids that failed reward decoding.
	RecordErrorPositions(ctx context.Context, chainID int64, count int)

	// RecordMalformedPositions records position details that failed to decode.
	RecordMalformedPositions(ctx context.Context, chainID int64, count int)
}

// SinkMetrics records snapshot sink deliveries.
type SinkMetrics interface {
	RecordSinkWrite(ctx context.Context, sink string, duration time.Duration, status string)
}
