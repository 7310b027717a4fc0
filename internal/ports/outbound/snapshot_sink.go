package outbound

import "context"

// SnapshotSink receives published farm updates for out-of-process consumers.
// Sinks are best effort: errors are logged by the caller and never affect
// reconciliation.
type SnapshotSink interface {
	Write(ctx context.Context, update FarmUpdate) error
	Name() string
}
