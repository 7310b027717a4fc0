// snapshot_sink.go provides an in-memory implementation of SnapshotSink.
//
// This adapter records every delivered FarmUpdate for tests and local runs:
//   - Updates(): all recorded updates
//   - UpdatesFor(): updates of one farm key
//   - OnWrite(): callback for test assertions
//   - FailWith(): make subsequent writes fail
//
// All operations are thread-safe.
package memory

import (
	"context"
	"sync"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/ports/outbound"
)

// Compile-time check that SnapshotSink implements outbound.SnapshotSink
var _ outbound.SnapshotSink = (*SnapshotSink)(nil)

// SnapshotSink is an in-memory implementation of the SnapshotSink port.
type SnapshotSink struct {
	mu      sync.RWMutex
	name    string
	updates []outbound.FarmUpdate
	err     error

	onWrite func(outbound.FarmUpdate)
}

// NewSnapshotSink creates a new in-memory sink.
func NewSnapshotSink(name string) *SnapshotSink {
	if name == "" {
		name = "memory"
	}
	return &SnapshotSink{
		name:    name,
		updates: make([]outbound.FarmUpdate, 0),
	}
}

// Name returns the sink name.
func (s *SnapshotSink) Name() string {
	return s.name
}

// Write records the update.
func (s *SnapshotSink) Write(ctx context.Context, update outbound.FarmUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, update)
	if s.onWrite != nil {
		s.onWrite(update)
	}
	return nil
}

// Updates returns all recorded updates.
func (s *SnapshotSink) Updates() []outbound.FarmUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]outbound.FarmUpdate, len(s.updates))
	copy(result, s.updates)
	return result
}

// UpdatesFor returns updates recorded for one farm key.
func (s *SnapshotSink) UpdatesFor(key entity.FarmKey) []outbound.FarmUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]outbound.FarmUpdate, 0)
	for _, u := range s.updates {
		if u.Key == key {
			result = append(result, u)
		}
	}
	return result
}

// OnWrite sets a callback invoked for every recorded update.
func (s *SnapshotSink) OnWrite(fn func(outbound.FarmUpdate)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = fn
}

// FailWith makes subsequent writes return err. A nil err restores writes.
func (s *SnapshotSink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
