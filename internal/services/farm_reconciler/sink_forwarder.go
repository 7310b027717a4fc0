package farm_reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/archon-research/farmsync/internal/ports/outbound"
)

// SinkForwarderConfig holds configuration for the SinkForwarder.
type SinkForwarderConfig struct {
	// Buffer is the store subscription buffer.
	Buffer int

	// WriteTimeout bounds each sink write.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// SinkForwarderConfigDefaults returns default configuration.
func SinkForwarderConfigDefaults() SinkForwarderConfig {
	return SinkForwarderConfig{
		Buffer:       256,
		WriteTimeout: 5 * time.Second,
		Logger:       slog.Default(),
	}
}

// SinkForwarder fans store updates out to snapshot sinks. Sinks are best
// effort: a failing sink is logged and never blocks reconciliation.
type SinkForwarder struct {
	config  SinkForwarderConfig
	store   outbound.FarmStore
	sinks   []outbound.SnapshotSink
	metrics outbound.SinkMetrics

	cancel context.CancelFunc
	unsub  func()
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewSinkForwarder creates a new SinkForwarder. metrics may be nil.
func NewSinkForwarder(config SinkForwarderConfig, store outbound.FarmStore, sinks []outbound.SnapshotSink, metrics outbound.SinkMetrics) (*SinkForwarder, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	defaults := SinkForwarderConfigDefaults()
	if config.Buffer == 0 {
		config.Buffer = defaults.Buffer
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &SinkForwarder{
		config:  config,
		store:   store,
		sinks:   sinks,
		metrics: metrics,
		logger:  config.Logger.With("component", "sink-forwarder"),
	}, nil
}

// Start subscribes to the store and forwards updates until Stop.
func (f *SinkForwarder) Start(ctx context.Context) error {
	if len(f.sinks) == 0 {
		f.logger.Info("no snapshot sinks configured")
		return nil
	}

	ctx, f.cancel = context.WithCancel(ctx)
	updates, unsub := f.store.Subscribe(f.config.Buffer)
	f.unsub = unsub

	f.wg.Add(1)
	go f.run(ctx, updates)

	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	f.logger.Info("sink forwarder started", "sinks", names)
	return nil
}

// Stop unsubscribes and waits for in-flight writes.
func (f *SinkForwarder) Stop() error {
	if f.unsub != nil {
		f.unsub()
	}
	f.wg.Wait()
	if f.cancel != nil {
		f.cancel()
	}
	return nil
}

func (f *SinkForwarder) run(ctx context.Context, updates <-chan outbound.FarmUpdate) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			f.Forward(ctx, update)
		}
	}
}

// Forward writes one update to every sink concurrently and waits for all of
// them. Errors are logged and recorded, not returned.
func (f *SinkForwarder) Forward(ctx context.Context, update outbound.FarmUpdate) {
	var g errgroup.Group
	for _, sink := range f.sinks {
		g.Go(func() error {
			writeCtx, cancel := context.WithTimeout(ctx, f.config.WriteTimeout)
			defer cancel()

			start := time.Now()
			err := sink.Write(writeCtx, update)
			status := "ok"
			if err != nil {
				status = "error"
				f.logger.Warn("snapshot sink write failed",
					"sink", sink.Name(),
					"key", update.Key.String(),
					"removed", update.Removed,
					"error", err)
			}
			if f.metrics != nil {
				f.metrics.RecordSinkWrite(ctx, sink.Name(), time.Since(start), status)
			}
			return nil
		})
	}
	_ = g.Wait()
}
