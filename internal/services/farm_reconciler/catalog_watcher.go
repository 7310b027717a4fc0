package farm_reconciler

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/ports/outbound"
)

// CatalogListener is notified when the farm catalog content changes.
type CatalogListener interface {
	NotifyCatalogChanged()
}

var _ CatalogListener = (*Scheduler)(nil)

// CatalogWatcherConfig holds configuration for the CatalogWatcher.
type CatalogWatcherConfig struct {
	ChainID      int64
	PollInterval time.Duration
	Logger       *slog.Logger
}

// CatalogWatcherConfigDefaults returns default configuration.
func CatalogWatcherConfigDefaults() CatalogWatcherConfig {
	return CatalogWatcherConfig{
		ChainID:      1,
		PollInterval: time.Minute,
		Logger:       slog.Default(),
	}
}

// CatalogWatcher polls the farm catalog and notifies the listener when its
// fingerprint changes.
type CatalogWatcher struct {
	config   CatalogWatcherConfig
	catalog  outbound.FarmCatalog
	listener CatalogListener

	mu          sync.Mutex
	fingerprint [32]byte
	seen        bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewCatalogWatcher creates a new CatalogWatcher.
func NewCatalogWatcher(config CatalogWatcherConfig, catalog outbound.FarmCatalog, listener CatalogListener) (*CatalogWatcher, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if listener == nil {
		return nil, fmt.Errorf("listener is required")
	}

	defaults := CatalogWatcherConfigDefaults()
	if config.ChainID == 0 {
		config.ChainID = defaults.ChainID
	}
	if config.PollInterval == 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &CatalogWatcher{
		config:   config,
		catalog:  catalog,
		listener: listener,
		logger:   config.Logger.With("component", "catalog-watcher", "chainID", config.ChainID),
	}, nil
}

// Start polls the catalog until Stop.
func (w *CatalogWatcher) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("catalog watcher started", "pollInterval", w.config.PollInterval)
	return nil
}

// Stop stops polling.
func (w *CatalogWatcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return nil
}

func (w *CatalogWatcher) run() {
	defer w.wg.Done()

	if _, err := w.Check(w.ctx); err != nil {
		w.logger.Warn("initial catalog check failed", "error", err)
	}

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Check(w.ctx); err != nil {
				w.logger.Warn("catalog check failed", "error", err)
			}
		}
	}
}

// Check reads the catalog once and reports whether it changed since the last
// successful check. The first check only records a baseline.
func (w *CatalogWatcher) Check(ctx context.Context) (bool, error) {
	farms, err := w.catalog.Farms(ctx, w.config.ChainID)
	if err != nil {
		return false, fmt.Errorf("failed to read farm catalog: %w", err)
	}
	fp := CatalogFingerprint(farms)

	w.mu.Lock()
	changed := w.seen && fp != w.fingerprint
	w.fingerprint = fp
	w.seen = true
	w.mu.Unlock()

	if changed {
		w.logger.Info("farm catalog changed", "farms", len(farms))
		w.listener.NotifyCatalogChanged()
	}
	return changed, nil
}

// CatalogFingerprint hashes the catalog in its given order.
func CatalogFingerprint(farms []entity.Farm) [32]byte {
	h := sha256.New()
	var buf [8]byte
	writeLen := func(n int) {
		binary.BigEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}

	writeLen(len(farms))
	for _, f := range farms {
		h.Write(f.Address.Bytes())
		h.Write(f.RewardLocker.Bytes())
		writeLen(len(f.Pools))
		for _, p := range f.Pools {
			binary.BigEndian.PutUint64(buf[:], p.PID)
			h.Write(buf[:])
			h.Write(p.PoolAddress.Bytes())
			writeLen(len(p.RewardTokens))
			for _, t := range p.RewardTokens {
				h.Write(t.Bytes())
			}
		}
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
