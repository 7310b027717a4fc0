package farm_reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/ports/outbound"
)

// Cycle outcomes reported to ReconcilerMetrics.
const (
	OutcomePublished = "published"
	OutcomeDiscarded = "discarded"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
)

// Reconciler runs one reconciliation cycle.
type Reconciler interface {
	Reconcile(ctx context.Context, account common.Address) (*CycleResult, error)
}

var _ Reconciler = (*Engine)(nil)

// SchedulerConfig holds configuration for the Scheduler.
type SchedulerConfig struct {
	// ChainID is the chain the published state is keyed under.
	ChainID int64

	// Account is the initial account. Cycles are skipped while it is zero.
	Account common.Address

	// RefreshInterval is the fixed trigger interval.
	RefreshInterval time.Duration

	Logger *slog.Logger
}

// SchedulerConfigDefaults returns default configuration.
func SchedulerConfigDefaults() SchedulerConfig {
	return SchedulerConfig{
		ChainID:         1,
		RefreshInterval: 15 * time.Second,
		Logger:          slog.Default(),
	}
}

// Scheduler starts a cycle on every trigger and publishes a cycle's result
// only if no newer cycle has started since. Superseded cycles run to
// completion and their results are dropped.
type Scheduler struct {
	config  SchedulerConfig
	engine  Reconciler
	store   outbound.FarmStore
	metrics outbound.ReconcilerMetrics

	mu      sync.Mutex
	account common.Address
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool

	generation atomic.Uint64
	publishMu  sync.Mutex

	refreshMu sync.RWMutex
	refreshed map[entity.FarmKey]time.Time

	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewScheduler creates a new Scheduler. metrics may be nil.
func NewScheduler(config SchedulerConfig, engine Reconciler, store outbound.FarmStore, metrics outbound.ReconcilerMetrics) (*Scheduler, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}

	defaults := SchedulerConfigDefaults()
	if config.ChainID == 0 {
		config.ChainID = defaults.ChainID
	}
	if config.RefreshInterval == 0 {
		config.RefreshInterval = defaults.RefreshInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	s := &Scheduler{
		config:    config,
		engine:    engine,
		store:     store,
		metrics:   metrics,
		account:   config.Account,
		refreshed: make(map[entity.FarmKey]time.Time),
		logger:    config.Logger.With("component", "farm-scheduler", "chainID", config.ChainID),
	}
	// Generations are persisted by sinks that reject older ones, so a
	// restarted process must continue above everything it published before.
	s.generation.Store(uint64(time.Now().UnixNano()))
	return s, nil
}

// Start runs a cycle immediately and then one per RefreshInterval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run()

	s.logger.Info("farm scheduler started", "refreshInterval", s.config.RefreshInterval)
	return nil
}

// Stop cancels in-flight cycles and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("farm scheduler stopped")
	return nil
}

// RunOnce runs one cycle synchronously for the current account.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	account := s.Account()
	if account == (common.Address{}) {
		return fmt.Errorf("account is required")
	}
	return s.runCycle(ctx, s.generation.Add(1), account, "manual")
}

// SetAccount switches the reconciled account and starts a cycle for it.
func (s *Scheduler) SetAccount(account common.Address) {
	s.mu.Lock()
	if s.account == account {
		s.mu.Unlock()
		return
	}
	s.account = account
	s.mu.Unlock()

	s.logger.Info("account changed", "account", account.Hex())
	s.trigger("account")
}

// NotifyCatalogChanged starts a cycle after the farm catalog changed.
func (s *Scheduler) NotifyCatalogChanged() {
	s.trigger("catalog")
}

// Account returns the account being reconciled.
func (s *Scheduler) Account() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// Running reports whether Start was called and Stop was not.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil && !s.stopped
}

// Generation returns the generation of the most recently started cycle.
// Generations start from the wall clock at construction and only grow.
func (s *Scheduler) Generation() uint64 {
	return s.generation.Load()
}

// LastRefreshed returns when key was last confirmed by a published cycle,
// whether or not its content changed.
func (s *Scheduler) LastRefreshed(key entity.FarmKey) (time.Time, bool) {
	s.refreshMu.RLock()
	defer s.refreshMu.RUnlock()
	at, ok := s.refreshed[key]
	return at, ok
}

// RefreshInterval returns the configured trigger interval.
func (s *Scheduler) RefreshInterval() time.Duration {
	return s.config.RefreshInterval
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	s.trigger("start")

	ticker := time.NewTicker(s.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.trigger("interval")
		}
	}
}

// trigger starts a cycle in its own goroutine. It is a no-op before Start,
// after Stop, or while no account is set.
func (s *Scheduler) trigger(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil || s.stopped {
		return
	}
	if s.account == (common.Address{}) {
		s.logger.Debug("no account set, skipping cycle", "reason", reason)
		return
	}

	gen := s.generation.Add(1)
	ctx, account := s.ctx, s.account
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.runCycle(ctx, gen, account, reason)
	}()
}

func (s *Scheduler) runCycle(ctx context.Context, gen uint64, account common.Address, reason string) error {
	start := time.Now()

	result, err := s.engine.Reconcile(ctx, account)
	if err != nil {
		s.metrics.RecordCycle(ctx, s.config.ChainID, OutcomeFailed, time.Since(start))
		s.logger.Warn("reconciliation cycle failed, keeping published state",
			"generation", gen,
			"reason", reason,
			"account", account.Hex(),
			"error", err)
		return fmt.Errorf("failed to reconcile generation %d: %w", gen, err)
	}

	outcome := s.publish(gen, account, result)
	duration := time.Since(start)
	s.metrics.RecordCycle(ctx, s.config.ChainID, outcome, duration)

	if outcome == OutcomeDiscarded {
		s.logger.Debug("discarding superseded cycle result",
			"generation", gen,
			"latest", s.generation.Load(),
			"reason", reason)
		return nil
	}
	s.logger.Info("cycle published",
		"generation", gen,
		"reason", reason,
		"outcome", outcome,
		"farms", len(result.Farms),
		"untouched", len(result.Untouched),
		"duration", duration)
	return nil
}

// publish commits result if gen is still the latest started cycle and the
// account has not changed. A farm whose content is unchanged keeps its
// previous value, Generation and UpdatedAt included, so repeated cycles
// publish identical values and emit no updates. Untouched farms keep their
// previous value; farms gone from the catalog are removed.
func (s *Scheduler) publish(gen uint64, account common.Address, result *CycleResult) string {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	if gen != s.generation.Load() || account != s.Account() {
		return OutcomeDiscarded
	}

	now := time.Now().UTC()
	refreshed := make(map[entity.FarmKey]time.Time, len(result.Farms))

	if result.Empty {
		s.store.ReplaceAccount(s.config.ChainID, account, nil)
		s.setRefreshed(refreshed)
		return OutcomeEmpty
	}

	previous := s.store.Account(s.config.ChainID, account)

	infos := make([]entity.UserFarmInfo, 0, len(result.Farms)+len(result.Untouched))
	for _, info := range result.Farms {
		if prev, ok := previous[info.Farm]; ok && prev.SameContent(info) {
			info = prev
		} else {
			info.Generation = gen
			info.UpdatedAt = now
		}
		refreshed[info.Key()] = now
		infos = append(infos, info)
	}
	for _, farm := range result.Untouched {
		prev, ok := previous[farm]
		if !ok {
			continue
		}
		infos = append(infos, prev)
		if at, ok := s.LastRefreshed(prev.Key()); ok {
			refreshed[prev.Key()] = at
		}
	}

	s.store.ReplaceAccount(s.config.ChainID, account, infos)
	s.setRefreshed(refreshed)
	return OutcomePublished
}

func (s *Scheduler) setRefreshed(refreshed map[entity.FarmKey]time.Time) {
	s.refreshMu.Lock()
	s.refreshed = refreshed
	s.refreshMu.Unlock()
}
