package farm_reconciler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/ports/inbound"
	"github.com/archon-research/farmsync/internal/ports/outbound"
)

var _ inbound.FarmQueryService = (*Service)(nil)

// ServiceConfig holds configuration for the query Service.
type ServiceConfig struct {
	// StaleAfterCycles is how many missed refreshes mark a farm as stale.
	StaleAfterCycles int

	Logger *slog.Logger
}

// ServiceConfigDefaults returns default configuration.
func ServiceConfigDefaults() ServiceConfig {
	return ServiceConfig{
		StaleAfterCycles: 3,
		Logger:           slog.Default(),
	}
}

// Service answers queries against the published farm state of the scheduler.
type Service struct {
	config    ServiceConfig
	store     outbound.FarmStore
	scheduler *Scheduler
	now       func() time.Time
	logger    *slog.Logger
}

// NewService creates a new query Service.
func NewService(config ServiceConfig, store outbound.FarmStore, scheduler *Scheduler) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}

	defaults := ServiceConfigDefaults()
	if config.StaleAfterCycles == 0 {
		config.StaleAfterCycles = defaults.StaleAfterCycles
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config:    config,
		store:     store,
		scheduler: scheduler,
		now:       time.Now,
		logger:    config.Logger.With("component", "farm-query-service"),
	}, nil
}

// Ping reports an error when the scheduler is not running.
func (s *Service) Ping(ctx context.Context) error {
	if !s.scheduler.Running() {
		return fmt.Errorf("scheduler is not running")
	}
	return ctx.Err()
}

// AccountFarms returns every published farm of the account ordered by farm
// address.
func (s *Service) AccountFarms(chainID int64, account common.Address) []entity.UserFarmInfo {
	farms := s.store.Account(chainID, account)
	out := make([]entity.UserFarmInfo, 0, len(farms))
	for _, info := range farms {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Farm.Bytes(), out[j].Farm.Bytes()) < 0
	})
	return out
}

// Farm returns one published farm.
func (s *Service) Farm(key entity.FarmKey) (entity.UserFarmInfo, error) {
	info, ok := s.store.Get(key)
	if !ok {
		return entity.UserFarmInfo{}, fmt.Errorf("%w: %s", inbound.ErrFarmNotFound, key)
	}
	return info, nil
}

// IsStale reports whether info has missed StaleAfterCycles refreshes. A farm
// confirmed by a recent cycle is fresh even when its content is older.
func (s *Service) IsStale(info entity.UserFarmInfo) bool {
	last, ok := s.scheduler.LastRefreshed(info.Key())
	if !ok {
		last = info.UpdatedAt
	}
	if last.IsZero() {
		return true
	}
	window := time.Duration(s.config.StaleAfterCycles) * s.scheduler.RefreshInterval()
	return s.now().Sub(last) > window
}
