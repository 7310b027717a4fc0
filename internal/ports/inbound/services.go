package inbound

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/farmsync/internal/domain/entity"
)

// ErrFarmNotFound is returned when no aggregate is published for a farm.
var ErrFarmNotFound = errors.New("farm not found")

// FarmQueryService exposes published farm state to inbound adapters.
type FarmQueryService interface {
	// Ping reports whether the service is running.
	Ping(ctx context.Context) error

	// AccountFarms returns every published farm of the account.
	AccountFarms(chainID int64, account common.Address) []entity.UserFarmInfo

	// Farm returns one published farm of the account, or ErrFarmNotFound.
	Farm(key entity.FarmKey) (entity.UserFarmInfo, error)

	// IsStale reports whether info has missed enough refreshes to be shown
	// as stale.
	IsStale(info entity.UserFarmInfo) bool
}
