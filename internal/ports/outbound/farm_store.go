package outbound

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/farmsync/internal/domain/entity"
)

// FarmUpdate is emitted for every farm replaced in the store. Removed is set
// when the farm was dropped from the account's published set.
type FarmUpdate struct {
	Key     entity.FarmKey
	Info    entity.UserFarmInfo
	Removed bool
}

// FarmStore holds the published UserFarmInfo per (chain, account, farm).
// Writes replace whole values; readers receive copies.
type FarmStore interface {
	// ReplaceAccount atomically replaces every farm of the account with infos
	// and removes farms that are not present. An info whose Generation equals
	// the stored one is kept without emitting an update.
	ReplaceAccount(chainID int64, account common.Address, infos []entity.UserFarmInfo)

	// Get returns the published aggregate for one farm.
	Get(key entity.FarmKey) (entity.UserFarmInfo, bool)

	// Account returns every published farm of the account keyed by farm address.
	Account(chainID int64, account common.Address) map[common.Address]entity.UserFarmInfo

	// Subscribe registers a listener for updates. The returned function
	// cancels the subscription and closes the channel.
	Subscribe(buffer int) (<-chan FarmUpdate, func())
}
