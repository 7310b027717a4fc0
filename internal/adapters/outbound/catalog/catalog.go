// Package catalog implements the FarmCatalog port: a YAML file catalog for
// static deployments and a GraphQL subgraph catalog for indexed farms.
package catalog

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/farmsync/internal/domain/entity"
)

// rawFarm is the wire shape shared by the file and subgraph catalogs.
type rawFarm struct {
	Address      string    `yaml:"address" json:"id"`
	RewardLocker string    `yaml:"rewardLocker" json:"rewardLocker"`
	Pools        []rawPool `yaml:"pools" json:"pools"`
}

type rawPool struct {
	PID          string   `yaml:"pid" json:"pid"`
	Pool         string   `yaml:"pool" json:"pool"`
	RewardTokens []string `yaml:"rewardTokens" json:"rewardTokens"`
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func (r rawFarm) toFarm() (entity.Farm, error) {
	addr, err := parseAddress("farm", r.Address)
	if err != nil {
		return entity.Farm{}, err
	}
	farm := entity.Farm{Address: addr}
	if r.RewardLocker != "" {
		if farm.RewardLocker, err = parseAddress("reward locker", r.RewardLocker); err != nil {
			return entity.Farm{}, err
		}
	}

	for _, p := range r.Pools {
		pid, err := strconv.ParseUint(p.PID, 10, 64)
		if err != nil {
			return entity.Farm{}, fmt.Errorf("farm %s: invalid pid %q: %w", r.Address, p.PID, err)
		}
		pool, err := parseAddress("pool", p.Pool)
		if err != nil {
			return entity.Farm{}, fmt.Errorf("farm %s pid %d: %w", r.Address, pid, err)
		}
		tokens := make([]common.Address, 0, len(p.RewardTokens))
		for _, t := range p.RewardTokens {
			token, err := parseAddress("reward token", t)
			if err != nil {
				return entity.Farm{}, fmt.Errorf("farm %s pid %d: %w", r.Address, pid, err)
			}
			tokens = append(tokens, token)
		}
		farm.Pools = append(farm.Pools, entity.FarmingPool{PID: pid, PoolAddress: pool, RewardTokens: tokens})
	}

	if err := farm.Validate(); err != nil {
		return entity.Farm{}, err
	}
	return farm, nil
}

func toFarms(raw []rawFarm) ([]entity.Farm, error) {
	farms := make([]entity.Farm, 0, len(raw))
	for _, r := range raw {
		f, err := r.toFarm()
		if err != nil {
			return nil, err
		}
		farms = append(farms, f)
	}
	return farms, nil
}
