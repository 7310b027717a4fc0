package entity

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Farm is a reward-distribution contract that lets users stake liquidity
// positions against one or more pools. Farms are loaded from the catalog and
// are never mutated by the reconciler.
type Farm struct {
	Address      common.Address
	RewardLocker common.Address
	Pools        []FarmingPool
}

// FarmingPool is one reward-pool slot (pid) within a Farm.
type FarmingPool struct {
	PID          uint64
	PoolAddress  common.Address
	RewardTokens []common.Address
}

// Validate checks that the farm is well formed: a non-zero address and pids
// that are unique within the farm.
func (f Farm) Validate() error {
	if f.Address == (common.Address{}) {
		return fmt.Errorf("farm address must not be zero")
	}
	seen := make(map[uint64]struct{}, len(f.Pools))
	for _, p := range f.Pools {
		if _, dup := seen[p.PID]; dup {
			return fmt.Errorf("farm %s: duplicate pid %d", f.Address.Hex(), p.PID)
		}
		seen[p.PID] = struct{}{}
		if p.PoolAddress == (common.Address{}) {
			return fmt.Errorf("farm %s: pid %d has zero pool address", f.Address.Hex(), p.PID)
		}
	}
	return nil
}

// PoolsFor returns every FarmingPool of the farm tracking the given pool
// address, in catalog order.
func (f Farm) PoolsFor(pool common.Address) []FarmingPool {
	var out []FarmingPool
	for _, p := range f.Pools {
		if p.PoolAddress == pool {
			out = append(out, p)
		}
	}
	return out
}

// Pool returns the FarmingPool with the given pid.
func (f Farm) Pool(pid uint64) (FarmingPool, bool) {
	for _, p := range f.Pools {
		if p.PID == pid {
			return p, true
		}
	}
	return FarmingPool{}, false
}

// NFTPosition is one concentrated-liquidity position decoded from the
// position manager.
type NFTPosition struct {
	ID          *big.Int
	PoolAddress common.Address
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickLower   int32
	TickUpper   int32
	Liquidity   *big.Int
}

// JoinedPosition is an NFTPosition staked into a specific pid. StakedLiquidity
// is what the farm reports, which can differ from the raw position liquidity
// after a partial unstake.
type JoinedPosition struct {
	Position        NFTPosition
	PID             uint64
	StakedLiquidity *big.Int
}

// PendingReward holds the unclaimed rewards of one pid. Tokens mirrors the
// FarmingPool's RewardTokens; Amounts is index-aligned with Tokens.
type PendingReward struct {
	PID     uint64
	Tokens  []common.Address
	Amounts []*big.Int
}

// NewPendingReward returns a zeroed PendingReward for the pool.
func NewPendingReward(pool FarmingPool) PendingReward {
	tokens := make([]common.Address, len(pool.RewardTokens))
	copy(tokens, pool.RewardTokens)
	amounts := make([]*big.Int, len(tokens))
	for i := range amounts {
		amounts[i] = new(big.Int)
	}
	return PendingReward{PID: pool.PID, Tokens: tokens, Amounts: amounts}
}

// Add accumulates amounts into the reward. amounts must line up with the
// declared token list; on a length mismatch the reward is left unchanged.
// A nil amount counts as zero.
func (r PendingReward) Add(amounts []*big.Int) error {
	if len(amounts) != len(r.Amounts) {
		return fmt.Errorf("pid %d: got %d reward amounts for %d reward tokens", r.PID, len(amounts), len(r.Amounts))
	}
	for i, amount := range amounts {
		if amount == nil {
			continue
		}
		r.Amounts[i].Add(r.Amounts[i], amount)
	}
	return nil
}

// AmountOf returns the pending amount of token, or zero when the pid does not
// reward that token.
func (r PendingReward) AmountOf(token common.Address) *big.Int {
	for i, t := range r.Tokens {
		if t == token {
			return new(big.Int).Set(r.Amounts[i])
		}
	}
	return new(big.Int)
}
