package entity

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FarmKey identifies one published UserFarmInfo.
type FarmKey struct {
	ChainID int64
	Account common.Address
	Farm    common.Address
}

// String returns the key as chainID:account:farm.
func (k FarmKey) String() string {
	return fmt.Sprintf("%d:%s:%s", k.ChainID, k.Account.Hex(), k.Farm.Hex())
}

// UserFarmInfo is the per-farm aggregate of one account's state. It is built
// once per reconciliation cycle and replaced as a whole, never patched.
type UserFarmInfo struct {
	ChainID int64
	Account common.Address
	Farm    common.Address

	// DepositedPositions holds every decoded position deposited into the farm,
	// including those that match no pid.
	DepositedPositions []NFTPosition
	JoinedPositions    map[uint64][]JoinedPosition
	PendingRewards     map[uint64]PendingReward

	// ErrorPositions are ids whose reward query failed to decode and need an
	// emergency withdraw.
	ErrorPositions []*big.Int

	// UndecodedPositions are deposited ids whose position details came back
	// but could not be decoded.
	UndecodedPositions []*big.Int

	Generation uint64
	UpdatedAt  time.Time
}

// NewUserFarmInfo returns an empty aggregate for the key.
func NewUserFarmInfo(key FarmKey) UserFarmInfo {
	return UserFarmInfo{
		ChainID:         key.ChainID,
		Account:         key.Account,
		Farm:            key.Farm,
		JoinedPositions: make(map[uint64][]JoinedPosition),
		PendingRewards:  make(map[uint64]PendingReward),
	}
}

// Key returns the store key of the aggregate.
func (u UserFarmInfo) Key() FarmKey {
	return FarmKey{ChainID: u.ChainID, Account: u.Account, Farm: u.Farm}
}

// DepositedIDs returns the ids of all deposited positions.
func (u UserFarmInfo) DepositedIDs() []*big.Int {
	ids := make([]*big.Int, 0, len(u.DepositedPositions))
	for _, p := range u.DepositedPositions {
		ids = append(ids, new(big.Int).Set(p.ID))
	}
	return ids
}

// HasErrorPosition reports whether id is flagged as an error position.
func (u UserFarmInfo) HasErrorPosition(id *big.Int) bool {
	for _, e := range u.ErrorPositions {
		if e.Cmp(id) == 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so readers never share big.Int pointers with the
// store.
func (u UserFarmInfo) Clone() UserFarmInfo {
	out := u
	out.DepositedPositions = make([]NFTPosition, len(u.DepositedPositions))
	for i, p := range u.DepositedPositions {
		out.DepositedPositions[i] = p.clone()
	}
	out.JoinedPositions = make(map[uint64][]JoinedPosition, len(u.JoinedPositions))
	for pid, jps := range u.JoinedPositions {
		cp := make([]JoinedPosition, len(jps))
		for i, jp := range jps {
			cp[i] = JoinedPosition{PID: jp.PID, Position: jp.Position.clone(), StakedLiquidity: cloneInt(jp.StakedLiquidity)}
		}
		out.JoinedPositions[pid] = cp
	}
	out.PendingRewards = make(map[uint64]PendingReward, len(u.PendingRewards))
	for pid, r := range u.PendingRewards {
		tokens := make([]common.Address, len(r.Tokens))
		copy(tokens, r.Tokens)
		amounts := make([]*big.Int, len(r.Amounts))
		for i, a := range r.Amounts {
			amounts[i] = cloneInt(a)
		}
		out.PendingRewards[pid] = PendingReward{PID: r.PID, Tokens: tokens, Amounts: amounts}
	}
	out.ErrorPositions = cloneInts(u.ErrorPositions)
	out.UndecodedPositions = cloneInts(u.UndecodedPositions)
	return out
}

func (p NFTPosition) clone() NFTPosition {
	p.ID = cloneInt(p.ID)
	p.Liquidity = cloneInt(p.Liquidity)
	return p
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneInts(in []*big.Int) []*big.Int {
	if in == nil {
		return nil
	}
	out := make([]*big.Int, len(in))
	for i, v := range in {
		out[i] = cloneInt(v)
	}
	return out
}

// positionJSON and friends render big integers as decimal strings.
type positionJSON struct {
	ID        string `json:"id"`
	Pool      string `json:"pool"`
	Token0    string `json:"token0"`
	Token1    string `json:"token1"`
	Fee       uint32 `json:"fee"`
	TickLower int32  `json:"tickLower"`
	TickUpper int32  `json:"tickUpper"`
	Liquidity string `json:"liquidity"`
}

type joinedJSON struct {
	ID              string `json:"id"`
	PID             uint64 `json:"pid"`
	StakedLiquidity string `json:"stakedLiquidity"`
	TickLower       int32  `json:"tickLower"`
	TickUpper       int32  `json:"tickUpper"`
}

type rewardJSON struct {
	PID     uint64            `json:"pid"`
	Amounts map[string]string `json:"amounts"`
}

type userFarmInfoJSON struct {
	ChainID            int64          `json:"chainId"`
	Account            string         `json:"account"`
	Farm               string         `json:"farm"`
	DepositedPositions []positionJSON `json:"depositedPositions"`
	JoinedPositions    []joinedJSON   `json:"joinedPositions"`
	PendingRewards     []rewardJSON   `json:"pendingRewards"`
	ErrorPositions     []string       `json:"errorPositions"`
	UndecodedPositions []string       `json:"undecodedPositions"`
	Generation         uint64         `json:"generation"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// MarshalJSON renders the aggregate with pids in ascending order so that the
// output is stable across cycles.
func (u UserFarmInfo) MarshalJSON() ([]byte, error) {
	out := userFarmInfoJSON{
		ChainID:            u.ChainID,
		Account:            u.Account.Hex(),
		Farm:               u.Farm.Hex(),
		DepositedPositions: make([]positionJSON, 0, len(u.DepositedPositions)),
		JoinedPositions:    []joinedJSON{},
		PendingRewards:     []rewardJSON{},
		ErrorPositions:     intStrings(u.ErrorPositions),
		UndecodedPositions: intStrings(u.UndecodedPositions),
		Generation:         u.Generation,
		UpdatedAt:          u.UpdatedAt,
	}
	for _, p := range u.DepositedPositions {
		out.DepositedPositions = append(out.DepositedPositions, positionJSON{
			ID:        intString(p.ID),
			Pool:      p.PoolAddress.Hex(),
			Token0:    p.Token0.Hex(),
			Token1:    p.Token1.Hex(),
			Fee:       p.Fee,
			TickLower: p.TickLower,
			TickUpper: p.TickUpper,
			Liquidity: intString(p.Liquidity),
		})
	}
	for _, pid := range sortedPIDs(u.JoinedPositions) {
		for _, jp := range u.JoinedPositions[pid] {
			out.JoinedPositions = append(out.JoinedPositions, joinedJSON{
				ID:              intString(jp.Position.ID),
				PID:             jp.PID,
				StakedLiquidity: intString(jp.StakedLiquidity),
				TickLower:       jp.Position.TickLower,
				TickUpper:       jp.Position.TickUpper,
			})
		}
	}
	for _, pid := range sortedPIDs(u.PendingRewards) {
		r := u.PendingRewards[pid]
		amounts := make(map[string]string, len(r.Tokens))
		for i, t := range r.Tokens {
			amounts[t.Hex()] = intString(r.Amounts[i])
		}
		out.PendingRewards = append(out.PendingRewards, rewardJSON{PID: pid, Amounts: amounts})
	}
	return json.Marshal(out)
}

func sortedPIDs[V any](m map[uint64]V) []uint64 {
	pids := make([]uint64, 0, len(m))
	for pid := range m {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func intStrings(in []*big.Int) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, intString(v))
	}
	return out
}

// SameContent reports whether u and o hold the same aggregate, ignoring
// Generation and UpdatedAt.
func (u UserFarmInfo) SameContent(o UserFarmInfo) bool {
	if u.Key() != o.Key() ||
		len(u.DepositedPositions) != len(o.DepositedPositions) ||
		len(u.JoinedPositions) != len(o.JoinedPositions) ||
		len(u.PendingRewards) != len(o.PendingRewards) ||
		!equalInts(u.ErrorPositions, o.ErrorPositions) ||
		!equalInts(u.UndecodedPositions, o.UndecodedPositions) {
		return false
	}
	for i := range u.DepositedPositions {
		if !u.DepositedPositions[i].equal(o.DepositedPositions[i]) {
			return false
		}
	}
	for pid, joined := range u.JoinedPositions {
		other, ok := o.JoinedPositions[pid]
		if !ok || len(joined) != len(other) {
			return false
		}
		for i := range joined {
			if joined[i].PID != other[i].PID ||
				!joined[i].Position.equal(other[i].Position) ||
				!equalInt(joined[i].StakedLiquidity, other[i].StakedLiquidity) {
				return false
			}
		}
	}
	for pid, r := range u.PendingRewards {
		other, ok := o.PendingRewards[pid]
		if !ok || r.PID != other.PID || len(r.Tokens) != len(other.Tokens) ||
			!equalInts(r.Amounts, other.Amounts) {
			return false
		}
		for i := range r.Tokens {
			if r.Tokens[i] != other.Tokens[i] {
				return false
			}
		}
	}
	return true
}

func (p NFTPosition) equal(o NFTPosition) bool {
	return equalInt(p.ID, o.ID) &&
		p.PoolAddress == o.PoolAddress &&
		p.Token0 == o.Token0 &&
		p.Token1 == o.Token1 &&
		p.Fee == o.Fee &&
		p.TickLower == o.TickLower &&
		p.TickUpper == o.TickUpper &&
		equalInt(p.Liquidity, o.Liquidity)
}

// equalInt treats nil as zero.
func equalInt(a, b *big.Int) bool {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	return a.Cmp(b) == 0
}

func equalInts(a, b []*big.Int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalInt(a[i], b[i]) {
			return false
		}
	}
	return true
}
