package testutil

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/farmsync/internal/pkg/blockchain/abis"
)

// PositionFixture describes a position manager positions(id) response.
type PositionFixture struct {
	Token0    common.Address
	Token1    common.Address
	Fee       uint32
	TickLower int32
	TickUpper int32
	Liquidity *big.Int
}

// UserInfoFixture describes a farm getUserInfo(nftId, pid) response.
type UserInfoFixture struct {
	Liquidity *big.Int
	Rewards   []*big.Int
}

// EncodePosition ABI-encodes p as positions() return data.
func EncodePosition(p PositionFixture) ([]byte, error) {
	pmABI, err := abis.GetPositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("loading position manager ABI: %w", err)
	}
	liquidity := p.Liquidity
	if liquidity == nil {
		liquidity = new(big.Int)
	}
	return pmABI.Methods["positions"].Outputs.Pack(
		new(big.Int),
		common.Address{},
		p.Token0,
		p.Token1,
		new(big.Int).SetUint64(uint64(p.Fee)),
		big.NewInt(int64(p.TickLower)),
		big.NewInt(int64(p.TickUpper)),
		liquidity,
		new(big.Int),
		new(big.Int),
		new(big.Int),
		new(big.Int),
	)
}

// EncodeUserInfo ABI-encodes u as getUserInfo() return data. rewardLast is
// packed as zeros of the same length.
func EncodeUserInfo(u UserInfoFixture) ([]byte, error) {
	farmABI, err := abis.GetFarmABI()
	if err != nil {
		return nil, fmt.Errorf("loading farm ABI: %w", err)
	}
	liquidity := u.Liquidity
	if liquidity == nil {
		liquidity = new(big.Int)
	}
	rewards := u.Rewards
	if rewards == nil {
		rewards = []*big.Int{}
	}
	last := make([]*big.Int, len(rewards))
	for i := range last {
		last[i] = new(big.Int)
	}
	return farmABI.Methods["getUserInfo"].Outputs.Pack(liquidity, rewards, last)
}

// EncodeDepositedNFTs ABI-encodes ids as getDepositedNFTs() return data.
func EncodeDepositedNFTs(ids []*big.Int) ([]byte, error) {
	farmABI, err := abis.GetFarmABI()
	if err != nil {
		return nil, fmt.Errorf("loading farm ABI: %w", err)
	}
	if ids == nil {
		ids = []*big.Int{}
	}
	return farmABI.Methods["getDepositedNFTs"].Outputs.Pack(ids)
}

// PackPosition ABI-encodes p as positions() return data.
func PackPosition(t *testing.T, p PositionFixture) []byte {
	t.Helper()
	data, err := EncodePosition(p)
	if err != nil {
		t.Fatalf("packing position: %v", err)
	}
	return data
}

// PackUserInfo ABI-encodes u as getUserInfo() return data.
func PackUserInfo(t *testing.T, u UserInfoFixture) []byte {
	t.Helper()
	data, err := EncodeUserInfo(u)
	if err != nil {
		t.Fatalf("packing user info: %v", err)
	}
	return data
}

// PackDepositedNFTs ABI-encodes ids as getDepositedNFTs() return data.
func PackDepositedNFTs(t *testing.T, ids []*big.Int) []byte {
	t.Helper()
	data, err := EncodeDepositedNFTs(ids)
	if err != nil {
		t.Fatalf("packing deposited NFTs: %v", err)
	}
	return data
}
