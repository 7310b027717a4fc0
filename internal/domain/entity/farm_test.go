package entity

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	farmAddr = common.HexToAddress("0x00000000000000000000000000000000000f4a01")
	poolA    = common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")
	poolB    = common.HexToAddress("0x8ad599c3A0ff1De082011EFDDc58f1908eb6e6D8")
	tokenX   = common.HexToAddress("0x000000000000000000000000000000000000aa01")
	tokenY   = common.HexToAddress("0x000000000000000000000000000000000000aa02")
)

func TestFarm_Validate(t *testing.T) {
	tests := []struct {
		name    string
		farm    Farm
		wantErr string
	}{
		{
			name: "valid",
			farm: Farm{Address: farmAddr, Pools: []FarmingPool{{PID: 0, PoolAddress: poolA}, {PID: 1, PoolAddress: poolA}}},
		},
		{
			name:    "zero address",
			farm:    Farm{},
			wantErr: "must not be zero",
		},
		{
			name:    "duplicate pid",
			farm:    Farm{Address: farmAddr, Pools: []FarmingPool{{PID: 2, PoolAddress: poolA}, {PID: 2, PoolAddress: poolB}}},
			wantErr: "duplicate pid 2",
		},
		{
			name:    "zero pool",
			farm:    Farm{Address: farmAddr, Pools: []FarmingPool{{PID: 0}}},
			wantErr: "zero pool address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.farm.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestFarm_PoolsFor(t *testing.T) {
	f := Farm{Address: farmAddr, Pools: []FarmingPool{
		{PID: 0, PoolAddress: poolA},
		{PID: 1, PoolAddress: poolB},
		{PID: 2, PoolAddress: poolA},
	}}

	got := f.PoolsFor(poolA)
	if len(got) != 2 || got[0].PID != 0 || got[1].PID != 2 {
		t.Errorf("PoolsFor(poolA) = %+v, want pids 0 and 2", got)
	}
	if got := f.PoolsFor(tokenX); len(got) != 0 {
		t.Errorf("PoolsFor(unknown) = %+v, want none", got)
	}

	if p, ok := f.Pool(1); !ok || p.PoolAddress != poolB {
		t.Errorf("Pool(1) = %+v, %v", p, ok)
	}
	if _, ok := f.Pool(9); ok {
		t.Error("Pool(9) should not exist")
	}
}

func TestPendingReward_Add(t *testing.T) {
	r := NewPendingReward(FarmingPool{PID: 3, RewardTokens: []common.Address{tokenX, tokenY}})

	if err := r.Add([]*big.Int{big.NewInt(100), big.NewInt(5)}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := r.Add([]*big.Int{big.NewInt(251), nil}); err != nil {
		t.Fatalf("Add() with a nil amount failed: %v", err)
	}

	if got := r.AmountOf(tokenX); got.Int64() != 351 {
		t.Errorf("AmountOf(X) = %s, want 351", got)
	}
	if got := r.AmountOf(tokenY); got.Int64() != 5 {
		t.Errorf("AmountOf(Y) = %s, want 5", got)
	}
	if got := r.AmountOf(poolA); got.Sign() != 0 {
		t.Errorf("AmountOf(non-reward token) = %s, want 0", got)
	}

	got := r.AmountOf(tokenX)
	got.SetInt64(0)
	if r.AmountOf(tokenX).Int64() != 351 {
		t.Error("AmountOf must return a copy")
	}
}

func TestPendingReward_AddRejectsLengthMismatch(t *testing.T) {
	tests := []struct {
		name    string
		amounts []*big.Int
	}{
		{name: "too few", amounts: []*big.Int{big.NewInt(250)}},
		{name: "too many", amounts: []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(999)}},
		{name: "empty", amounts: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewPendingReward(FarmingPool{PID: 3, RewardTokens: []common.Address{tokenX, tokenY}})
			if err := r.Add([]*big.Int{big.NewInt(10), big.NewInt(20)}); err != nil {
				t.Fatalf("Add() failed: %v", err)
			}

			if err := r.Add(tt.amounts); err == nil {
				t.Fatal("expected error for mismatched amounts")
			}
			if got := r.AmountOf(tokenX); got.Int64() != 10 {
				t.Errorf("AmountOf(X) = %s, want 10 (unchanged)", got)
			}
			if got := r.AmountOf(tokenY); got.Int64() != 20 {
				t.Errorf("AmountOf(Y) = %s, want 20 (unchanged)", got)
			}
		})
	}
}

func TestNewPendingReward_CopiesTokens(t *testing.T) {
	tokens := []common.Address{tokenX}
	r := NewPendingReward(FarmingPool{PID: 0, RewardTokens: tokens})
	tokens[0] = tokenY

	if r.Tokens[0] != tokenX {
		t.Error("NewPendingReward must not alias the pool's token slice")
	}
	if r.Amounts[0].Sign() != 0 {
		t.Errorf("initial amount = %s, want 0", r.Amounts[0])
	}
}
