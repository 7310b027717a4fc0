package blockchain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	usdc = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

func TestComputePoolAddress_KnownMainnetPool(t *testing.T) {
	chain := DefaultRegistry()[1]

	got := ComputePoolAddress(chain.Factory, usdc, weth, 500, chain.InitCodeHash)
	want := common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640")

	if got != want {
		t.Errorf("ComputePoolAddress() = %s, want %s", got.Hex(), want.Hex())
	}
}

func TestComputePoolAddress_Deterministic(t *testing.T) {
	chain := DefaultRegistry()[1]

	a := ComputePoolAddress(chain.Factory, usdc, weth, 3000, chain.InitCodeHash)
	b := ComputePoolAddress(chain.Factory, usdc, weth, 3000, chain.InitCodeHash)
	if a != b {
		t.Fatalf("derivation not deterministic: %s != %s", a.Hex(), b.Hex())
	}
}

func TestComputePoolAddress_OrderSensitive(t *testing.T) {
	chain := DefaultRegistry()[1]

	sorted := ComputePoolAddress(chain.Factory, usdc, weth, 500, chain.InitCodeHash)
	swapped := ComputePoolAddress(chain.Factory, weth, usdc, 500, chain.InitCodeHash)
	if sorted == swapped {
		t.Fatal("expected swapped token order to change the derived address")
	}
}

func TestComputePoolAddress_FeeSensitive(t *testing.T) {
	chain := DefaultRegistry()[1]

	low := ComputePoolAddress(chain.Factory, usdc, weth, 500, chain.InitCodeHash)
	mid := ComputePoolAddress(chain.Factory, usdc, weth, 3000, chain.InitCodeHash)
	if low == mid {
		t.Fatal("expected different fee tiers to derive different pools")
	}
}

func TestDerivePoolAddress_Canonicalizes(t *testing.T) {
	chain := DefaultRegistry()[1]

	want := ComputePoolAddress(chain.Factory, usdc, weth, 500, chain.InitCodeHash)

	tests := []struct {
		name   string
		tokenA common.Address
		tokenB common.Address
	}{
		{name: "already sorted", tokenA: usdc, tokenB: weth},
		{name: "reversed", tokenA: weth, tokenB: usdc},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DerivePoolAddress(chain, tt.tokenA, tt.tokenB, 500)
			if got != want {
				t.Errorf("DerivePoolAddress() = %s, want %s", got.Hex(), want.Hex())
			}
		})
	}
}

func TestSortTokens(t *testing.T) {
	t0, t1 := SortTokens(weth, usdc)
	if t0 != usdc || t1 != weth {
		t.Errorf("SortTokens(weth, usdc) = (%s, %s), want (%s, %s)", t0.Hex(), t1.Hex(), usdc.Hex(), weth.Hex())
	}

	t0, t1 = SortTokens(usdc, weth)
	if t0 != usdc || t1 != weth {
		t.Errorf("SortTokens(usdc, weth) = (%s, %s), want sorted order", t0.Hex(), t1.Hex())
	}
}

func TestMustParseAddress(t *testing.T) {
	lower := MustParseAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	if lower != usdc {
		t.Errorf("lowercase parse = %s, want %s", lower.Hex(), usdc.Hex())
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic for malformed address")
		}
	}()
	MustParseAddress("0x1234")
}
