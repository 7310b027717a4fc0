package blockchain

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var poolKeyArgs = mustPoolKeyArgs()

func mustPoolKeyArgs() abi.Arguments {
	addressT, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	uint24T, err := abi.NewType("uint24", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: addressT}, {Type: addressT}, {Type: uint24T}}
}

// SortTokens returns the pair in canonical order, lower numeric address first.
func SortTokens(a, b common.Address) (token0, token1 common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}

// ComputePoolAddress returns the CREATE2 address of the pool deployed by
// factory for (token0, token1, fee). The tokens are hashed in the order given;
// callers must sort them first (see DerivePoolAddress).
func ComputePoolAddress(factory, token0, token1 common.Address, fee uint32, initCodeHash common.Hash) common.Address {
	encoded, err := poolKeyArgs.Pack(token0, token1, new(big.Int).SetUint64(uint64(fee)))
	if err != nil {
		// Only reachable for a fee wider than 24 bits.
		panic(fmt.Sprintf("failed to encode pool key: %v", err))
	}
	salt := crypto.Keccak256Hash(encoded)
	return crypto.CreateAddress2(factory, salt, initCodeHash.Bytes())
}

// DerivePoolAddress canonicalizes the token pair and computes the pool
// address with the chain's factory and init code hash.
func DerivePoolAddress(chain ChainParams, tokenA, tokenB common.Address, fee uint32) common.Address {
	token0, token1 := SortTokens(tokenA, tokenB)
	return ComputePoolAddress(chain.Factory, token0, token1, fee, chain.InitCodeHash)
}

// MustParseAddress parses a hex address of any casing. A string that is not a
// 20-byte hex address is a programming error and panics.
func MustParseAddress(s string) common.Address {
	if !common.IsHexAddress(s) {
		panic(fmt.Sprintf("invalid address %q", s))
	}
	return common.HexToAddress(s)
}

// MustParseHash parses a 0x-prefixed 32-byte hex hash and panics otherwise.
func MustParseHash(s string) common.Hash {
	if !has0xPrefix(s) || len(s) != 2+2*common.HashLength {
		panic(fmt.Sprintf("invalid hash %q", s))
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		panic(fmt.Sprintf("invalid hash %q: %v", s, err))
	}
	return common.BytesToHash(b)
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
