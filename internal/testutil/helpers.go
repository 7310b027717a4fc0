package testutil

import (
	"io"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// DiscardLogger returns an slog.Logger that writes to io.Discard.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Addr returns a deterministic non-zero address for n, for readable fixtures.
func Addr(n uint64) common.Address {
	return common.BigToAddress(new(big.Int).SetUint64(0x1000 + n))
}

// Big returns n as a *big.Int.
func Big(n int64) *big.Int {
	return big.NewInt(n)
}

// Bigs returns ns as a slice of *big.Int.
func Bigs(ns ...int64) []*big.Int {
	out := make([]*big.Int, len(ns))
	for i, n := range ns {
		out[i] = big.NewInt(n)
	}
	return out
}
