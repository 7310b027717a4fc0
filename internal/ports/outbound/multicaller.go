package outbound

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ErrChainUnavailable marks a chain reader failure that is not scoped to one
// batch (node unreachable, dial failure). It aborts the whole cycle instead
// of degrading a single batch.
var ErrChainUnavailable = errors.New("chain reader unavailable")

// Multicaller executes an ordered batch of read-only calls in one round trip.
// Results are index-aligned with calls.
type Multicaller interface {
	Execute(ctx context.Context, calls []Call, blockNumber *big.Int) ([]Result, error)
	Address() common.Address
}

type Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type Result struct {
	Success    bool
	ReturnData []byte
}
