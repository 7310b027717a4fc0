package testutil

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/farmsync/internal/pkg/blockchain"
	"github.com/archon-research/farmsync/internal/ports/outbound"
)

var _ outbound.Multicaller = (*MockMulticaller)(nil)

// ErrNotMocked is returned by MockMulticaller when ExecuteFn is unset.
var ErrNotMocked = errors.New("Execute not mocked")

// MockMulticaller is a scripted outbound.Multicaller that records every batch
// it receives.
type MockMulticaller struct {
	ExecuteFn func(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error)

	mu      sync.Mutex
	batches [][]outbound.Call
}

func NewMockMulticaller() *MockMulticaller {
	return &MockMulticaller{}
}

func (m *MockMulticaller) Execute(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error) {
	m.mu.Lock()
	m.batches = append(m.batches, append([]outbound.Call(nil), calls...))
	m.mu.Unlock()

	if m.ExecuteFn == nil {
		return nil, ErrNotMocked
	}
	return m.ExecuteFn(ctx, calls, blockNumber)
}

func (m *MockMulticaller) Address() common.Address {
	return blockchain.Multicall3
}

// Batches returns a copy of every batch passed to Execute, in order.
func (m *MockMulticaller) Batches() [][]outbound.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]outbound.Call(nil), m.batches...)
}

// SucceedWith returns an ExecuteFn that answers every call with data.
func SucceedWith(data []byte) func(context.Context, []outbound.Call, *big.Int) ([]outbound.Result, error) {
	return func(_ context.Context, calls []outbound.Call, _ *big.Int) ([]outbound.Result, error) {
		results := make([]outbound.Result, len(calls))
		for i := range results {
			results[i] = outbound.Result{Success: true, ReturnData: data}
		}
		return results, nil
	}
}
