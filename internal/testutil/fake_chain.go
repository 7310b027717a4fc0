package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/farmsync/internal/pkg/blockchain"
	"github.com/archon-research/farmsync/internal/pkg/blockchain/abis"
	"github.com/archon-research/farmsync/internal/ports/outbound"
)

var _ outbound.Multicaller = (*FakeChain)(nil)

type userInfoKey struct {
	farm common.Address
	id   string
	pid  uint64
}

// FakeChain is an in-memory Multicaller that answers getDepositedNFTs,
// positions and getUserInfo calls from fixtures. Unknown calls come back as
// failed results, the way a revert would.
type FakeChain struct {
	mu sync.Mutex

	positionManager common.Address
	farmABI         *abi.ABI
	pmABI           *abi.ABI

	deposited       map[common.Address]map[common.Address][]*big.Int
	depositedRevert map[common.Address]bool
	positions       map[string][]byte
	userInfo        map[userInfoKey][]byte
	userInfoRevert  map[userInfoKey]bool

	// BeforeExecute runs before every batch. A non-nil error fails the batch.
	BeforeExecute func(ctx context.Context, calls []outbound.Call) error

	executions int
}

// NewFakeChain returns a FakeChain serving the given position manager.
func NewFakeChain(positionManager common.Address) (*FakeChain, error) {
	farmABI, err := abis.GetFarmABI()
	if err != nil {
		return nil, err
	}
	pmABI, err := abis.GetPositionManagerABI()
	if err != nil {
		return nil, err
	}
	return &FakeChain{
		positionManager: positionManager,
		farmABI:         farmABI,
		pmABI:           pmABI,
		deposited:       make(map[common.Address]map[common.Address][]*big.Int),
		depositedRevert: make(map[common.Address]bool),
		positions:       make(map[string][]byte),
		userInfo:        make(map[userInfoKey][]byte),
		userInfoRevert:  make(map[userInfoKey]bool),
	}, nil
}

// SetDeposited sets the ids the account has deposited into farm.
func (c *FakeChain) SetDeposited(farm, account common.Address, ids ...*big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deposited[farm] == nil {
		c.deposited[farm] = make(map[common.Address][]*big.Int)
	}
	c.deposited[farm][account] = ids
}

// RevertDeposited makes the farm's getDepositedNFTs call fail.
func (c *FakeChain) RevertDeposited(farm common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depositedRevert[farm] = true
}

// SetPosition sets the positions(id) response.
func (c *FakeChain) SetPosition(id *big.Int, p PositionFixture) error {
	data, err := EncodePosition(p)
	if err != nil {
		return err
	}
	c.SetPositionRaw(id, data)
	return nil
}

// SetPositionRaw sets raw positions(id) return bytes.
func (c *FakeChain) SetPositionRaw(id *big.Int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[id.String()] = data
}

// SetUserInfo sets the getUserInfo(id, pid) response of farm.
func (c *FakeChain) SetUserInfo(farm common.Address, id *big.Int, pid uint64, u UserInfoFixture) error {
	data, err := EncodeUserInfo(u)
	if err != nil {
		return err
	}
	c.SetUserInfoRaw(farm, id, pid, data)
	return nil
}

// SetUserInfoRaw sets raw getUserInfo(id, pid) return bytes for farm.
func (c *FakeChain) SetUserInfoRaw(farm common.Address, id *big.Int, pid uint64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userInfo[userInfoKey{farm: farm, id: id.String(), pid: pid}] = data
}

// RevertUserInfo makes getUserInfo(id, pid) of farm fail.
func (c *FakeChain) RevertUserInfo(farm common.Address, id *big.Int, pid uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userInfoRevert[userInfoKey{farm: farm, id: id.String(), pid: pid}] = true
}

// Executions returns the number of batches executed.
func (c *FakeChain) Executions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executions
}

func (c *FakeChain) Address() common.Address {
	return blockchain.Multicall3
}

func (c *FakeChain) Execute(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error) {
	c.mu.Lock()
	c.executions++
	hook := c.BeforeExecute
	c.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, calls); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	results := make([]outbound.Result, len(calls))
	for i, call := range calls {
		data, err := c.answer(call)
		if err != nil {
			if !call.AllowFailure {
				return nil, fmt.Errorf("call %d reverted: %w", i, err)
			}
			continue
		}
		results[i] = outbound.Result{Success: true, ReturnData: data}
	}
	return results, nil
}

func (c *FakeChain) answer(call outbound.Call) ([]byte, error) {
	if len(call.CallData) < 4 {
		return nil, fmt.Errorf("short calldata")
	}
	selector, args := call.CallData[:4], call.CallData[4:]

	if call.Target == c.positionManager {
		method, err := c.pmABI.MethodById(selector)
		if err != nil {
			return nil, err
		}
		values, err := method.Inputs.Unpack(args)
		if err != nil {
			return nil, err
		}
		id := values[0].(*big.Int)
		data, ok := c.positions[id.String()]
		if !ok {
			return nil, fmt.Errorf("invalid token id %s", id)
		}
		return data, nil
	}

	method, err := c.farmABI.MethodById(selector)
	if err != nil {
		return nil, err
	}
	values, err := method.Inputs.Unpack(args)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "getDepositedNFTs":
		if c.depositedRevert[call.Target] {
			return nil, fmt.Errorf("getDepositedNFTs reverted")
		}
		account := values[0].(common.Address)
		return EncodeDepositedNFTs(c.deposited[call.Target][account])
	case "getUserInfo":
		id := values[0].(*big.Int)
		pid := values[1].(*big.Int).Uint64()
		key := userInfoKey{farm: call.Target, id: id.String(), pid: pid}
		if c.userInfoRevert[key] {
			return nil, fmt.Errorf("arithmetic underflow")
		}
		if data, ok := c.userInfo[key]; ok {
			return data, nil
		}
		return EncodeUserInfo(UserInfoFixture{})
	default:
		return nil, fmt.Errorf("unsupported method %s", method.Name)
	}
}
