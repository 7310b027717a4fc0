package multicall

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/archon-research/farmsync/internal/ports/outbound"
)

// DefaultMaxBatchSize is the JSON-RPC batch limit most hosted nodes accept.
const DefaultMaxBatchSize = 100

// revertErrorCode is the JSON-RPC error code geth uses for reverted calls.
const revertErrorCode = 3

var _ outbound.Multicaller = (*DirectCaller)(nil)

// BatchCaller is the subset of *rpc.Client used by DirectCaller.
type BatchCaller interface {
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

// DirectCaller reads through plain eth_call requests sent as JSON-RPC
// batches, for chains where Multicall3 is not deployed. Calls are split into
// requests of at most maxBatchSize elements; results keep call order.
type DirectCaller struct {
	rpcClient    BatchCaller
	maxBatchSize int
}

// NewDirectCaller creates a DirectCaller. maxBatchSize <= 0 selects
// DefaultMaxBatchSize.
func NewDirectCaller(rpcClient BatchCaller, maxBatchSize int) *DirectCaller {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &DirectCaller{rpcClient: rpcClient, maxBatchSize: maxBatchSize}
}

// Execute issues one eth_call per call. A reverted call becomes
// Success=false when it allows failure; any other error fails the batch.
func (c *DirectCaller) Execute(ctx context.Context, calls []outbound.Call, blockNumber *big.Int) ([]outbound.Result, error) {
	results := make([]outbound.Result, 0, len(calls))
	block := toBlockNumArg(blockNumber)

	for start := 0; start < len(calls); start += c.maxBatchSize {
		end := min(start+c.maxBatchSize, len(calls))
		chunk, err := c.executeChunk(ctx, calls[start:end], block)
		if err != nil {
			return nil, err
		}
		results = append(results, chunk...)
	}
	return results, nil
}

func (c *DirectCaller) executeChunk(ctx context.Context, calls []outbound.Call, block string) ([]outbound.Result, error) {
	elems := make([]rpc.BatchElem, len(calls))
	data := make([]hexutil.Bytes, len(calls))
	for i, call := range calls {
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []any{
				map[string]any{
					"to":    call.Target,
					"input": hexutil.Bytes(call.CallData),
				},
				block,
			},
			Result: &data[i],
		}
	}

	if err := c.rpcClient.BatchCallContext(ctx, elems); err != nil {
		return nil, classifyError(fmt.Errorf("failed to send eth_call batch: %w", err))
	}

	results := make([]outbound.Result, len(calls))
	for i, elem := range elems {
		switch {
		case elem.Error == nil:
			results[i] = outbound.Result{Success: true, ReturnData: data[i]}
		case calls[i].AllowFailure && isRevert(elem.Error):
			results[i] = outbound.Result{Success: false}
		default:
			// Rate limits, missing headers and other node errors say nothing
			// about the call itself, so the whole batch fails.
			return nil, fmt.Errorf("eth_call to %s failed: %w", calls[i].Target.Hex(), elem.Error)
		}
	}
	return results, nil
}

// isRevert reports whether err is an EVM revert rather than a node error.
func isRevert(err error) bool {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// Address is zero; DirectCaller talks to targets directly.
func (c *DirectCaller) Address() common.Address {
	return common.Address{}
}

func toBlockNumArg(number *big.Int) string {
	if number == nil || number.Sign() < 0 {
		return "latest"
	}
	return hexutil.EncodeBig(number)
}
