package multicall

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"net"
	"net/url"
	"os"
	"syscall"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/farmsync/internal/pkg/blockchain"
	"github.com/archon-research/farmsync/internal/pkg/blockchain/abis"
	"github.com/archon-research/farmsync/internal/ports/outbound"
)

type fakeCaller struct {
	calls int
	fn    func(msg ethereum.CallMsg, block *big.Int) ([]byte, error)
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.calls++
	return f.fn(msg, block)
}

type aggregateResult struct {
	Success    bool
	ReturnData []byte
}

func packAggregate(t *testing.T, results []aggregateResult) []byte {
	t.Helper()
	mcABI, err := abis.GetMulticall3ABI()
	if err != nil {
		t.Fatalf("load multicall ABI: %v", err)
	}
	out, err := mcABI.Methods["aggregate3"].Outputs.Pack(results)
	if err != nil {
		t.Fatalf("pack aggregate3 output: %v", err)
	}
	return out
}

func testCalls(n int) []outbound.Call {
	calls := make([]outbound.Call, n)
	for i := range calls {
		calls[i] = outbound.Call{
			Target:       common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
			AllowFailure: true,
			CallData:     []byte{0x31, 0x3c, 0xe5, byte(i)},
		}
	}
	return calls
}

func TestClient_Execute_PreservesOrder(t *testing.T) {
	mcABI, _ := abis.GetMulticall3ABI()
	caller := &fakeCaller{fn: func(msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
		if *msg.To != blockchain.Multicall3 {
			t.Errorf("call sent to %s, want multicall3", msg.To.Hex())
		}
		if !bytes.Equal(msg.Data[:4], mcABI.Methods["aggregate3"].ID) {
			t.Errorf("unexpected selector %x", msg.Data[:4])
		}
		return packAggregate(t, []aggregateResult{
			{Success: true, ReturnData: []byte{0x01}},
			{Success: false, ReturnData: []byte{}},
			{Success: true, ReturnData: []byte{0x03}},
		}), nil
	}}

	client, err := NewClient(caller, blockchain.Multicall3)
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	results, err := client.Execute(context.Background(), testCalls(3), nil)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if !results[0].Success || !bytes.Equal(results[0].ReturnData, []byte{0x01}) {
		t.Errorf("result[0] = %+v", results[0])
	}
	if results[1].Success {
		t.Errorf("result[1] should be a failure")
	}
	if !bytes.Equal(results[2].ReturnData, []byte{0x03}) {
		t.Errorf("result[2] = %+v", results[2])
	}
}

func TestClient_Execute_EmptyBatchSkipsRPC(t *testing.T) {
	caller := &fakeCaller{fn: func(ethereum.CallMsg, *big.Int) ([]byte, error) {
		return nil, errors.New("should not be called")
	}}
	client, _ := NewClient(caller, blockchain.Multicall3)

	results, err := client.Execute(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if len(results) != 0 || caller.calls != 0 {
		t.Errorf("expected no RPC for empty batch, got %d results, %d calls", len(results), caller.calls)
	}
}

func TestClient_Execute_ClassifiesTransportErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{
			name:        "dial failure",
			err:         &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: no route to host")},
			unavailable: true,
		},
		{
			name:        "connection refused",
			err:         &url.Error{Op: "Post", URL: "http://node", Err: &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNREFUSED}},
			unavailable: true,
		},
		{
			name:        "dns failure",
			err:         &url.Error{Op: "Post", URL: "http://node", Err: &net.DNSError{Err: "no such host", Name: "node"}},
			unavailable: true,
		},
		{
			name:        "batch deadline",
			err:         &url.Error{Op: "Post", URL: "http://node", Err: context.DeadlineExceeded},
			unavailable: false,
		},
		{
			name:        "read timeout",
			err:         &net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded},
			unavailable: false,
		},
		{
			name:        "cancelled",
			err:         &url.Error{Op: "Post", URL: "http://node", Err: context.Canceled},
			unavailable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &fakeCaller{fn: func(ethereum.CallMsg, *big.Int) ([]byte, error) {
				return nil, tt.err
			}}
			client, _ := NewClient(caller, blockchain.Multicall3)

			_, err := client.Execute(context.Background(), testCalls(1), nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, outbound.ErrChainUnavailable); got != tt.unavailable {
				t.Errorf("ErrChainUnavailable = %v, want %v (err: %v)", got, tt.unavailable, err)
			}
		})
	}
}

func TestClient_Execute_RevertIsBatchError(t *testing.T) {
	caller := &fakeCaller{fn: func(ethereum.CallMsg, *big.Int) ([]byte, error) {
		return nil, errors.New("execution reverted")
	}}
	client, _ := NewClient(caller, blockchain.Multicall3)

	_, err := client.Execute(context.Background(), testCalls(2), big.NewInt(100))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, outbound.ErrChainUnavailable) {
		t.Errorf("revert must not be classified as chain unavailable: %v", err)
	}
}

func TestClient_Execute_ResultCountMismatch(t *testing.T) {
	caller := &fakeCaller{fn: func(ethereum.CallMsg, *big.Int) ([]byte, error) {
		return packAggregate(t, []aggregateResult{{Success: true, ReturnData: []byte{}}}), nil
	}}
	client, _ := NewClient(caller, blockchain.Multicall3)

	if _, err := client.Execute(context.Background(), testCalls(2), nil); err == nil {
		t.Fatal("expected error for result count mismatch")
	}
}

func TestNewClient_RequiresCaller(t *testing.T) {
	if _, err := NewClient(nil, blockchain.Multicall3); err == nil {
		t.Fatal("expected error for nil caller")
	}
}
