package farm_reconciler

import (
	"bytes"
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/pkg/blockchain"
	"github.com/archon-research/farmsync/internal/pkg/blockchain/abis"
	"github.com/archon-research/farmsync/internal/ports/outbound"
	"github.com/archon-research/farmsync/internal/testutil"
)

var (
	account     = testutil.Addr(100)
	rewardToken = testutil.Addr(200)
	bonusToken  = testutil.Addr(201)
)

type recordingMetrics struct {
	mu             sync.Mutex
	cycles         map[string]int
	batchFailures  map[string]int
	errorPositions int
	malformed      int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		cycles:        make(map[string]int),
		batchFailures: make(map[string]int),
	}
}

func (m *recordingMetrics) RecordCycle(_ context.Context, _ int64, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles[outcome]++
}

func (m *recordingMetrics) RecordBatchFailure(_ context.Context, _ int64, stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchFailures[stage]++
}

func (m *recordingMetrics) RecordErrorPositions(_ context.Context, _ int64, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorPositions += count
}

func (m *recordingMetrics) RecordMalformedPositions(_ context.Context, _ int64, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.malformed += count
}

func (m *recordingMetrics) cycleCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles[outcome]
}

func (m *recordingMetrics) batchFailureCount(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchFailures[stage]
}

// world wires an Engine to a simulated chain and catalog.
type world struct {
	chain   blockchain.ChainParams
	fake    *testutil.FakeChain
	catalog *testutil.MockFarmCatalog
	metrics *recordingMetrics
	engine  *Engine
}

func newWorld(t *testing.T, farms ...entity.Farm) *world {
	t.Helper()
	chain := blockchain.DefaultRegistry()[1]

	fake, err := testutil.NewFakeChain(chain.PositionManager)
	if err != nil {
		t.Fatalf("NewFakeChain() failed: %v", err)
	}
	catalog := testutil.NewMockFarmCatalog(farms...)
	metrics := newRecordingMetrics()

	engine, err := NewEngine(EngineConfig{
		Chain:        chain,
		BatchTimeout: time.Second,
		Logger:       testutil.DiscardLogger(),
	}, catalog, fake, metrics)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	return &world{chain: chain, fake: fake, catalog: catalog, metrics: metrics, engine: engine}
}

func (w *world) pool(tokenX, tokenY common.Address, fee uint32) common.Address {
	return blockchain.DerivePoolAddress(w.chain, tokenX, tokenY, fee)
}

func (w *world) position(t *testing.T, id int64, token0, token1 common.Address, fee uint32) {
	t.Helper()
	err := w.fake.SetPosition(big.NewInt(id), testutil.PositionFixture{
		Token0: token0, Token1: token1, Fee: fee, TickLower: -600, TickUpper: 600, Liquidity: big.NewInt(id * 1000),
	})
	if err != nil {
		t.Fatalf("SetPosition(%d) failed: %v", id, err)
	}
}

func (w *world) userInfo(t *testing.T, farm common.Address, id int64, pid uint64, liquidity int64, rewards ...int64) {
	t.Helper()
	err := w.fake.SetUserInfo(farm, big.NewInt(id), pid, testutil.UserInfoFixture{
		Liquidity: big.NewInt(liquidity),
		Rewards:   testutil.Bigs(rewards...),
	})
	if err != nil {
		t.Fatalf("SetUserInfo(%d, %d) failed: %v", id, pid, err)
	}
}

// failStage fails every batch whose first call uses the given farm or
// position manager method.
func (w *world) failStage(t *testing.T, method string, err error) {
	t.Helper()
	selector := methodSelector(t, method)
	w.fake.BeforeExecute = func(ctx context.Context, calls []outbound.Call) error {
		if len(calls) > 0 && bytes.HasPrefix(calls[0].CallData, selector) {
			return err
		}
		return nil
	}
}

func methodSelector(t *testing.T, method string) []byte {
	t.Helper()
	farmABI, err := abis.GetFarmABI()
	if err != nil {
		t.Fatal(err)
	}
	if m, ok := farmABI.Methods[method]; ok {
		return m.ID
	}
	pmABI, err := abis.GetPositionManagerABI()
	if err != nil {
		t.Fatal(err)
	}
	if m, ok := pmABI.Methods[method]; ok {
		return m.ID
	}
	t.Fatalf("unknown method %s", method)
	return nil
}

func singlePoolFarm(addr, pool common.Address, rewards ...common.Address) entity.Farm {
	return entity.Farm{
		Address: addr,
		Pools:   []entity.FarmingPool{{PID: 0, PoolAddress: pool, RewardTokens: rewards}},
	}
}

func ids(ps []entity.JoinedPosition) []int64 {
	out := make([]int64, len(ps))
	for i, p := range ps {
		out[i] = p.Position.ID.Int64()
	}
	return out
}

func int64s(bs []*big.Int) []int64 {
	out := make([]int64, len(bs))
	for i, b := range bs {
		out[i] = b.Int64()
	}
	return out
}

func farmByAddress(t *testing.T, res *CycleResult, farm common.Address) entity.UserFarmInfo {
	t.Helper()
	for _, f := range res.Farms {
		if f.Farm == farm {
			return f
		}
	}
	t.Fatalf("farm %s not in cycle result", farm.Hex())
	return entity.UserFarmInfo{}
}
