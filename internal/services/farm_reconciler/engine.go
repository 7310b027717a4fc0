package farm_reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/pkg/blockchain"
	"github.com/archon-research/farmsync/internal/ports/outbound"
)

const (
	// tracerName is the instrumentation name for this service.
	tracerName = "github.com/archon-research/farmsync/internal/services/farm_reconciler"

	stageDeposited = "deposited_nfts"
	stagePositions = "positions"
	stageUserInfo  = "user_info"
)

// CycleResult is the output of one reconciliation cycle, ready to publish.
type CycleResult struct {
	ChainID int64
	Account common.Address

	// Empty is set when the catalog has no farms; the account's published
	// set must then become empty.
	Empty bool

	// Farms holds one aggregate per farm that fully resolved this cycle, in
	// catalog order.
	Farms []entity.UserFarmInfo

	// Untouched lists farms whose data could not be refreshed this cycle.
	// Their previously published value is kept.
	Untouched []common.Address
}

// EngineConfig holds configuration for the Engine.
type EngineConfig struct {
	// Chain holds the position manager, factory and init code hash.
	Chain blockchain.ChainParams

	// BatchTimeout bounds each batched chain read. A timeout degrades the
	// batch instead of aborting the cycle.
	BatchTimeout time.Duration

	// BlockNumber pins reads to a block; nil reads latest.
	BlockNumber *big.Int

	Logger *slog.Logger
}

// EngineConfigDefaults returns default configuration.
func EngineConfigDefaults() EngineConfig {
	return EngineConfig{
		BatchTimeout: 10 * time.Second,
		Logger:       slog.Default(),
	}
}

// Engine runs reconciliation cycles. It holds no per-cycle state and is safe
// for concurrent use, which lets a superseded cycle finish in the background.
type Engine struct {
	config  EngineConfig
	catalog outbound.FarmCatalog
	reader  outbound.Multicaller
	decoder *Decoder
	metrics outbound.ReconcilerMetrics
	logger  *slog.Logger
}

// NewEngine creates a new Engine. metrics may be nil.
func NewEngine(config EngineConfig, catalog outbound.FarmCatalog, reader outbound.Multicaller, metrics outbound.ReconcilerMetrics) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if err := config.Chain.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chain params: %w", err)
	}

	defaults := EngineConfigDefaults()
	if config.BatchTimeout == 0 {
		config.BatchTimeout = defaults.BatchTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	decoder, err := NewDecoder()
	if err != nil {
		return nil, err
	}

	return &Engine{
		config:  config,
		catalog: catalog,
		reader:  reader,
		decoder: decoder,
		metrics: metrics,
		logger:  config.Logger.With("component", "farm-engine", "chainID", config.Chain.ChainID),
	}, nil
}

// farmState is the per-farm working set of one cycle.
type farmState struct {
	farm       entity.Farm
	ids        []*big.Int
	untouched  bool
	positions  []entity.NFTPosition
	undecoded  []*big.Int
	candidates []candidate
}

type candidate struct {
	position entity.NFTPosition
	pool     entity.FarmingPool
}

// Reconcile runs one full cycle for account. It returns an error only when
// the cycle must be aborted (catalog unavailable, chain reader unreachable,
// context cancelled); batch-level failures degrade the affected farms.
func (e *Engine) Reconcile(ctx context.Context, account common.Address) (*CycleResult, error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "reconcile.cycle",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int64("chain.id", e.config.Chain.ChainID),
			attribute.String("account", account.Hex()),
		),
	)
	defer func() {
		span.SetAttributes(attribute.Int64("reconcile.duration_ms", time.Since(start).Milliseconds()))
		span.End()
	}()

	result := &CycleResult{ChainID: e.config.Chain.ChainID, Account: account}

	farms, err := e.catalog.Farms(ctx, e.config.Chain.ChainID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load farm catalog")
		return nil, fmt.Errorf("failed to load farm catalog: %w", err)
	}

	states := make([]*farmState, 0, len(farms))
	for _, f := range farms {
		if err := f.Validate(); err != nil {
			e.logger.Warn("skipping invalid farm from catalog", "farm", f.Address.Hex(), "error", err)
			result.Untouched = append(result.Untouched, f.Address)
			continue
		}
		states = append(states, &farmState{farm: f})
	}
	if len(farms) == 0 {
		result.Empty = true
		return result, nil
	}
	span.SetAttributes(attribute.Int("reconcile.farms", len(states)))

	if err := e.fetchDeposited(ctx, account, states); err != nil {
		return nil, e.abort(span, err)
	}
	if err := e.fetchPositions(ctx, states); err != nil {
		return nil, e.abort(span, err)
	}
	e.matchPools(states)
	userInfo, err := e.fetchUserInfo(ctx, states)
	if err != nil {
		return nil, e.abort(span, err)
	}

	for _, st := range states {
		if st.untouched {
			result.Untouched = append(result.Untouched, st.farm.Address)
			continue
		}
		info, errorCount := e.aggregate(account, st, userInfo[st.farm.Address])
		if errorCount > 0 {
			e.metrics.RecordErrorPositions(ctx, e.config.Chain.ChainID, errorCount)
		}
		result.Farms = append(result.Farms, info)
	}

	e.logger.Debug("cycle reconciled",
		"account", account.Hex(),
		"farms", len(result.Farms),
		"untouched", len(result.Untouched),
		"duration", time.Since(start))
	return result, nil
}

func (e *Engine) abort(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "cycle aborted")
	return err
}

// execute runs one batch. ok=false with a nil error means the batch failed
// and its scope must be degraded; a non-nil error aborts the cycle.
func (e *Engine) execute(ctx context.Context, stage string, calls []outbound.Call) (results []outbound.Result, ok bool, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "reconcile."+stage,
		trace.WithAttributes(attribute.Int("batch.calls", len(calls))),
	)
	defer span.End()

	batchCtx, cancel := context.WithTimeout(ctx, e.config.BatchTimeout)
	defer cancel()

	results, err = e.reader.Execute(batchCtx, calls, e.config.BlockNumber)
	if err == nil && len(results) != len(calls) {
		err = fmt.Errorf("got %d results for %d calls", len(results), len(calls))
	}
	if err == nil {
		return results, true, nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "batch failed")
	if ctx.Err() != nil {
		return nil, false, fmt.Errorf("cycle cancelled during %s batch: %w", stage, ctx.Err())
	}
	// A batch that hit its own deadline degrades, whatever the reader tagged.
	if errors.Is(err, outbound.ErrChainUnavailable) && batchCtx.Err() == nil {
		return nil, false, fmt.Errorf("failed to execute %s batch: %w", stage, err)
	}

	e.logger.Warn("batch failed, degrading scope for this cycle", "stage", stage, "calls", len(calls), "error", err)
	e.metrics.RecordBatchFailure(ctx, e.config.Chain.ChainID, stage)
	return nil, false, nil
}

// fetchDeposited lists deposited NFT ids of every farm in one batch.
func (e *Engine) fetchDeposited(ctx context.Context, account common.Address, states []*farmState) error {
	if len(states) == 0 {
		return nil
	}

	calls := make([]outbound.Call, 0, len(states))
	for _, st := range states {
		call, err := e.decoder.DepositedNFTsCall(st.farm.Address, account)
		if err != nil {
			return err
		}
		calls = append(calls, call)
	}

	results, ok, err := e.execute(ctx, stageDeposited, calls)
	if err != nil {
		return err
	}
	if !ok {
		for _, st := range states {
			st.untouched = true
		}
		return nil
	}

	for i, st := range states {
		ids, err := e.decoder.DecodeDepositedNFTs(results[i])
		if err != nil {
			e.logger.Warn("failed to list deposited NFTs, keeping previous farm state",
				"farm", st.farm.Address.Hex(), "error", err)
			st.untouched = true
			continue
		}
		st.ids = ids
	}
	return nil
}

// fetchPositions reads position details for the deduplicated union of all
// deposited ids in one batch, then derives each position's pool address.
func (e *Engine) fetchPositions(ctx context.Context, states []*farmState) error {
	unique := make(map[string]*big.Int)
	for _, st := range states {
		if st.untouched {
			continue
		}
		for _, id := range st.ids {
			unique[id.String()] = id
		}
	}
	if len(unique) == 0 {
		return nil
	}

	ids := make([]*big.Int, 0, len(unique))
	for _, id := range unique {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })

	calls := make([]outbound.Call, 0, len(ids))
	for _, id := range ids {
		call, err := e.decoder.PositionCall(e.config.Chain.PositionManager, id)
		if err != nil {
			return err
		}
		calls = append(calls, call)
	}

	results, ok, err := e.execute(ctx, stagePositions, calls)
	if err != nil {
		return err
	}
	if !ok {
		for _, st := range states {
			if len(st.ids) > 0 {
				st.untouched = true
			}
		}
		return nil
	}

	outcomes := make(map[string]PositionOutcome, len(ids))
	malformed := 0
	for i, id := range ids {
		out := e.decoder.DecodePosition(id, results[i])
		switch out.Status {
		case PositionDecoded:
			out.Position.PoolAddress = blockchain.DerivePoolAddress(e.config.Chain,
				out.Position.Token0, out.Position.Token1, out.Position.Fee)
		case PositionAbsent:
			e.logger.Debug("position details call failed, skipping", "nftID", id.String())
		case PositionMalformed:
			malformed++
			e.logger.Warn("position details could not be decoded", "nftID", id.String(), "error", out.Err)
		}
		outcomes[id.String()] = out
	}
	if malformed > 0 {
		e.metrics.RecordMalformedPositions(ctx, e.config.Chain.ChainID, malformed)
	}

	for _, st := range states {
		if st.untouched {
			continue
		}
		for _, id := range st.ids {
			out := outcomes[id.String()]
			switch out.Status {
			case PositionDecoded:
				st.positions = append(st.positions, out.Position)
			case PositionMalformed:
				st.undecoded = append(st.undecoded, new(big.Int).Set(id))
			}
		}
	}
	return nil
}

// matchPools pairs each deposited position with every pid of its own farm
// that tracks the position's pool.
func (e *Engine) matchPools(states []*farmState) {
	for _, st := range states {
		if st.untouched {
			continue
		}
		for _, pos := range st.positions {
			for _, pool := range st.farm.PoolsFor(pos.PoolAddress) {
				st.candidates = append(st.candidates, candidate{position: pos, pool: pool})
			}
		}
	}
}

// fetchUserInfo reads user info for every candidate pair across all farms in
// one batch and decodes each pair on its own.
func (e *Engine) fetchUserInfo(ctx context.Context, states []*farmState) (map[common.Address][]UserInfoOutcome, error) {
	type pairRef struct {
		farm common.Address
		cand candidate
	}

	var (
		calls []outbound.Call
		refs  []pairRef
	)
	for _, st := range states {
		if st.untouched {
			continue
		}
		for _, c := range st.candidates {
			call, err := e.decoder.UserInfoCall(st.farm.Address, c.position.ID, c.pool.PID)
			if err != nil {
				return nil, err
			}
			calls = append(calls, call)
			refs = append(refs, pairRef{farm: st.farm.Address, cand: c})
		}
	}

	outcomes := make(map[common.Address][]UserInfoOutcome)
	if len(calls) == 0 {
		return outcomes, nil
	}

	results, ok, err := e.execute(ctx, stageUserInfo, calls)
	if err != nil {
		return nil, err
	}
	if !ok {
		for _, st := range states {
			if len(st.candidates) > 0 {
				st.untouched = true
			}
		}
		return outcomes, nil
	}

	for i, ref := range refs {
		out := e.decoder.DecodeUserInfo(ref.cand.position.ID, ref.cand.pool.PID, len(ref.cand.pool.RewardTokens), results[i])
		if out.Failed() {
			e.logger.Warn("user info could not be decoded, flagging position",
				"farm", ref.farm.Hex(),
				"nftID", out.NFTID.String(),
				"pid", out.PID,
				"error", out.Err)
		}
		outcomes[ref.farm] = append(outcomes[ref.farm], out)
	}
	return outcomes, nil
}

// aggregate builds the farm's UserFarmInfo from its decoded state. An id that
// failed for any pid is excluded from joined positions and rewards entirely.
func (e *Engine) aggregate(account common.Address, st *farmState, outcomes []UserInfoOutcome) (entity.UserFarmInfo, int) {
	info := entity.NewUserFarmInfo(entity.FarmKey{
		ChainID: e.config.Chain.ChainID,
		Account: account,
		Farm:    st.farm.Address,
	})
	info.DepositedPositions = st.positions
	info.UndecodedPositions = st.undecoded

	decoded, failed := splitUserInfo(outcomes)

	errored := make(map[string]struct{}, len(failed))
	for _, f := range failed {
		key := f.NFTID.String()
		if _, seen := errored[key]; seen {
			continue
		}
		errored[key] = struct{}{}
		info.ErrorPositions = append(info.ErrorPositions, new(big.Int).Set(f.NFTID))
	}

	positions := make(map[string]entity.NFTPosition, len(st.positions))
	for _, p := range st.positions {
		positions[p.ID.String()] = p
	}

	for _, d := range decoded {
		if _, bad := errored[d.NFTID.String()]; bad {
			continue
		}
		pool, ok := st.farm.Pool(d.PID)
		if !ok {
			continue
		}
		reward, ok := info.PendingRewards[d.PID]
		if !ok {
			reward = entity.NewPendingReward(pool)
		}
		if err := reward.Add(d.Rewards); err != nil {
			e.logger.Error("decoded user info does not match pool reward tokens",
				"farm", st.farm.Address.Hex(),
				"nftID", d.NFTID.String(),
				"error", err)
			continue
		}
		info.PendingRewards[d.PID] = reward
		info.JoinedPositions[d.PID] = append(info.JoinedPositions[d.PID], entity.JoinedPosition{
			Position:        positions[d.NFTID.String()],
			PID:             d.PID,
			StakedLiquidity: d.Liquidity,
		})
	}

	return info, len(info.ErrorPositions)
}

type noopMetrics struct{}

func (noopMetrics) RecordCycle(context.Context, int64, string, time.Duration)  {}
func (noopMetrics) RecordBatchFailure(context.Context, int64, string)          {}
func (noopMetrics) RecordErrorPositions(context.Context, int64, int)           {}
func (noopMetrics) RecordMalformedPositions(context.Context, int64, int)       {}
