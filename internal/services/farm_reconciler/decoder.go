package farm_reconciler

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/pkg/blockchain/abis"
	"github.com/archon-research/farmsync/internal/ports/outbound"
)

// errCallFailed is the decode error for a call whose success flag is false.
var errCallFailed = errors.New("call reverted")

// PositionStatus tags the outcome of decoding one position details call.
type PositionStatus int

const (
	// PositionDecoded means the position was decoded.
	PositionDecoded PositionStatus = iota
	// PositionAbsent means the call itself failed; the id is not a live
	// position and is skipped silently.
	PositionAbsent
	// PositionMalformed means the call succeeded but its bytes could not be
	// decoded, e.g. a position minted by a different manager version.
	PositionMalformed
)

func (s PositionStatus) String() string {
	switch s {
	case PositionDecoded:
		return "decoded"
	case PositionAbsent:
		return "absent"
	case PositionMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("PositionStatus(%d)", int(s))
	}
}

// PositionOutcome is the tagged result of DecodePosition. Position is set
// only when Status is PositionDecoded; Err is set when it is malformed.
type PositionOutcome struct {
	ID       *big.Int
	Status   PositionStatus
	Position entity.NFTPosition
	Err      error
}

// UserInfoOutcome is the tagged result of decoding one getUserInfo call.
type UserInfoOutcome struct {
	NFTID     *big.Int
	PID       uint64
	Liquidity *big.Int
	Rewards   []*big.Int
	Err       error
}

// Failed reports whether the pair must be recorded as an error position.
func (o UserInfoOutcome) Failed() bool {
	return o.Err != nil
}

// Decoder packs and unpacks the farm and position manager calls.
type Decoder struct {
	farmABI            *abi.ABI
	positionManagerABI *abi.ABI
}

// NewDecoder loads the ABIs used by the reconciler.
func NewDecoder() (*Decoder, error) {
	farmABI, err := abis.GetFarmABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load farm ABI: %w", err)
	}
	pmABI, err := abis.GetPositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("failed to load position manager ABI: %w", err)
	}
	if err := abis.RequireMethods(farmABI, "getDepositedNFTs", "getUserInfo"); err != nil {
		return nil, fmt.Errorf("farm ABI: %w", err)
	}
	if err := abis.RequireMethods(pmABI, "positions"); err != nil {
		return nil, fmt.Errorf("position manager ABI: %w", err)
	}
	return &Decoder{farmABI: farmABI, positionManagerABI: pmABI}, nil
}

// DepositedNFTsCall builds the per-farm "list deposited NFT ids" call.
func (d *Decoder) DepositedNFTsCall(farm, account common.Address) (outbound.Call, error) {
	data, err := d.farmABI.Pack("getDepositedNFTs", account)
	if err != nil {
		return outbound.Call{}, fmt.Errorf("failed to pack getDepositedNFTs: %w", err)
	}
	return outbound.Call{Target: farm, AllowFailure: true, CallData: data}, nil
}

// DecodeDepositedNFTs unpacks the id list of one farm.
func (d *Decoder) DecodeDepositedNFTs(res outbound.Result) ([]*big.Int, error) {
	if !res.Success {
		return nil, errCallFailed
	}
	values, err := d.farmABI.Unpack("getDepositedNFTs", res.ReturnData)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getDepositedNFTs: %w", err)
	}
	ids, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getDepositedNFTs output type %T", values[0])
	}
	return ids, nil
}

// PositionCall builds the "read position by id" call.
func (d *Decoder) PositionCall(positionManager common.Address, id *big.Int) (outbound.Call, error) {
	data, err := d.positionManagerABI.Pack("positions", id)
	if err != nil {
		return outbound.Call{}, fmt.Errorf("failed to pack positions: %w", err)
	}
	return outbound.Call{Target: positionManager, AllowFailure: true, CallData: data}, nil
}

// DecodePosition turns a positions(id) result into a position. It never
// fails: RPC failures come back as PositionAbsent and undecodable bytes as
// PositionMalformed. The pool address is left for the caller to derive.
func (d *Decoder) DecodePosition(id *big.Int, res outbound.Result) PositionOutcome {
	if !res.Success {
		return PositionOutcome{ID: id, Status: PositionAbsent}
	}

	pos, err := d.unpackPosition(id, res.ReturnData)
	if err != nil {
		return PositionOutcome{ID: id, Status: PositionMalformed, Err: err}
	}
	return PositionOutcome{ID: id, Status: PositionDecoded, Position: pos}
}

func (d *Decoder) unpackPosition(id *big.Int, data []byte) (entity.NFTPosition, error) {
	values, err := d.positionManagerABI.Unpack("positions", data)
	if err != nil {
		return entity.NFTPosition{}, fmt.Errorf("failed to unpack positions: %w", err)
	}
	if len(values) != 12 {
		return entity.NFTPosition{}, fmt.Errorf("positions returned %d values, want 12", len(values))
	}

	token0, ok0 := values[2].(common.Address)
	token1, ok1 := values[3].(common.Address)
	fee, ok2 := values[4].(*big.Int)
	tickLower, ok3 := values[5].(*big.Int)
	tickUpper, ok4 := values[6].(*big.Int)
	liquidity, ok5 := values[7].(*big.Int)
	if !(ok0 && ok1 && ok2 && ok3 && ok4 && ok5) {
		return entity.NFTPosition{}, fmt.Errorf("unexpected positions output types")
	}
	if token0 == (common.Address{}) || token1 == (common.Address{}) {
		return entity.NFTPosition{}, fmt.Errorf("position %s has a zero token address", id)
	}
	if tickLower.Cmp(tickUpper) >= 0 {
		return entity.NFTPosition{}, fmt.Errorf("position %s has tickLower %s >= tickUpper %s", id, tickLower, tickUpper)
	}

	return entity.NFTPosition{
		ID:        new(big.Int).Set(id),
		Token0:    token0,
		Token1:    token1,
		Fee:       uint32(fee.Uint64()),
		TickLower: int32(tickLower.Int64()),
		TickUpper: int32(tickUpper.Int64()),
		Liquidity: liquidity,
	}, nil
}

// UserInfoCall builds the "read user info for (nftId, pid)" call.
func (d *Decoder) UserInfoCall(farm common.Address, nftID *big.Int, pid uint64) (outbound.Call, error) {
	data, err := d.farmABI.Pack("getUserInfo", nftID, new(big.Int).SetUint64(pid))
	if err != nil {
		return outbound.Call{}, fmt.Errorf("failed to pack getUserInfo: %w", err)
	}
	return outbound.Call{Target: farm, AllowFailure: true, CallData: data}, nil
}

// DecodeUserInfo decodes one getUserInfo result. A reverted call (the farm
// reverts with an arithmetic underflow for broken positions), undecodable
// bytes and a rewardPending list whose length differs from rewardTokens are
// all reported through Err.
func (d *Decoder) DecodeUserInfo(nftID *big.Int, pid uint64, rewardTokens int, res outbound.Result) UserInfoOutcome {
	out := UserInfoOutcome{NFTID: nftID, PID: pid}
	if !res.Success {
		out.Err = errCallFailed
		return out
	}

	values, err := d.farmABI.Unpack("getUserInfo", res.ReturnData)
	if err != nil {
		out.Err = fmt.Errorf("failed to unpack getUserInfo: %w", err)
		return out
	}
	liquidity, ok := values[0].(*big.Int)
	if !ok {
		out.Err = fmt.Errorf("unexpected liquidity type %T", values[0])
		return out
	}
	rewards, ok := values[1].([]*big.Int)
	if !ok {
		out.Err = fmt.Errorf("unexpected rewardPending type %T", values[1])
		return out
	}
	if len(rewards) != rewardTokens {
		out.Err = fmt.Errorf("getUserInfo returned %d pending rewards for %d reward tokens", len(rewards), rewardTokens)
		return out
	}

	out.Liquidity = liquidity
	out.Rewards = rewards
	return out
}

// splitUserInfo separates decoded pairs from failed ones, preserving order.
func splitUserInfo(outcomes []UserInfoOutcome) (decoded, failed []UserInfoOutcome) {
	for _, o := range outcomes {
		if o.Failed() {
			failed = append(failed, o)
			continue
		}
		decoded = append(decoded, o)
	}
	return decoded, failed
}
