package blockchain

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// ErrUnknownChain is returned when no parameters are registered for a chain id.
var ErrUnknownChain = errors.New("unknown chain")

// ChainParams are the per-chain constants the reconciler needs: where positions
// live and how pool addresses are derived.
type ChainParams struct {
	ChainID         int64
	Name            string
	Factory         common.Address
	InitCodeHash    common.Hash
	PositionManager common.Address
	Multicall       common.Address
}

// Validate checks that every address needed for a cycle is set.
func (p ChainParams) Validate() error {
	if p.ChainID <= 0 {
		return fmt.Errorf("chainID must be positive, got %d", p.ChainID)
	}
	if p.Factory == (common.Address{}) {
		return fmt.Errorf("chain %d: factory address is required", p.ChainID)
	}
	if p.InitCodeHash == (common.Hash{}) {
		return fmt.Errorf("chain %d: init code hash is required", p.ChainID)
	}
	if p.PositionManager == (common.Address{}) {
		return fmt.Errorf("chain %d: position manager address is required", p.ChainID)
	}
	return nil
}

// Registry maps chain ids to their parameters.
type Registry map[int64]ChainParams

// DefaultRegistry returns the built-in chain parameters.
func DefaultRegistry() Registry {
	return Registry{
		1: {
			ChainID:         1,
			Name:            "ethereum",
			Factory:         MustParseAddress(UniswapV3FactoryAddress),
			InitCodeHash:    MustParseHash(UniswapV3PoolInitCodeHash),
			PositionManager: MustParseAddress(UniswapV3PositionManagerAddress),
			Multicall:       Multicall3,
		},
	}
}

// Get returns the parameters for chainID.
func (r Registry) Get(chainID int64) (ChainParams, error) {
	p, ok := r[chainID]
	if !ok {
		return ChainParams{}, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	return p, nil
}

type chainFile struct {
	Chains []struct {
		ChainID         int64  `yaml:"chainId"`
		Name            string `yaml:"name"`
		Factory         string `yaml:"factory"`
		InitCodeHash    string `yaml:"initCodeHash"`
		PositionManager string `yaml:"positionManager"`
		Multicall       string `yaml:"multicall"`
	} `yaml:"chains"`
}

// LoadRegistry reads chain parameters from a YAML file and layers them over
// the defaults. Entries in the file replace default entries with the same id.
func LoadRegistry(path string) (Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain registry: %w", err)
	}
	return ParseRegistry(raw)
}

// ParseRegistry parses YAML chain parameters layered over the defaults.
func ParseRegistry(raw []byte) (Registry, error) {
	var file chainFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse chain registry: %w", err)
	}

	reg := DefaultRegistry()
	for _, c := range file.Chains {
		for _, addr := range []string{c.Factory, c.PositionManager} {
			if !common.IsHexAddress(addr) {
				return nil, fmt.Errorf("chain %d: invalid address %q", c.ChainID, addr)
			}
		}
		multicall := Multicall3
		if c.Multicall != "" {
			if !common.IsHexAddress(c.Multicall) {
				return nil, fmt.Errorf("chain %d: invalid multicall address %q", c.ChainID, c.Multicall)
			}
			multicall = common.HexToAddress(c.Multicall)
		}
		p := ChainParams{
			ChainID:         c.ChainID,
			Name:            c.Name,
			Factory:         common.HexToAddress(c.Factory),
			InitCodeHash:    common.HexToHash(c.InitCodeHash),
			PositionManager: common.HexToAddress(c.PositionManager),
			Multicall:       multicall,
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		reg[p.ChainID] = p
	}
	return reg, nil
}
