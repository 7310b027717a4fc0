package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/ports/outbound"
)

var _ outbound.FarmCatalog = (*FileCatalog)(nil)

type catalogFile struct {
	Chains map[int64]struct {
		Farms []rawFarm `yaml:"farms"`
	} `yaml:"chains"`
}

// FileCatalog reads farms from a YAML file. The file is re-read on every
// call so edits are picked up by the catalog watcher.
//
//	chains:
//	  1:
//	    farms:
//	      - address: "0x..."
//	        rewardLocker: "0x..."
//	        pools:
//	          - pid: "0"
//	            pool: "0x..."
//	            rewardTokens: ["0x..."]
type FileCatalog struct {
	path string
}

// NewFileCatalog creates a catalog backed by path.
func NewFileCatalog(path string) (*FileCatalog, error) {
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	return &FileCatalog{path: path}, nil
}

// Farms returns the farms listed for chainID, or none when the chain is absent.
func (c *FileCatalog) Farms(ctx context.Context, chainID int64) ([]entity.Farm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read farm catalog: %w", err)
	}
	return ParseFile(raw, chainID)
}

// ParseFile parses catalog YAML and returns the farms of chainID.
func ParseFile(raw []byte, chainID int64) ([]entity.Farm, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse farm catalog: %w", err)
	}
	farms, err := toFarms(file.Chains[chainID].Farms)
	if err != nil {
		return nil, fmt.Errorf("invalid farm catalog for chain %d: %w", chainID, err)
	}
	return farms, nil
}
