package outbound

import (
	"context"

	"github.com/archon-research/farmsync/internal/domain/entity"
)

// FarmCatalog supplies the static farm topology for a chain. The returned
// slice is treated as read-only and is re-read wholesale every cycle.
type FarmCatalog interface {
	Farms(ctx context.Context, chainID int64) ([]entity.Farm, error)
}
