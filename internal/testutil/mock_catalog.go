package testutil

import (
	"context"
	"sync"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/ports/outbound"
)

var _ outbound.FarmCatalog = (*MockFarmCatalog)(nil)

// MockFarmCatalog implements outbound.FarmCatalog for testing. FarmsFn takes
// precedence over the static farm list when set.
type MockFarmCatalog struct {
	mu        sync.Mutex
	farms     []entity.Farm
	FarmsFn   func(ctx context.Context, chainID int64) ([]entity.Farm, error)
	CallCount int
}

func NewMockFarmCatalog(farms ...entity.Farm) *MockFarmCatalog {
	return &MockFarmCatalog{farms: farms}
}

func (m *MockFarmCatalog) Farms(ctx context.Context, chainID int64) ([]entity.Farm, error) {
	m.mu.Lock()
	m.CallCount++
	fn := m.FarmsFn
	farms := append([]entity.Farm(nil), m.farms...)
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, chainID)
	}
	return farms, nil
}

// SetFarms replaces the static farm list.
func (m *MockFarmCatalog) SetFarms(farms ...entity.Farm) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.farms = farms
}
