//go:build integration

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/ports/outbound"
	"github.com/archon-research/farmsync/internal/testutil"
)

func setupRedis(t *testing.T, ttl time.Duration) *FarmCache {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	cache, err := NewFarmCache(Config{
		Addr:      fmt.Sprintf("%s:%s", host, port.Port()),
		TTL:       ttl,
		KeyPrefix: "test",
	}, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("failed to create farm cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })

	for i := 0; i < 30; i++ {
		if err := cache.Ping(ctx); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	return cache
}

func sampleUpdate() outbound.FarmUpdate {
	key := entity.FarmKey{ChainID: 1, Account: testutil.Addr(100), Farm: testutil.Addr(1)}
	info := entity.NewUserFarmInfo(key)
	info.DepositedPositions = []entity.NFTPosition{{ID: big.NewInt(7), Liquidity: big.NewInt(1000)}}
	info.Generation = 3
	return outbound.FarmUpdate{Key: key, Info: info}
}

func TestFarmCache_WriteAndDelete(t *testing.T) {
	cache := setupRedis(t, time.Hour)
	ctx := context.Background()
	update := sampleUpdate()

	if err := cache.Write(ctx, update); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	raw, err := cache.Get(ctx, update.Key)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	var got struct {
		Generation         uint64 `json:"generation"`
		DepositedPositions []struct {
			ID string `json:"id"`
		} `json:"depositedPositions"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("stored value is not JSON: %v", err)
	}
	if got.Generation != 3 || len(got.DepositedPositions) != 1 || got.DepositedPositions[0].ID != "7" {
		t.Errorf("stored snapshot = %s", raw)
	}

	keys, err := cache.AccountKeys(ctx, 1, update.Key.Account.Hex())
	if err != nil || len(keys) != 1 {
		t.Fatalf("AccountKeys() = (%v, %v), want one key", keys, err)
	}

	update.Removed = true
	if err := cache.Write(ctx, update); err != nil {
		t.Fatalf("Write(removed) failed: %v", err)
	}
	raw, err = cache.Get(ctx, update.Key)
	if err != nil || raw != nil {
		t.Errorf("Get() after removal = (%s, %v), want nil", raw, err)
	}
}

func TestFarmCache_Expires(t *testing.T) {
	cache := setupRedis(t, time.Second)
	ctx := context.Background()
	update := sampleUpdate()

	if err := cache.Write(ctx, update); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	time.Sleep(1500 * time.Millisecond)

	raw, err := cache.Get(ctx, update.Key)
	if err != nil || raw != nil {
		t.Errorf("Get() after TTL = (%s, %v), want nil", raw, err)
	}
}
