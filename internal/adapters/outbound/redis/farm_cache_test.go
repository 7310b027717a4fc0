package redis

import (
	"strings"
	"testing"
	"time"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/testutil"
)

func TestNewFarmCache_CreatesWithConfig(t *testing.T) {
	cfg := Config{
		Addr:      "localhost:6379",
		Password:  "secret",
		DB:        1,
		TTL:       time.Hour,
		KeyPrefix: "test",
	}

	cache, err := NewFarmCache(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	if cache.ttl != cfg.TTL {
		t.Errorf("expected TTL=%v, got %v", cfg.TTL, cache.ttl)
	}
	if cache.keyPrefix != cfg.KeyPrefix {
		t.Errorf("expected keyPrefix=%s, got %s", cfg.KeyPrefix, cache.keyPrefix)
	}
	if cache.Name() != "redis" {
		t.Errorf("Name() = %q", cache.Name())
	}
}

func TestNewFarmCache_EmptyAddrReturnsError(t *testing.T) {
	_, err := NewFarmCache(Config{}, nil)
	if err == nil || !strings.Contains(err.Error(), "redis address is required") {
		t.Errorf("expected 'redis address is required' error, got %v", err)
	}
}

func TestNewFarmCache_AppliesDefaults(t *testing.T) {
	cache, err := NewFarmCache(Config{Addr: "localhost:6379"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	defaults := ConfigDefaults()
	if cache.ttl != defaults.TTL {
		t.Errorf("ttl = %v, want %v", cache.ttl, defaults.TTL)
	}
	if cache.keyPrefix != defaults.KeyPrefix {
		t.Errorf("keyPrefix = %q, want %q", cache.keyPrefix, defaults.KeyPrefix)
	}
	if cache.logger == nil {
		t.Fatal("expected default logger")
	}
}

func TestFarmCache_KeyFormat(t *testing.T) {
	cache, err := NewFarmCache(Config{Addr: "localhost:6379", KeyPrefix: "test"}, testutil.DiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	key := cache.key(entity.FarmKey{ChainID: 137, Account: testutil.Addr(1), Farm: testutil.Addr(2)})
	want := "test:137:" + strings.ToLower(testutil.Addr(1).Hex()) + ":" + strings.ToLower(testutil.Addr(2).Hex())
	if key != want {
		t.Errorf("key = %q, want %q", key, want)
	}
}
