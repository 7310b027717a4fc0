// Package redis provides a Redis implementation of the SnapshotSink port.
//
// Every published farm is stored as JSON under
// prefix:chainID:account:farm with a TTL, so readers outside the process see
// the latest aggregate and stale entries expire if the reconciler stops.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/ports/outbound"
	"github.com/archon-research/farmsync/internal/services/shared"
)

var _ outbound.SnapshotSink = (*FarmCache)(nil)

// Config holds Redis cache configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL is how long a snapshot lives without being refreshed
	TTL time.Duration
	// KeyPrefix is prepended to all cache keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for Redis cache configuration.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		TTL:       10 * time.Minute,
		KeyPrefix: shared.DefaultKeyPrefix,
	}
}

// FarmCache writes farm snapshots to Redis.
type FarmCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewFarmCache creates a new Redis farm cache.
func NewFarmCache(cfg Config, logger *slog.Logger) (*FarmCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	defaults := ConfigDefaults()
	if cfg.TTL == 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaults.KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}

	return &FarmCache{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "redis-farm-cache"),
	}, nil
}

// Name returns the sink name.
func (c *FarmCache) Name() string {
	return "redis"
}

// Ping checks the Redis connection.
func (c *FarmCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *FarmCache) Close() error {
	return c.client.Close()
}

func (c *FarmCache) key(k entity.FarmKey) string {
	return shared.SnapshotKey(c.keyPrefix, k)
}

// Write stores the update's snapshot, or deletes it when the farm was removed.
func (c *FarmCache) Write(ctx context.Context, update outbound.FarmUpdate) error {
	key := c.key(update.Key)
	if update.Removed {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to delete farm snapshot: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(update.Info)
	if err != nil {
		return fmt.Errorf("failed to marshal farm snapshot: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache farm snapshot: %w", err)
	}
	return nil
}

// Get returns the stored snapshot JSON, or nil when absent.
func (c *FarmCache) Get(ctx context.Context, key entity.FarmKey) (json.RawMessage, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get farm snapshot: %w", err)
	}
	return data, nil
}

// AccountKeys lists the snapshot keys stored for an account.
func (c *FarmCache) AccountKeys(ctx context.Context, chainID int64, account string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, shared.AccountKeyPattern(c.keyPrefix, chainID, account), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan farm snapshots: %w", err)
	}
	return keys, nil
}
