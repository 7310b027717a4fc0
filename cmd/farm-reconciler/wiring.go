package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/ethereum/go-ethereum/ethclient"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/archon-research/farmsync/db/migrations"
	"github.com/archon-research/farmsync/db/migrator"
	"github.com/archon-research/farmsync/internal/adapters/outbound/catalog"
	"github.com/archon-research/farmsync/internal/adapters/outbound/postgres"
	"github.com/archon-research/farmsync/internal/adapters/outbound/redis"
	"github.com/archon-research/farmsync/internal/adapters/outbound/sns"
	"github.com/archon-research/farmsync/internal/pkg/blockchain"
	"github.com/archon-research/farmsync/internal/pkg/blockchain/multicall"
	"github.com/archon-research/farmsync/internal/pkg/env"
	"github.com/archon-research/farmsync/internal/ports/outbound"
)

// newLogger writes text logs to stdout, or to a rotating file when LOG_FILE
// is set.
func newLogger() (*slog.Logger, func()) {
	var w io.Writer = os.Stdout
	closeFn := func() {}
	if path := env.Get("LOG_FILE", ""); path != "" {
		rotator := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    int(env.GetInt64("LOG_MAX_SIZE_MB", 100)),
			MaxBackups: int(env.GetInt64("LOG_MAX_BACKUPS", 5)),
			MaxAge:     int(env.GetInt64("LOG_MAX_AGE_DAYS", 14)),
			Compress:   true,
		}
		w = rotator
		closeFn = func() { _ = rotator.Close() }
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))
	return logger, closeFn
}

func newChainReader(client *ethclient.Client, chain blockchain.ChainParams, direct bool) (outbound.Multicaller, error) {
	if direct {
		return multicall.NewDirectCaller(client.Client(), int(env.GetInt64("RPC_MAX_BATCH_SIZE", 0))), nil
	}
	reader, err := multicall.NewClient(client, chain.Multicall)
	if err != nil {
		return nil, fmt.Errorf("failed to create multicall client: %w", err)
	}
	return reader, nil
}

// newCatalog picks the subgraph catalog for http(s) sources and the YAML file
// catalog otherwise.
func newCatalog(src string, chainID int64, logger *slog.Logger) (outbound.FarmCatalog, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		c, err := catalog.NewSubgraphCatalog(catalog.SubgraphConfig{
			Endpoints: map[int64]string{chainID: src},
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create subgraph catalog: %w", err)
		}
		return c, nil
	}
	c, err := catalog.NewFileCatalog(src)
	if err != nil {
		return nil, fmt.Errorf("failed to create file catalog: %w", err)
	}
	return c, nil
}

// newSinks builds every snapshot sink whose environment is configured.
func newSinks(ctx context.Context, logger *slog.Logger) ([]outbound.SnapshotSink, func(), error) {
	var (
		sinks   []outbound.SnapshotSink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) ([]outbound.SnapshotSink, func(), error) {
		closeAll()
		return nil, func() {}, err
	}

	if addr := env.Get("REDIS_ADDR", ""); addr != "" {
		cache, err := redis.NewFarmCache(redis.Config{
			Addr:      addr,
			Password:  env.Get("REDIS_PASSWORD", ""),
			TTL:       env.GetDuration("REDIS_TTL", redis.ConfigDefaults().TTL),
			KeyPrefix: env.Get("REDIS_KEY_PREFIX", ""),
		}, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to create redis sink: %w", err))
		}
		closers = append(closers, func() { _ = cache.Close() })
		if err := cache.Ping(ctx); err != nil {
			return fail(fmt.Errorf("failed to connect to Redis: %w", err))
		}
		logger.Info("Redis connected", "addr", addr)
		sinks = append(sinks, cache)
	}

	if dbURL := env.Get("DATABASE_URL", ""); dbURL != "" {
		pool, err := postgres.OpenPool(ctx, postgres.DefaultDBConfig(dbURL))
		if err != nil {
			return fail(fmt.Errorf("failed to open database: %w", err))
		}
		closers = append(closers, pool.Close)
		if err := migrator.New(pool, migrations.FS(), logger).ApplyAll(ctx); err != nil {
			return fail(fmt.Errorf("failed to apply migrations: %w", err))
		}
		repo, err := postgres.NewFarmSnapshotRepository(pool, logger)
		if err != nil {
			return fail(err)
		}
		logger.Info("PostgreSQL connected")
		sinks = append(sinks, repo)
	}

	if topic := env.Get("SNS_TOPIC_ARN", ""); topic != "" {
		cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(env.Get("AWS_REGION", "us-east-1")))
		if err != nil {
			return fail(fmt.Errorf("failed to load AWS config: %w", err))
		}
		client := awssns.NewFromConfig(cfg, func(o *awssns.Options) {
			if endpoint := env.Get("AWS_SNS_ENDPOINT", ""); endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		notifier, err := sns.NewFarmNotifier(client, sns.Config{TopicARN: topic, Logger: logger})
		if err != nil {
			return fail(fmt.Errorf("failed to create SNS sink: %w", err))
		}
		closers = append(closers, func() { _ = notifier.Close() })
		sinks = append(sinks, notifier)
	}

	return sinks, closeAll, nil
}
