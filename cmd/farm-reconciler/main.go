// Package main runs the farm reconciler: it periodically rebuilds one
// account's deposited positions, joined positions and pending rewards across
// every farm of a chain, serves the published state over HTTP and forwards
// every update to the configured snapshot sinks.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/archon-research/farmsync/internal/adapters/inbound/http"
	"github.com/archon-research/farmsync/internal/adapters/outbound/memory"
	"github.com/archon-research/farmsync/internal/adapters/outbound/telemetry"
	"github.com/archon-research/farmsync/internal/domain/entity"
	"github.com/archon-research/farmsync/internal/pkg/blockchain"
	"github.com/archon-research/farmsync/internal/pkg/env"
	"github.com/archon-research/farmsync/internal/services/farm_reconciler"
	"github.com/archon-research/farmsync/internal/services/shared"
)

const serviceName = "farm-reconciler"

func main() {
	chainID := flag.Int64("chain", 0, "Chain id (default CHAIN_ID or 1)")
	accountHex := flag.String("account", "", "Account to reconcile (default ACCOUNT)")
	catalogSrc := flag.String("catalog", "", "Farm catalog: YAML file path or subgraph http(s) URL (default FARM_CATALOG)")
	chainsPath := flag.String("chains", "", "Optional YAML chain registry layered over the built-in chains")
	addr := flag.String("addr", "", "HTTP listen address (default HTTP_ADDR or :8080)")
	direct := flag.Bool("direct", false, "Use JSON-RPC batching instead of Multicall3")
	once := flag.Bool("once", false, "Run one cycle, print the result as JSON and exit")
	flag.Parse()

	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	logger, closeLog := newLogger()
	defer closeLog()
	slog.SetDefault(logger)

	if *chainID == 0 {
		*chainID = env.GetInt64("CHAIN_ID", 1)
	}
	if *accountHex == "" {
		*accountHex = env.Get("ACCOUNT", "")
	}
	if *catalogSrc == "" {
		*catalogSrc = env.Get("FARM_CATALOG", "")
	}
	if *addr == "" {
		*addr = env.Get("HTTP_ADDR", ":8080")
	}
	if *catalogSrc == "" {
		logger.Error("farm catalog not provided (use -catalog flag or FARM_CATALOG env var)")
		os.Exit(1)
	}

	var account common.Address
	if *accountHex != "" {
		if !common.IsHexAddress(*accountHex) {
			logger.Error("invalid account address", "account", *accountHex)
			os.Exit(1)
		}
		account = common.HexToAddress(*accountHex)
	}

	if err := run(logger, options{
		chainID:    *chainID,
		account:    account,
		catalogSrc: *catalogSrc,
		chainsPath: *chainsPath,
		addr:       *addr,
		direct:     *direct,
		once:       *once,
	}); err != nil {
		logger.Error("farm reconciler failed", "error", err)
		os.Exit(1)
	}
}

type options struct {
	chainID    int64
	account    common.Address
	catalogSrc string
	chainsPath string
	addr       string
	direct     bool
	once       bool
}

func run(logger *slog.Logger, opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := blockchain.DefaultRegistry()
	if opts.chainsPath != "" {
		var err error
		if registry, err = blockchain.LoadRegistry(opts.chainsPath); err != nil {
			return err
		}
	}
	chain, err := registry.Get(opts.chainID)
	if err != nil {
		return err
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:  serviceName,
		Environment:  env.Get("ENVIRONMENT", "development"),
		OTLPEndpoint: env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	})
	if err != nil {
		return fmt.Errorf("failed to init tracer: %w", err)
	}
	defer shutdownWithTimeout(logger, "tracer", shutdownTracer)

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:  serviceName,
		Environment:  env.Get("ENVIRONMENT", "development"),
		OTLPEndpoint: env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	})
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer shutdownWithTimeout(logger, "metrics", shutdownMetrics)

	appTelemetry, err := shared.NewAppTelemetry()
	if err != nil {
		return fmt.Errorf("failed to create telemetry: %w", err)
	}

	rpcURL := env.Get("RPC_URL", "")
	if rpcURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	ethClient, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RPC node: %w", err)
	}
	defer ethClient.Close()
	logger.Info("RPC node connected", "chainID", chain.ChainID, "chain", chain.Name)

	reader, err := newChainReader(ethClient, chain, opts.direct)
	if err != nil {
		return err
	}

	catalog, err := newCatalog(opts.catalogSrc, opts.chainID, logger)
	if err != nil {
		return err
	}

	engine, err := farm_reconciler.NewEngine(farm_reconciler.EngineConfig{
		Chain:        chain,
		BatchTimeout: env.GetDuration("BATCH_TIMEOUT", 10*time.Second),
		Logger:       logger,
	}, catalog, reader, appTelemetry)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	if opts.once {
		return runOnce(ctx, engine, opts.account)
	}

	store := memory.NewFarmStore(logger)

	scheduler, err := farm_reconciler.NewScheduler(farm_reconciler.SchedulerConfig{
		ChainID:         opts.chainID,
		Account:         opts.account,
		RefreshInterval: env.GetDuration("REFRESH_INTERVAL", 15*time.Second),
		Logger:          logger,
	}, engine, store, appTelemetry)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	watcher, err := farm_reconciler.NewCatalogWatcher(farm_reconciler.CatalogWatcherConfig{
		ChainID:      opts.chainID,
		PollInterval: env.GetDuration("CATALOG_POLL_INTERVAL", time.Minute),
		Logger:       logger,
	}, catalog, scheduler)
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}

	sinks, closeSinks, err := newSinks(ctx, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	sinkMetrics, err := telemetry.NewMetrics(serviceName)
	if err != nil {
		return fmt.Errorf("failed to create sink metrics: %w", err)
	}
	forwarder, err := farm_reconciler.NewSinkForwarder(farm_reconciler.SinkForwarderConfig{Logger: logger}, store, sinks, sinkMetrics)
	if err != nil {
		return fmt.Errorf("failed to create sink forwarder: %w", err)
	}

	service, err := farm_reconciler.NewService(farm_reconciler.ServiceConfig{Logger: logger}, store, scheduler)
	if err != nil {
		return fmt.Errorf("failed to create query service: %w", err)
	}
	server := httpadapter.NewServer(httpadapter.ServerConfig{Addr: opts.addr, Logger: logger},
		httpadapter.NewHandler(service, logger))

	if err := forwarder.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sink forwarder: %w", err)
	}
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start catalog watcher: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		return shutdown(logger, server, watcher, scheduler, forwarder)
	})
	return g.Wait()
}

// shutdown stops components in reverse start order, bounded by a timeout.
func shutdown(logger *slog.Logger, server *httpadapter.Server, watcher *farm_reconciler.CatalogWatcher,
	scheduler *farm_reconciler.Scheduler, forwarder *farm_reconciler.SinkForwarder) error {
	timeout := env.GetDuration("SHUTDOWN_TIMEOUT", 25*time.Second)
	done := make(chan error, 1)
	go func() {
		var g errgroup.Group
		g.Go(func() error { return server.Shutdown(timeout) })
		g.Go(watcher.Stop)
		g.Go(scheduler.Stop)
		err := g.Wait()
		if stopErr := forwarder.Stop(); err == nil {
			err = stopErr
		}
		done <- err
	}()

	select {
	case err := <-done:
		logger.Info("shutdown complete")
		return err
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timed out after %s", timeout)
	}
}

func runOnce(ctx context.Context, engine *farm_reconciler.Engine, account common.Address) error {
	if account == (common.Address{}) {
		return fmt.Errorf("account is required with -once")
	}
	result, err := engine.Reconcile(ctx, account)
	if err != nil {
		return err
	}

	untouched := make([]string, len(result.Untouched))
	for i, farm := range result.Untouched {
		untouched[i] = farm.Hex()
	}
	out := struct {
		ChainID   int64                 `json:"chainId"`
		Account   string                `json:"account"`
		Empty     bool                  `json:"empty"`
		Farms     []entity.UserFarmInfo `json:"farms"`
		Untouched []string              `json:"untouched"`
	}{
		ChainID:   result.ChainID,
		Account:   result.Account.Hex(),
		Empty:     result.Empty,
		Farms:     result.Farms,
		Untouched: untouched,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func shutdownWithTimeout(logger *slog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("telemetry shutdown failed", "provider", name, "error", err)
	}
}
