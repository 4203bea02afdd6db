package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PeterTheOne/honeyswap-farm/internal/airdrop"
	"github.com/PeterTheOne/honeyswap-farm/internal/chain"
	"github.com/PeterTheOne/honeyswap-farm/internal/config"
	"github.com/PeterTheOne/honeyswap-farm/internal/creation"
	"github.com/PeterTheOne/honeyswap-farm/internal/metrics"
	"github.com/PeterTheOne/honeyswap-farm/internal/storage"
)

func runResolve(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadResolve(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	windowBlocks, err := cfg.ScanWindowBlocks()
	if err != nil {
		return err
	}

	pools, err := config.LoadPools(cfg.PoolsFile)
	if err != nil {
		return err
	}

	sink := storage.NewJsonlStorage(cfg.Out)
	known, err := sink.LoadCreationRecords()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	startMetrics(ctx, cfg.MetricsAddr, m, logger)

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{RateLimit: cfg.RPCRate, Metrics: m})
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	head, err := chainClient.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	for _, pool := range pools.Pools {
		if pool.Resolvable() && pool.FactoryDeployBlock > head {
			logger.Warn("factory deploy block is past the chain head",
				zap.String("pool", pool.Name),
				zap.Uint64("factory_deploy_block", pool.FactoryDeployBlock),
				zap.Uint64("head", head),
			)
		}
	}

	resolver := creation.NewResolver(creation.Config{
		WindowBlocks: windowBlocks,
		MaxWindows:   cfg.MaxWindows,
		Retry:        cfg.Policy(),
	}, chainClient, logger, m)
	driver := airdrop.NewDriver(airdrop.Config{
		Workers: cfg.Workers,
		Verify:  cfg.Verify,
	}, resolver, nil, logger)

	logger.Info("resolve start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", chainID.String()),
		zap.Uint64("head", head),
		zap.String("pools", cfg.PoolsFile),
		zap.Int("pool_count", len(pools.Pools)),
		zap.Uint64("window_blocks", windowBlocks),
		zap.Int("max_windows", cfg.MaxWindows),
		zap.Int("workers", cfg.Workers),
		zap.Int("known", len(known)),
		zap.Bool("verify", cfg.Verify),
		zap.String("out", cfg.Out),
	)

	records, resolveErr := driver.ResolvePools(ctx, pools.Pools, known)

	fresh := records[:0:0]
	for _, record := range records {
		if _, ok := known[storage.PairKey(record.PairAddress)]; !ok {
			fresh = append(fresh, record)
		}
	}
	if err := sink.PutCreationBatch(fresh); err != nil {
		return fmt.Errorf("store creation records: %w", err)
	}

	logger.Info("resolve done", zap.Int("resolved", len(records)), zap.Int("written", len(fresh)))
	return resolveErr
}
