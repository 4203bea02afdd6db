package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PeterTheOne/honeyswap-farm/internal/airdrop"
	"github.com/PeterTheOne/honeyswap-farm/internal/chain"
	"github.com/PeterTheOne/honeyswap-farm/internal/classify"
	"github.com/PeterTheOne/honeyswap-farm/internal/config"
	"github.com/PeterTheOne/honeyswap-farm/internal/metrics"
	"github.com/PeterTheOne/honeyswap-farm/internal/model"
	"github.com/PeterTheOne/honeyswap-farm/internal/storage"
	"github.com/PeterTheOne/honeyswap-farm/internal/storage/badger"
	"github.com/PeterTheOne/honeyswap-farm/internal/storage/memory"
	"github.com/PeterTheOne/honeyswap-farm/internal/storage/postgres"
)

func runClassify(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadClassify(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	addresses := append([]string(nil), cfg.Addresses...)
	if cfg.In != "" {
		fromFile, err := readAddressFile(cfg.In)
		if err != nil {
			return err
		}
		addresses = append(addresses, fromFile...)
	}

	blacklist := config.PoolsFile{Blacklist: cfg.Blacklist}
	if cfg.PoolsFile != "" {
		pools, err := config.LoadPools(cfg.PoolsFile)
		if err != nil {
			return err
		}
		blacklist.Blacklist = append(blacklist.Blacklist, pools.Blacklist...)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	startMetrics(ctx, cfg.MetricsAddr, m, logger)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL, chain.Options{RateLimit: cfg.RPCRate, Metrics: m})
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	classifier := classify.NewClassifier(classify.Config{Retry: cfg.Policy()}, chainClient, store, logger, m)
	driver := airdrop.NewDriver(airdrop.Config{
		Workers:   cfg.Workers,
		Blacklist: blacklist.BlacklistSet(),
	}, nil, classifier, logger)

	logger.Info("classify start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("chain_id", chainID.String()),
		zap.String("store", cfg.Store),
		zap.Int("addresses", len(addresses)),
		zap.Int("blacklist", len(blacklist.Blacklist)),
		zap.Int("workers", cfg.Workers),
		zap.String("out", cfg.Out),
	)

	results, classifyErr := driver.ClassifyAll(ctx, addresses)

	if err := storage.NewJsonlStorage(cfg.Out).PutClassificationBatch(sortedClassifications(results)); err != nil {
		return fmt.Errorf("write classifications: %w", err)
	}

	stats := classifier.Stats()
	logger.Info("classify done",
		zap.Int("classified", len(results)),
		zap.Uint64("cache_hits", stats.CacheHits),
		zap.Uint64("chain_lookups", stats.ChainLookups),
	)
	return classifyErr
}

func openStore(ctx context.Context, cfg config.ClassifyConfig) (storage.ClassificationStore, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.StoreBadger:
		store, err := badger.Open(cfg.BadgerDir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.StoreMemory:
		return memory.NewClassificationStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func readAddressFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer file.Close()
	return readAddresses(file)
}

// readAddresses reads one address per line; blank lines and # comments are skipped.
func readAddresses(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan input: %w", err)
	}
	return out, nil
}

func sortedClassifications(results map[string]bool) []model.AddressClassification {
	out := make([]model.AddressClassification, 0, len(results))
	for address, isContract := range results {
		out = append(out, model.AddressClassification{Address: address, IsContract: isContract})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}
