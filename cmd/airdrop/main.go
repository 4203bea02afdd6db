package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/PeterTheOne/honeyswap-farm/internal/metrics"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "airdrop",
		Short:        "LP airdrop pair-creation resolver and address classifier",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve creation blocks of tracked pairs",
		RunE:  runResolve,
	}

	resolveCmd.Flags().String("rpc", "", "RPC URL")
	resolveCmd.Flags().String("pools", "./pools.yaml", "pools file (reward map)")
	resolveCmd.Flags().String("out", "./data/creation_blocks.jsonl", "output JSONL path; existing records are skipped")
	resolveCmd.Flags().Duration("block-time", 2*time.Second, "average block time")
	resolveCmd.Flags().Duration("window", 7*24*time.Hour, "scan window length")
	resolveCmd.Flags().Uint64("window-blocks", 0, "blocks per scan window, overrides block-time and window")
	resolveCmd.Flags().Int("max-windows", 520, "maximum windows scanned per pair")
	resolveCmd.Flags().Bool("verify", false, "re-resolve pairs with a known created-at and check it")
	addCommonFlags(resolveCmd)

	root.AddCommand(resolveCmd)

	classifyCmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify addresses as contracts or accounts",
		RunE:  runClassify,
	}

	classifyCmd.Flags().String("rpc", "", "RPC URL")
	classifyCmd.Flags().String("store", "postgres", "classification store (postgres, badger, memory)")
	classifyCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	classifyCmd.Flags().String("badger-dir", "./data/addresses.badger", "badger data directory")
	classifyCmd.Flags().String("in", "", "input file, one address per line")
	classifyCmd.Flags().StringSlice("address", nil, "addresses (comma-separated)")
	classifyCmd.Flags().String("pools", "", "pools file whose blacklist is excluded")
	classifyCmd.Flags().StringSlice("blacklist", nil, "extra excluded addresses (comma-separated)")
	classifyCmd.Flags().String("out", "./data/classifications.jsonl", "output JSONL path")
	addCommonFlags(classifyCmd)

	root.AddCommand(classifyCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres migrations",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(migrateCmd)

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().Int("workers", 4, "concurrent workers")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().Duration("max-backoff", 30*time.Second, "maximum retry backoff")
	cmd.Flags().Float64("rpc-rate", 0, "RPC requests per second, 0 means unlimited")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// startMetrics serves m in the background when addr is set.
func startMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *zap.Logger) {
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(ctx, addr, m, logger); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
}
