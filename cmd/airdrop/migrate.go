package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PeterTheOne/honeyswap-farm/internal/config"
	"github.com/PeterTheOne/honeyswap-farm/internal/storage/migrations"
	"github.com/PeterTheOne/honeyswap-farm/internal/storage/postgres"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadMigrate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	applied, err := migrations.RunPostgres(ctx, store)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", zap.Strings("files", applied))
	return nil
}
