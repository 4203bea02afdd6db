package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// ResolveConfig holds configuration for the resolve command.
type ResolveConfig struct {
	RPCURL    string
	PoolsFile string
	Out       string
	// BlockTime and Window size the scan window; WindowBlocks overrides them when non-zero.
	BlockTime    time.Duration
	Window       time.Duration
	WindowBlocks uint64
	MaxWindows   int
	Workers      int
	RetryConfig
	RPCRate     float64
	Verify      bool
	MetricsAddr string
	LogLevel    string
}

// ScanWindowBlocks returns the number of blocks per scan window.
func (c ResolveConfig) ScanWindowBlocks() (uint64, error) {
	if c.WindowBlocks != 0 {
		return c.WindowBlocks, nil
	}
	return WindowBlocks(c.BlockTime, c.Window)
}

// WindowBlocks converts a wall-clock window into blocks at the given block time.
func WindowBlocks(blockTime, window time.Duration) (uint64, error) {
	if blockTime <= 0 {
		return 0, fmt.Errorf("block time must be positive, got %s", blockTime)
	}
	if window < blockTime {
		return 0, fmt.Errorf("window %s is shorter than one block (%s)", window, blockTime)
	}
	return uint64(window / blockTime), nil
}

// LoadResolve merges config file, environment variables, and flags into ResolveConfig.
func LoadResolve(cfgFile string, flags *pflag.FlagSet) (ResolveConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"pools":         "./pools.yaml",
		"out":           "./data/creation_blocks.jsonl",
		"block-time":    2 * time.Second,
		"window":        7 * 24 * time.Hour,
		"window-blocks": uint64(0),
		"max-windows":   520,
	})
	if err != nil {
		return ResolveConfig{}, err
	}

	cfg := ResolveConfig{
		RPCURL:       v.GetString("rpc"),
		PoolsFile:    v.GetString("pools"),
		Out:          v.GetString("out"),
		BlockTime:    v.GetDuration("block-time"),
		Window:       v.GetDuration("window"),
		WindowBlocks: v.GetUint64("window-blocks"),
		MaxWindows:   v.GetInt("max-windows"),
		Workers:      v.GetInt("workers"),
		RetryConfig:  retryConfig(v),
		RPCRate:      v.GetFloat64("rpc-rate"),
		Verify:       v.GetBool("verify"),
		MetricsAddr:  v.GetString("metrics-addr"),
		LogLevel:     v.GetString("log-level"),
	}

	if err := validateCommon(cfg.RPCURL, cfg.Workers, cfg.RetryConfig, cfg.RPCRate); err != nil {
		return ResolveConfig{}, err
	}
	if cfg.PoolsFile == "" {
		return ResolveConfig{}, fmt.Errorf("pools file is required")
	}
	if cfg.MaxWindows < 0 {
		return ResolveConfig{}, fmt.Errorf("max-windows must not be negative")
	}
	if _, err := cfg.ScanWindowBlocks(); err != nil {
		return ResolveConfig{}, err
	}
	return cfg, nil
}
