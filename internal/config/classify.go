package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Classification store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreBadger   = "badger"
)

// ClassifyConfig holds configuration for the classify command.
type ClassifyConfig struct {
	RPCURL    string
	Store     string
	PGDSN     string
	BadgerDir string
	In        string
	Addresses []string
	// PoolsFile, when set, contributes its blacklist.
	PoolsFile string
	Blacklist []string
	Out       string
	Workers   int
	RetryConfig
	RPCRate     float64
	MetricsAddr string
	LogLevel    string
}

// LoadClassify merges config file, environment variables, and flags into ClassifyConfig.
func LoadClassify(cfgFile string, flags *pflag.FlagSet) (ClassifyConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]any{
		"store":      StorePostgres,
		"badger-dir": "./data/addresses.badger",
		"out":        "./data/classifications.jsonl",
	})
	if err != nil {
		return ClassifyConfig{}, err
	}

	cfg := ClassifyConfig{
		RPCURL:      v.GetString("rpc"),
		Store:       v.GetString("store"),
		PGDSN:       v.GetString("pg-dsn"),
		BadgerDir:   v.GetString("badger-dir"),
		In:          v.GetString("in"),
		Addresses:   getStringSlice(v, "address"),
		PoolsFile:   v.GetString("pools"),
		Blacklist:   getStringSlice(v, "blacklist"),
		Out:         v.GetString("out"),
		Workers:     v.GetInt("workers"),
		RetryConfig: retryConfig(v),
		RPCRate:     v.GetFloat64("rpc-rate"),
		MetricsAddr: v.GetString("metrics-addr"),
		LogLevel:    v.GetString("log-level"),
	}

	if err := validateCommon(cfg.RPCURL, cfg.Workers, cfg.RetryConfig, cfg.RPCRate); err != nil {
		return ClassifyConfig{}, err
	}
	switch cfg.Store {
	case StoreMemory:
	case StorePostgres:
		if cfg.PGDSN == "" {
			return ClassifyConfig{}, fmt.Errorf("pg-dsn is required for the postgres store")
		}
	case StoreBadger:
		if cfg.BadgerDir == "" {
			return ClassifyConfig{}, fmt.Errorf("badger-dir is required for the badger store")
		}
	default:
		return ClassifyConfig{}, fmt.Errorf("unknown store %q (want %s, %s or %s)", cfg.Store, StorePostgres, StoreBadger, StoreMemory)
	}
	if cfg.In == "" && len(cfg.Addresses) == 0 {
		return ClassifyConfig{}, fmt.Errorf("either --in or --address is required")
	}
	if _, err := ParseAddresses(cfg.Blacklist); err != nil {
		return ClassifyConfig{}, fmt.Errorf("blacklist: %w", err)
	}
	return cfg, nil
}

// MigrateConfig holds configuration for the migrate command.
type MigrateConfig struct {
	PGDSN    string
	LogLevel string
}

// LoadMigrate merges config file, environment variables, and flags into MigrateConfig.
func LoadMigrate(cfgFile string, flags *pflag.FlagSet) (MigrateConfig, error) {
	v, err := newViper(cfgFile, flags, nil)
	if err != nil {
		return MigrateConfig{}, err
	}
	cfg := MigrateConfig{
		PGDSN:    v.GetString("pg-dsn"),
		LogLevel: v.GetString("log-level"),
	}
	if cfg.PGDSN == "" {
		return MigrateConfig{}, fmt.Errorf("pg-dsn is required")
	}
	return cfg, nil
}
