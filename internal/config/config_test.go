package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowBlocks(t *testing.T) {
	blocks, err := WindowBlocks(2*time.Second, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, uint64(302400), blocks)

	blocks, err = WindowBlocks(10*time.Second, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, uint64(60480), blocks)

	_, err = WindowBlocks(0, time.Hour)
	assert.Error(t, err)
	_, err = WindowBlocks(5*time.Second, time.Second)
	assert.Error(t, err)
}

func resolveFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("resolve", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.String("pools", "", "")
	flags.Uint64("window-blocks", 0, "")
	flags.Int("workers", 0, "")
	flags.Bool("verify", false, "")
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestLoadResolveDefaults(t *testing.T) {
	cfg, err := LoadResolve("", resolveFlags(t, "--rpc", "http://localhost:8545"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
	assert.Equal(t, "./pools.yaml", cfg.PoolsFile)
	assert.Equal(t, 520, cfg.MaxWindows)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.False(t, cfg.Verify)

	blocks, err := cfg.ScanWindowBlocks()
	require.NoError(t, err)
	assert.Equal(t, uint64(302400), blocks)

	policy := cfg.Policy()
	assert.Equal(t, 5, policy.MaxRetries)
	assert.Equal(t, 30*time.Second, policy.MaxDelay)
}

func TestLoadResolveEnvAndFlags(t *testing.T) {
	t.Setenv("AIRDROP_WINDOW_BLOCKS", "60480")
	t.Setenv("AIRDROP_MAX_RETRIES", "2")

	cfg, err := LoadResolve("", resolveFlags(t, "--rpc", "http://node", "--verify", "--workers", "8"))
	require.NoError(t, err)

	blocks, err := cfg.ScanWindowBlocks()
	require.NoError(t, err)
	assert.Equal(t, uint64(60480), blocks)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.Verify)
}

func TestLoadResolveRequiresRPC(t *testing.T) {
	_, err := LoadResolve("", resolveFlags(t))
	assert.Error(t, err)
}

func TestLoadResolveConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airdrop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rpc: http://file\nblock-time: 5s\nwindow: 1h\n"), 0o644))

	cfg, err := LoadResolve(path, resolveFlags(t))
	require.NoError(t, err)
	assert.Equal(t, "http://file", cfg.RPCURL)

	blocks, err := cfg.ScanWindowBlocks()
	require.NoError(t, err)
	assert.Equal(t, uint64(720), blocks)
}

func classifyFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("classify", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.String("store", "", "")
	flags.String("pg-dsn", "", "")
	flags.StringSlice("address", nil, "")
	flags.StringSlice("blacklist", nil, "")
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestLoadClassify(t *testing.T) {
	cfg, err := LoadClassify("", classifyFlags(t,
		"--rpc", "http://node",
		"--store", "memory",
		"--address", "0xdc9232e2df177d7a12fdff6ecbab114e2231198d, 0x160532d2536175d65c03b97b0630a9802c274dad",
	))
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, []string{
		"0xdc9232e2df177d7a12fdff6ecbab114e2231198d",
		"0x160532d2536175d65c03b97b0630a9802c274dad",
	}, cfg.Addresses)
}

func TestLoadClassifyValidation(t *testing.T) {
	cases := map[string][]string{
		"postgres without dsn": {"--rpc", "http://node", "--address", "0xdc9232e2df177d7a12fdff6ecbab114e2231198d"},
		"unknown store":        {"--rpc", "http://node", "--store", "mongo", "--address", "0xdc9232e2df177d7a12fdff6ecbab114e2231198d"},
		"no input":             {"--rpc", "http://node", "--store", "memory"},
		"bad blacklist":        {"--rpc", "http://node", "--store", "memory", "--address", "0xdc9232e2df177d7a12fdff6ecbab114e2231198d", "--blacklist", "0x12"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadClassify("", classifyFlags(t, args...))
			assert.Error(t, err)
		})
	}
}

func TestParseAddresses(t *testing.T) {
	addrs, err := ParseAddresses([]string{" 0xdc9232e2df177d7a12fdff6ecbab114e2231198d ", ""})
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "0xdC9232E2Df177d7a12FdFf6EcBAb114E2231198D", addrs[0].Hex())

	_, err = ParseAddresses([]string{"0x1234"})
	assert.Error(t, err)
}
