package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/PeterTheOne/honeyswap-farm/internal/model"
)

// PoolsFile is the reward map: tracked pools and the farm addresses excluded
// from the airdrop.
type PoolsFile struct {
	Pools     []model.Pool `mapstructure:"pools"`
	Blacklist []string     `mapstructure:"blacklist"`
}

// LoadPools reads a pools file in any format viper understands.
func LoadPools(path string) (PoolsFile, error) {
	if path == "" {
		return PoolsFile{}, fmt.Errorf("pools file path is required")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return PoolsFile{}, fmt.Errorf("read pools file: %w", err)
	}

	var file PoolsFile
	if err := v.Unmarshal(&file); err != nil {
		return PoolsFile{}, fmt.Errorf("decode pools file %s: %w", path, err)
	}
	if err := file.Validate(); err != nil {
		return PoolsFile{}, fmt.Errorf("pools file %s: %w", path, err)
	}
	return file, nil
}

// Validate checks names, addresses and weights.
func (f PoolsFile) Validate() error {
	names := make(map[string]struct{}, len(f.Pools))
	for i, pool := range f.Pools {
		if strings.TrimSpace(pool.Name) == "" {
			return fmt.Errorf("pool %d: name is required", i)
		}
		if _, dup := names[pool.Name]; dup {
			return fmt.Errorf("pool %q: duplicate name", pool.Name)
		}
		names[pool.Name] = struct{}{}

		if pool.FactoryAddress != "" && !common.IsHexAddress(pool.FactoryAddress) {
			return fmt.Errorf("pool %q: invalid factory address %s", pool.Name, pool.FactoryAddress)
		}
		if len(pool.Pairs) == 0 {
			return fmt.Errorf("pool %q: no pairs", pool.Name)
		}
		for _, pair := range pool.Pairs {
			if !common.IsHexAddress(pair.Address) {
				return fmt.Errorf("pool %q: invalid pair address %q", pool.Name, pair.Address)
			}
			if pair.Weight < 0 {
				return fmt.Errorf("pool %q: pair %s has negative weight", pool.Name, pair.Address)
			}
			if !pool.Resolvable() && pair.CreatedAt == 0 {
				return fmt.Errorf("pool %q: pair %s needs created-at without a factory", pool.Name, pair.Address)
			}
		}
	}
	if _, err := ParseAddresses(f.Blacklist); err != nil {
		return fmt.Errorf("blacklist: %w", err)
	}
	return nil
}

// BlacklistSet returns the blacklist keyed by checksummed address.
func (f PoolsFile) BlacklistSet() map[string]struct{} {
	out := make(map[string]struct{}, len(f.Blacklist))
	for _, addr := range f.Blacklist {
		addr = strings.TrimSpace(addr)
		if common.IsHexAddress(addr) {
			out[common.HexToAddress(addr).Hex()] = struct{}{}
		}
	}
	return out
}
