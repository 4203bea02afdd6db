package model

// Timeframe is the reward window of a pool, in dd-mm-yyyy form.
type Timeframe struct {
	Start string `json:"start" mapstructure:"start"`
	End   string `json:"end" mapstructure:"end"`
}

// TrackedPair is an LP token that earns weight within a pool.
type TrackedPair struct {
	Address   string  `json:"address" mapstructure:"address"`
	Weight    float64 `json:"weight" mapstructure:"weight"`
	CreatedAt uint64  `json:"created_at" mapstructure:"created-at"`
}

// Pool groups tracked pairs sharing an airdrop allocation and, optionally, a factory.
type Pool struct {
	Name               string        `json:"name" mapstructure:"name"`
	Airdrop            uint64        `json:"airdrop" mapstructure:"airdrop"`
	Timeframe          Timeframe     `json:"timeframe" mapstructure:"timeframe"`
	FactoryAddress     string        `json:"factory_address" mapstructure:"factory-address"`
	FactoryDeployBlock uint64        `json:"factory_deploy_block" mapstructure:"factory-deploy-block"`
	Pairs              []TrackedPair `json:"pairs" mapstructure:"pairs"`
}

// Resolvable reports whether creation blocks of the pool's pairs can be looked up
// through a factory registry.
func (p Pool) Resolvable() bool {
	return p.FactoryAddress != ""
}
