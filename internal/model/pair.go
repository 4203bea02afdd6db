package model

import "github.com/ethereum/go-ethereum/common"

// PairRef identifies a tracked pair and the factory that minted it.
type PairRef struct {
	Address            common.Address
	FactoryAddress     common.Address
	FactoryDeployBlock uint64
}

// CreationRecord is the resolved creation block of a pair.
type CreationRecord struct {
	PairAddress string `json:"pair_address"`
	BlockNumber uint64 `json:"block_number"`
}
