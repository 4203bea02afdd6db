package creation

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// FactoryMismatchError means the factory registry does not map the pair's tokens
// back to the pair. It points at misconfiguration and is never retried.
type FactoryMismatchError struct {
	Factory    common.Address
	Pair       common.Address
	StoredPair common.Address
	Token0     common.Address
	Token1     common.Address
}

func (e *FactoryMismatchError) Error() string {
	return fmt.Sprintf("factory mismatch; factory: %s; pair: %s; stored pair: %s; tokens: %s/%s",
		e.Factory.Hex(), e.Pair.Hex(), e.StoredPair.Hex(), e.Token0.Hex(), e.Token1.Hex())
}

// NotFoundError means no PairCreated event appeared within the window budget.
type NotFoundError struct {
	Pair     common.Address
	Factory  common.Address
	Windows  int
	LastFrom uint64
	LastTo   uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no PairCreated event for pair %s on factory %s after %d windows (last [%d, %d])",
		e.Pair.Hex(), e.Factory.Hex(), e.Windows, e.LastFrom, e.LastTo)
}

// CreationMismatchError means a configured creation block disagrees with the chain.
type CreationMismatchError struct {
	Pair     common.Address
	Expected uint64
	Actual   uint64
}

func (e *CreationMismatchError) Error() string {
	return fmt.Sprintf("pair %s: configured creation block %d, chain says %d", e.Pair.Hex(), e.Expected, e.Actual)
}
