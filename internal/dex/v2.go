package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Caller performs read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// DecodeError means a call or log returned data that does not fit the ABI.
// Retrying does not help.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.What, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// PairCreated is a decoded factory PairCreated log.
type PairCreated struct {
	Token0      common.Address
	Token1      common.Address
	Pair        common.Address
	PairIndex   *big.Int
	BlockNumber uint64
	LogIndex    uint
}

// PairTokens reads token0 and token1 of a V2 pair.
func PairTokens(ctx context.Context, caller Caller, pair common.Address) (common.Address, common.Address, error) {
	pairABI, err := V2PairABI()
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("parse pair abi: %w", err)
	}

	values, err := callMethod(ctx, caller, pair, pairABI, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, &DecodeError{What: "token0", Err: err}
	}

	values, err = callMethod(ctx, caller, pair, pairABI, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, &DecodeError{What: "token1", Err: err}
	}

	return token0, token1, nil
}

// FactoryPair returns the pair the factory registry stores for (token0, token1).
func FactoryPair(ctx context.Context, caller Caller, factory, token0, token1 common.Address) (common.Address, error) {
	factoryABI, err := V2FactoryABI()
	if err != nil {
		return common.Address{}, fmt.Errorf("parse factory abi: %w", err)
	}

	values, err := callMethod(ctx, caller, factory, factoryABI, "getPair", token0, token1)
	if err != nil {
		return common.Address{}, err
	}
	pair, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, &DecodeError{What: "getPair", Err: err}
	}
	return pair, nil
}

// PairCreatedTopics builds the positional topic filter for PairCreated(token0, token1).
func PairCreatedTopics(token0, token1 common.Address) ([][]common.Hash, error) {
	factoryABI, err := V2FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	return [][]common.Hash{
		{factoryABI.Events["PairCreated"].ID},
		{common.BytesToHash(token0.Bytes())},
		{common.BytesToHash(token1.Bytes())},
	}, nil
}

// ParsePairCreated decodes a PairCreated log.
func ParsePairCreated(log types.Log) (PairCreated, error) {
	factoryABI, err := V2FactoryABI()
	if err != nil {
		return PairCreated{}, fmt.Errorf("parse factory abi: %w", err)
	}
	event := factoryABI.Events["PairCreated"]

	if len(log.Topics) != 3 || log.Topics[0] != event.ID {
		return PairCreated{}, &DecodeError{What: "PairCreated", Err: fmt.Errorf("unexpected topics %v", log.Topics)}
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return PairCreated{}, &DecodeError{What: "PairCreated", Err: err}
	}
	if len(values) != 2 {
		return PairCreated{}, &DecodeError{What: "PairCreated", Err: fmt.Errorf("expected 2 data fields, got %d", len(values))}
	}
	pair, err := asAddress(values[0])
	if err != nil {
		return PairCreated{}, &DecodeError{What: "PairCreated.pair", Err: err}
	}
	index, ok := values[1].(*big.Int)
	if !ok {
		return PairCreated{}, &DecodeError{What: "PairCreated.index", Err: fmt.Errorf("unsupported int type %T", values[1])}
	}

	return PairCreated{
		Token0:      common.BytesToAddress(log.Topics[1].Bytes()),
		Token1:      common.BytesToAddress(log.Topics[2].Bytes()),
		Pair:        pair,
		PairIndex:   index,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}, nil
}

func callMethod(ctx context.Context, caller Caller, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &contract, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, &DecodeError{What: method, Err: err}
	}
	if len(values) == 0 {
		return nil, &DecodeError{What: method, Err: fmt.Errorf("empty result")}
	}
	return values, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}
