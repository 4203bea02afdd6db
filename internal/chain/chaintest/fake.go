// Package chaintest provides an in-memory chain that answers the calls the
// resolver and classifier make, with call counters and failure injection.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/PeterTheOne/honeyswap-farm/internal/dex"
)

// Range is an inclusive block range passed to FilterLogs.
type Range struct {
	From uint64
	To   uint64
}

// Chain is a fake read-only chain. It is safe for concurrent use.
type Chain struct {
	mu sync.Mutex

	code    map[common.Address][]byte
	tokens  map[common.Address][2]common.Address
	pairs   map[common.Address]map[[2]common.Address]common.Address
	logs    []types.Log
	created uint64

	callFailures   []error
	filterFailures []error
	codeFailures   []error

	calls       map[string]int
	codeCalls   int
	filterCalls []Range
}

// New returns an empty fake chain.
func New() *Chain {
	return &Chain{
		code:   make(map[common.Address][]byte),
		tokens: make(map[common.Address][2]common.Address),
		pairs:  make(map[common.Address]map[[2]common.Address]common.Address),
		calls:  make(map[string]int),
	}
}

// SetCode sets the code at an address.
func (c *Chain) SetCode(addr common.Address, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code[addr] = code
}

// SetPairTokens makes pair answer token0/token1.
func (c *Chain) SetPairTokens(pair, token0, token1 common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[pair] = [2]common.Address{token0, token1}
}

// RegisterPair makes factory.getPair(token0, token1) return pair.
func (c *Chain) RegisterPair(factory, token0, token1, pair common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg, ok := c.pairs[factory]
	if !ok {
		reg = make(map[[2]common.Address]common.Address)
		c.pairs[factory] = reg
	}
	reg[[2]common.Address{token0, token1}] = pair
}

// AddPairCreated appends a PairCreated log emitted by factory.
func (c *Chain) AddPairCreated(factory, token0, token1, pair common.Address, block uint64, logIndex uint) {
	factoryABI, err := dex.V2FactoryABI()
	if err != nil {
		panic(err)
	}
	event := factoryABI.Events["PairCreated"]

	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
	data, err := event.Inputs.NonIndexed().Pack(pair, new(big.Int).SetUint64(c.created))
	if err != nil {
		panic(err)
	}
	c.logs = append(c.logs, types.Log{
		Address:     factory,
		Topics:      []common.Hash{event.ID, common.BytesToHash(token0.Bytes()), common.BytesToHash(token1.Bytes())},
		Data:        data,
		BlockNumber: block,
		Index:       logIndex,
	})
}

// AddLog appends a raw log.
func (c *Chain) AddLog(log types.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, log)
}

// FailCalls makes the next CallContract calls fail with errs, in order.
func (c *Chain) FailCalls(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callFailures = append(c.callFailures, errs...)
}

// FailFilterLogs makes the next FilterLogs calls fail with errs, in order.
func (c *Chain) FailFilterLogs(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filterFailures = append(c.filterFailures, errs...)
}

// FailCode makes the next CodeAt calls fail with errs, in order.
func (c *Chain) FailCode(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codeFailures = append(c.codeFailures, errs...)
}

// Calls returns how many times a contract method was called.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// CodeCalls returns how many CodeAt calls were made.
func (c *Chain) CodeCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codeCalls
}

// FilterCalls returns the ranges of every FilterLogs call, in order.
func (c *Chain) FilterCalls() []Range {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Range, len(c.filterCalls))
	copy(out, c.filterCalls)
	return out
}

// CodeAt implements the classifier's code reader.
func (c *Chain) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codeCalls++
	if len(c.codeFailures) > 0 {
		err := c.codeFailures[0]
		c.codeFailures = c.codeFailures[1:]
		return nil, err
	}
	return c.code[account], nil
}

// CallContract answers token0, token1 and getPair.
func (c *Chain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, fmt.Errorf("invalid call")
	}
	pairABI, err := dex.V2PairABI()
	if err != nil {
		return nil, err
	}
	factoryABI, err := dex.V2FactoryABI()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if method, err := pairABI.MethodById(msg.Data[:4]); err == nil {
		c.calls[method.Name]++
		if err := c.popCallFailure(); err != nil {
			return nil, err
		}
		tokens, ok := c.tokens[*msg.To]
		if !ok {
			return nil, nil
		}
		switch method.Name {
		case "token0":
			return method.Outputs.Pack(tokens[0])
		case "token1":
			return method.Outputs.Pack(tokens[1])
		default:
			return nil, fmt.Errorf("unsupported pair method %s", method.Name)
		}
	}

	method, err := factoryABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, fmt.Errorf("unknown selector %x", msg.Data[:4])
	}
	c.calls[method.Name]++
	if err := c.popCallFailure(); err != nil {
		return nil, err
	}
	if method.Name != "getPair" {
		return nil, fmt.Errorf("unsupported factory method %s", method.Name)
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	key := [2]common.Address{args[0].(common.Address), args[1].(common.Address)}
	return method.Outputs.Pack(c.pairs[*msg.To][key])
}

// FilterLogs returns stored logs matching the address list, range and positional topics,
// ordered by block then log index.
func (c *Chain) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filterCalls = append(c.filterCalls, Range{From: fromBlock, To: toBlock})
	if len(c.filterFailures) > 0 {
		err := c.filterFailures[0]
		c.filterFailures = c.filterFailures[1:]
		return nil, err
	}

	var out []types.Log
	for _, log := range c.logs {
		if log.BlockNumber < fromBlock || log.BlockNumber > toBlock {
			continue
		}
		if len(addresses) > 0 && !containsAddress(addresses, log.Address) {
			continue
		}
		if !matchTopics(topics, log.Topics) {
			continue
		}
		out = append(out, log)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (c *Chain) popCallFailure() error {
	if len(c.callFailures) == 0 {
		return nil
	}
	err := c.callFailures[0]
	c.callFailures = c.callFailures[1:]
	return err
}

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

func matchTopics(filter [][]common.Hash, topics []common.Hash) bool {
	if len(filter) > len(topics) {
		return false
	}
	for i, alternatives := range filter {
		if len(alternatives) == 0 {
			continue
		}
		found := false
		for _, want := range alternatives {
			if topics[i] == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
