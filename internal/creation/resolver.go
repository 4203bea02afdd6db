// Package creation finds the block at which a V2 pair was created by its factory.
package creation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/PeterTheOne/honeyswap-farm/internal/chain"
	"github.com/PeterTheOne/honeyswap-farm/internal/dex"
	"github.com/PeterTheOne/honeyswap-farm/internal/metrics"
	"github.com/PeterTheOne/honeyswap-farm/internal/model"
	"github.com/PeterTheOne/honeyswap-farm/internal/retry"
)

const (
	// DefaultWindowBlocks is one week of 2s blocks.
	DefaultWindowBlocks uint64 = (60 / 2) * 60 * 24 * 7
	// DefaultMaxWindows is roughly ten years of weekly windows.
	DefaultMaxWindows = 520
)

// ChainReader is the chain surface the resolver needs.
type ChainReader interface {
	dex.Caller
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error)
}

// Config holds resolver settings.
type Config struct {
	WindowBlocks uint64
	MaxWindows   int
	Retry        retry.Policy
}

// Resolver resolves pair creation blocks. It holds no per-pair state and is safe
// for concurrent use; callers dedupe concurrent requests for the same pair.
type Resolver struct {
	cfg     Config
	chain   ChainReader
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewResolver builds a Resolver with its dependencies.
func NewResolver(cfg Config, chainReader ChainReader, logger *zap.Logger, m *metrics.Metrics) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WindowBlocks == 0 {
		cfg.WindowBlocks = DefaultWindowBlocks
	}
	if cfg.MaxWindows <= 0 {
		cfg.MaxWindows = DefaultMaxWindows
	}
	return &Resolver{
		cfg:     cfg,
		chain:   chainReader,
		logger:  logger,
		metrics: m,
	}
}

// Resolve returns the block number of the pair's PairCreated event.
//
// The pair's tokens are read live and checked against the factory registry before
// the factory log is scanned forward from FactoryDeployBlock in fixed windows.
func (r *Resolver) Resolve(ctx context.Context, ref model.PairRef) (uint64, error) {
	if r.chain == nil {
		return 0, fmt.Errorf("chain client is nil")
	}

	block, err := r.resolve(ctx, ref)
	if err != nil {
		r.metrics.IncResolved(outcome(err))
		return 0, err
	}
	r.metrics.IncResolved("ok")
	return block, nil
}

// Verify resolves the pair and compares the result with an expected block.
// An expected value of zero only resolves.
func (r *Resolver) Verify(ctx context.Context, ref model.PairRef, expected uint64) (uint64, error) {
	block, err := r.Resolve(ctx, ref)
	if err != nil {
		return 0, err
	}
	if expected != 0 && expected != block {
		return block, &CreationMismatchError{Pair: ref.Address, Expected: expected, Actual: block}
	}
	return block, nil
}

func (r *Resolver) resolve(ctx context.Context, ref model.PairRef) (uint64, error) {
	log := r.logger.With(zap.String("pair", ref.Address.Hex()), zap.String("factory", ref.FactoryAddress.Hex()))

	var token0, token1 common.Address
	err := r.query(ctx, "token lookup", ref.Address.Hex(), BlockRange{}, func(ctx context.Context) error {
		var err error
		token0, token1, err = dex.PairTokens(ctx, r.chain, ref.Address)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("pair %s tokens: %w", ref.Address.Hex(), err)
	}

	var stored common.Address
	err = r.query(ctx, "registry lookup", ref.FactoryAddress.Hex(), BlockRange{}, func(ctx context.Context) error {
		var err error
		stored, err = dex.FactoryPair(ctx, r.chain, ref.FactoryAddress, token0, token1)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("pair %s registry: %w", ref.Address.Hex(), err)
	}
	if stored != ref.Address {
		return 0, &FactoryMismatchError{
			Factory:    ref.FactoryAddress,
			Pair:       ref.Address,
			StoredPair: stored,
			Token0:     token0,
			Token1:     token1,
		}
	}

	topics, err := dex.PairCreatedTopics(token0, token1)
	if err != nil {
		return 0, err
	}
	addresses := []common.Address{ref.FactoryAddress}

	var last BlockRange
	scanned := 0
	for i := 0; i < r.cfg.MaxWindows; i++ {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("pair %s at window %d: %w", ref.Address.Hex(), i, err)
		}

		window, ok := Window(ref.FactoryDeployBlock, r.cfg.WindowBlocks, i)
		if !ok {
			break
		}
		last = window

		var logs []types.Log
		err := r.query(ctx, "PairCreated scan", ref.FactoryAddress.Hex(), window, func(ctx context.Context) error {
			var err error
			logs, err = r.chain.FilterLogs(ctx, window.From, window.To, addresses, topics)
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("pair %s window %d: %w", ref.Address.Hex(), i, err)
		}
		scanned++
		r.metrics.IncWindow()
		log.Debug("window scanned",
			zap.Int("window", i),
			zap.Uint64("from", window.From),
			zap.Uint64("to", window.To),
			zap.Int("logs", len(logs)),
		)

		event, found, err := firstPairCreated(logs)
		if err != nil {
			return 0, fmt.Errorf("pair %s window %d: %w", ref.Address.Hex(), i, err)
		}
		if !found {
			continue
		}
		if event.Pair != ref.Address {
			log.Warn("PairCreated names a different pair", zap.String("event_pair", event.Pair.Hex()))
		}
		log.Info("creation block resolved", zap.Uint64("block", event.BlockNumber), zap.Int("windows", i+1))
		return event.BlockNumber, nil
	}

	return 0, &NotFoundError{
		Pair:     ref.Address,
		Factory:  ref.FactoryAddress,
		Windows:  scanned,
		LastFrom: last.From,
		LastTo:   last.To,
	}
}

// query runs fn under the retry policy. Only transient failures are retried;
// those that outlast the policy surface as *chain.QueryError. Decode failures
// and cancellation pass through, and other deterministic failures surface as
// *chain.RejectedError.
func (r *Resolver) query(ctx context.Context, op, target string, window BlockRange, fn func(context.Context) error) error {
	attempts := 0
	err := retry.Do(ctx, r.cfg.Retry, func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		var decodeErr *dex.DecodeError
		if errors.As(err, &decodeErr) || (err != nil && !chain.IsTransient(err)) {
			return retry.Permanent(err)
		}
		return err
	}, func(attempt int, delay time.Duration, err error) {
		r.metrics.IncRetry(op)
		r.logger.Warn("chain query failed, retrying",
			zap.String("op", op),
			zap.String("target", target),
			zap.Uint64("from", window.From),
			zap.Uint64("to", window.To),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
	})
	if err == nil {
		return nil
	}

	var decodeErr *dex.DecodeError
	if errors.As(err, &decodeErr) || chain.IsCanceled(err) {
		return err
	}
	if !chain.IsTransient(err) {
		return &chain.RejectedError{Op: op, Target: target, Err: err}
	}
	return &chain.QueryError{
		Op:       op,
		Target:   target,
		From:     window.From,
		To:       window.To,
		Attempts: attempts,
		Err:      err,
	}
}

// firstPairCreated returns the earliest non-removed event by (block, log index).
func firstPairCreated(logs []types.Log) (dex.PairCreated, bool, error) {
	live := make([]types.Log, 0, len(logs))
	for _, l := range logs {
		if !l.Removed {
			live = append(live, l)
		}
	}
	if len(live) == 0 {
		return dex.PairCreated{}, false, nil
	}
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].BlockNumber != live[j].BlockNumber {
			return live[i].BlockNumber < live[j].BlockNumber
		}
		return live[i].Index < live[j].Index
	})

	event, err := dex.ParsePairCreated(live[0])
	if err != nil {
		return dex.PairCreated{}, false, err
	}
	return event, true, nil
}

func outcome(err error) string {
	var mismatch *FactoryMismatchError
	var notFound *NotFoundError
	var queryErr *chain.QueryError
	var rejected *chain.RejectedError
	switch {
	case errors.As(err, &mismatch):
		return "factory_mismatch"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &queryErr):
		return "chain_error"
	case errors.As(err, &rejected):
		return "rejected"
	case chain.IsCanceled(err):
		return "canceled"
	default:
		return "error"
	}
}
