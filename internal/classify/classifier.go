// Package classify tells contract addresses apart from user accounts, caching
// each answer permanently in a ClassificationStore.
package classify

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/PeterTheOne/honeyswap-farm/internal/chain"
	"github.com/PeterTheOne/honeyswap-farm/internal/metrics"
	"github.com/PeterTheOne/honeyswap-farm/internal/model"
	"github.com/PeterTheOne/honeyswap-farm/internal/retry"
	"github.com/PeterTheOne/honeyswap-farm/internal/storage"
)

// CodeReader reads deployed bytecode at the latest block.
type CodeReader interface {
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
}

type Config struct {
	Retry retry.Policy
}

// Stats counts how classifications were answered.
type Stats struct {
	CacheHits    uint64
	ChainLookups uint64
}

// Classifier is safe for concurrent use. Concurrent first-time requests for the
// same address may each query the chain; the store keeps the first answer.
type Classifier struct {
	cfg     Config
	code    CodeReader
	store   storage.ClassificationStore
	logger  *zap.Logger
	metrics *metrics.Metrics

	cacheHits    atomic.Uint64
	chainLookups atomic.Uint64
}

func NewClassifier(cfg Config, code CodeReader, store storage.ClassificationStore, logger *zap.Logger, m *metrics.Metrics) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		cfg:     cfg,
		code:    code,
		store:   store,
		logger:  logger,
		metrics: m,
	}
}

// Canonical returns the EIP-55 checksummed form of address.
func Canonical(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if !common.IsHexAddress(trimmed) {
		return "", &InvalidAddressError{Input: address}
	}
	return common.HexToAddress(trimmed).Hex(), nil
}

// Classify reports whether address holds contract code. A stored answer is
// returned without touching the chain; otherwise the code is read at the latest
// block and the answer stored. An address without code is recorded as an
// account for good, even if a contract is deployed there later.
func (c *Classifier) Classify(ctx context.Context, address string) (bool, error) {
	canonical, err := Canonical(address)
	if err != nil {
		return false, err
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}
	stored, err := c.store.Get(ctx, canonical)
	switch {
	case err == nil:
		c.cacheHits.Add(1)
		c.metrics.IncClassification("cache", stored.IsContract)
		return stored.IsContract, nil
	case errors.Is(err, storage.ErrNotFound):
	case chain.IsCanceled(err):
		return false, err
	default:
		return false, &StoreError{Op: "get", Address: canonical, Err: err}
	}

	isContract, err := c.hasCode(ctx, canonical)
	if err != nil {
		return false, err
	}
	c.chainLookups.Add(1)

	if err := ctx.Err(); err != nil {
		return false, err
	}
	stored, err = c.store.UpsertIfAbsent(ctx, model.AddressClassification{Address: canonical, IsContract: isContract})
	if err != nil {
		if chain.IsCanceled(err) {
			return false, err
		}
		return false, &StoreError{Op: "upsert", Address: canonical, Err: err}
	}
	if stored.IsContract != isContract {
		c.logger.Warn("stored classification differs from fresh lookup",
			zap.String("address", canonical),
			zap.Bool("stored", stored.IsContract),
			zap.Bool("observed", isContract),
		)
	}
	c.metrics.IncClassification("chain", stored.IsContract)
	c.logger.Debug("address classified", zap.String("address", canonical), zap.Bool("is_contract", stored.IsContract))
	return stored.IsContract, nil
}

// Stats returns a snapshot of the counters.
func (c *Classifier) Stats() Stats {
	return Stats{
		CacheHits:    c.cacheHits.Load(),
		ChainLookups: c.chainLookups.Load(),
	}
}

func (c *Classifier) hasCode(ctx context.Context, address string) (bool, error) {
	account := common.HexToAddress(address)
	attempts := 0
	var code []byte
	err := retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) error {
		attempts++
		var err error
		code, err = c.code.CodeAt(ctx, account)
		if err != nil && !chain.IsTransient(err) {
			return retry.Permanent(err)
		}
		return err
	}, func(attempt int, delay time.Duration, err error) {
		c.metrics.IncRetry("code lookup")
		c.logger.Warn("code lookup failed, retrying",
			zap.String("address", address),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
	})
	if err != nil {
		if chain.IsCanceled(err) {
			return false, err
		}
		if !chain.IsTransient(err) {
			return false, &chain.RejectedError{Op: "code lookup", Target: address, Err: err}
		}
		return false, &chain.QueryError{Op: "code lookup", Target: address, Attempts: attempts, Err: err}
	}
	return len(code) > 0, nil
}
