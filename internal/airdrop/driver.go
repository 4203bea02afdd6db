// Package airdrop drives the resolver and the classifier over a reward map.
package airdrop

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/PeterTheOne/honeyswap-farm/internal/classify"
	"github.com/PeterTheOne/honeyswap-farm/internal/model"
	"github.com/PeterTheOne/honeyswap-farm/internal/storage"
)

// Resolver looks up pair creation blocks.
type Resolver interface {
	Resolve(ctx context.Context, ref model.PairRef) (uint64, error)
	Verify(ctx context.Context, ref model.PairRef, expected uint64) (uint64, error)
}

// Classifier tells contracts from accounts.
type Classifier interface {
	Classify(ctx context.Context, address string) (bool, error)
}

type Config struct {
	Workers int
	// Verify re-resolves pairs with a known creation block and checks it.
	Verify bool
	// Blacklist holds checksummed farm addresses excluded from the airdrop.
	Blacklist map[string]struct{}
}

// Driver fans work out over a bounded number of workers.
type Driver struct {
	cfg        Config
	resolver   Resolver
	classifier Classifier
	logger     *zap.Logger
	pairs      singleflight.Group
}

func NewDriver(cfg Config, resolver Resolver, classifier Classifier, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Driver{
		cfg:        cfg,
		resolver:   resolver,
		classifier: classifier,
		logger:     logger,
	}
}

type pairJob struct {
	pool     string
	ref      model.PairRef
	expected uint64
}

// ResolvePools resolves the creation block of every pair in a factory-backed pool
// that lacks one. Pairs listed in known, or with a configured created-at, are
// skipped unless verifying. Each pair is resolved at most once even when several
// pools list it. Failures do not stop other pairs; they are joined into the
// returned error alongside the records that did resolve.
func (d *Driver) ResolvePools(ctx context.Context, pools []model.Pool, known map[string]model.CreationRecord) ([]model.CreationRecord, error) {
	if d.resolver == nil {
		return nil, fmt.Errorf("resolver is nil")
	}

	jobs, skipped, err := d.plan(pools, known)
	if err != nil {
		return nil, err
	}
	d.logger.Info("resolve planned", zap.Int("pairs", len(jobs)), zap.Int("skipped", skipped))

	records := make([]*model.CreationRecord, len(jobs))
	errs := make([]error, len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(d.cfg.Workers)
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("pool %s pair %s: %w", job.pool, job.ref.Address.Hex(), err)
				return nil
			}
			block, err := d.ResolvePair(ctx, job.ref, job.expected)
			if block != 0 {
				records[i] = &model.CreationRecord{PairAddress: job.ref.Address.Hex(), BlockNumber: block}
			}
			if err != nil {
				errs[i] = fmt.Errorf("pool %s pair %s: %w", job.pool, job.ref.Address.Hex(), err)
				d.logger.Error("pair not resolved", zap.String("pool", job.pool), zap.String("pair", job.ref.Address.Hex()), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.CreationRecord, 0, len(jobs))
	for _, record := range records {
		if record != nil {
			out = append(out, *record)
		}
	}
	joined := errors.Join(errs...)
	d.logger.Info("resolve complete", zap.Int("resolved", len(out)), zap.Int("failed", countErrors(errs)))
	return out, joined
}

// ResolvePair resolves one pair, sharing the result with concurrent callers for
// the same pair address and expected block. A non-zero expected block is
// verified. The shared lookup is detached from any one caller's cancellation;
// each caller stops waiting when its own ctx is done.
func (d *Driver) ResolvePair(ctx context.Context, ref model.PairRef, expected uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := fmt.Sprintf("%s/%d", storage.PairKey(ref.Address.Hex()), expected)
	shared := context.WithoutCancel(ctx)
	ch := d.pairs.DoChan(key, func() (interface{}, error) {
		if expected != 0 {
			return d.resolver.Verify(shared, ref, expected)
		}
		return d.resolver.Resolve(shared, ref)
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		block, _ := res.Val.(uint64)
		return block, res.Err
	}
}

func (d *Driver) plan(pools []model.Pool, known map[string]model.CreationRecord) ([]pairJob, int, error) {
	var jobs []pairJob
	seen := make(map[string]struct{})
	skipped := 0
	for _, pool := range pools {
		if !pool.Resolvable() {
			skipped += len(pool.Pairs)
			continue
		}
		if !common.IsHexAddress(pool.FactoryAddress) {
			return nil, 0, fmt.Errorf("pool %s: invalid factory address %s", pool.Name, pool.FactoryAddress)
		}
		factory := common.HexToAddress(pool.FactoryAddress)
		for _, pair := range pool.Pairs {
			if !common.IsHexAddress(pair.Address) {
				return nil, 0, fmt.Errorf("pool %s: invalid pair address %s", pool.Name, pair.Address)
			}
			key := storage.PairKey(pair.Address)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			expected := pair.CreatedAt
			if record, ok := known[key]; ok && expected == 0 {
				expected = record.BlockNumber
			}
			if expected != 0 && !d.cfg.Verify {
				skipped++
				continue
			}
			jobs = append(jobs, pairJob{
				pool: pool.Name,
				ref: model.PairRef{
					Address:            common.HexToAddress(pair.Address),
					FactoryAddress:     factory,
					FactoryDeployBlock: pool.FactoryDeployBlock,
				},
				expected: expected,
			})
		}
	}
	return jobs, skipped, nil
}

// Blacklisted reports whether address is a farm address excluded from the airdrop.
func (d *Driver) Blacklisted(address string) bool {
	canonical, err := classify.Canonical(address)
	if err != nil {
		return false
	}
	_, ok := d.cfg.Blacklist[canonical]
	return ok
}

// ClassifyAll classifies addresses with bounded concurrency. Results are keyed
// by checksummed address; duplicates are classified once and blacklisted
// addresses are left out. Failed addresses are missing from the result and
// their errors joined.
func (d *Driver) ClassifyAll(ctx context.Context, addresses []string) (map[string]bool, error) {
	if d.classifier == nil {
		return nil, fmt.Errorf("classifier is nil")
	}

	var (
		unique []string
		errs   []error
	)
	seen := make(map[string]struct{}, len(addresses))
	excluded := 0
	for _, address := range addresses {
		canonical, err := classify.Canonical(address)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		if _, ok := d.cfg.Blacklist[canonical]; ok {
			excluded++
			d.logger.Info("blacklisted address excluded", zap.String("address", canonical))
			continue
		}
		unique = append(unique, canonical)
	}

	results := make([]bool, len(unique))
	classifyErrs := make([]error, len(unique))
	g := new(errgroup.Group)
	g.SetLimit(d.cfg.Workers)
	for i, address := range unique {
		g.Go(func() error {
			isContract, err := d.classifier.Classify(ctx, address)
			if err != nil {
				classifyErrs[i] = fmt.Errorf("classify %s: %w", address, err)
				return nil
			}
			results[i] = isContract
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]bool, len(unique))
	for i, address := range unique {
		if classifyErrs[i] == nil {
			out[address] = results[i]
		}
	}
	errs = append(errs, classifyErrs...)
	d.logger.Info("classify complete",
		zap.Int("classified", len(out)),
		zap.Int("excluded", excluded),
		zap.Int("failed", countErrors(errs)),
	)
	return out, errors.Join(errs...)
}

func countErrors(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}
