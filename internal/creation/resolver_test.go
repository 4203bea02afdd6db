package creation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PeterTheOne/honeyswap-farm/internal/chain"
	"github.com/PeterTheOne/honeyswap-farm/internal/chain/chaintest"
	"github.com/PeterTheOne/honeyswap-farm/internal/dex"
	"github.com/PeterTheOne/honeyswap-farm/internal/model"
	"github.com/PeterTheOne/honeyswap-farm/internal/retry"
)

var (
	testFactory = common.HexToAddress("0x5757371414417b8C6CAad45bAeF941aBc7d3Ab32")
	testPair    = common.HexToAddress("0xdc9232e2df177d7a12fdff6ecbab114e2231198d")
	otherPair   = common.HexToAddress("0x160532d2536175d65c03b97b0630a9802c274dad")
	testToken0  = common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270")
	testToken1  = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
)

var fastRetry = retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func newFixture(deploy, created uint64) (*chaintest.Chain, model.PairRef) {
	fake := chaintest.New()
	fake.SetPairTokens(testPair, testToken0, testToken1)
	fake.RegisterPair(testFactory, testToken0, testToken1, testPair)
	fake.AddPairCreated(testFactory, testToken0, testToken1, testPair, created, 7)
	return fake, model.PairRef{
		Address:            testPair,
		FactoryAddress:     testFactory,
		FactoryDeployBlock: deploy,
	}
}

func TestResolveFirstWindow(t *testing.T) {
	fake, ref := newFixture(5000000, 5000050)
	resolver := NewResolver(Config{WindowBlocks: 60480, Retry: fastRetry}, fake, zap.NewNop(), nil)

	block, err := resolver.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000050), block)

	assert.Equal(t, 1, fake.Calls("token0"))
	assert.Equal(t, 1, fake.Calls("token1"))
	assert.Equal(t, 1, fake.Calls("getPair"))
	assert.Equal(t, []chaintest.Range{{From: 5000000, To: 5060479}}, fake.FilterCalls())
}

func TestResolveIndependentOfWindowSize(t *testing.T) {
	const deploy = 4931780
	for _, created := range []uint64{deploy, deploy + 1, 5493468, 6214591} {
		for _, size := range []uint64{1, 7, 1000, 60480, DefaultWindowBlocks} {
			if size == 1 && created-deploy > 2000 {
				continue
			}
			t.Run(fmt.Sprintf("created=%d/size=%d", created, size), func(t *testing.T) {
				fake, ref := newFixture(deploy, created)
				// a creation for an unrelated token pair must not be picked up
				fake.AddPairCreated(testFactory, testToken1, testToken0, otherPair, deploy, 0)

				resolver := NewResolver(Config{WindowBlocks: size, MaxWindows: 1 << 20, Retry: fastRetry}, fake, nil, nil)
				block, err := resolver.Resolve(context.Background(), ref)
				require.NoError(t, err)
				assert.Equal(t, created, block)

				wantWindows := int((created-deploy)/size) + 1
				assert.Len(t, fake.FilterCalls(), wantWindows)
			})
		}
	}
}

func TestResolveFactoryMismatch(t *testing.T) {
	cases := []struct {
		name     string
		register func(*chaintest.Chain)
	}{
		{
			name: "registry points elsewhere",
			register: func(c *chaintest.Chain) {
				c.RegisterPair(testFactory, testToken0, testToken1, otherPair)
			},
		},
		{
			name: "registry only knows reversed order",
			register: func(c *chaintest.Chain) {
				c.RegisterPair(testFactory, testToken1, testToken0, testPair)
			},
		},
		{
			name:     "unknown to factory",
			register: func(*chaintest.Chain) {},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := chaintest.New()
			fake.SetPairTokens(testPair, testToken0, testToken1)
			tc.register(fake)
			fake.AddPairCreated(testFactory, testToken0, testToken1, testPair, 100, 0)

			resolver := NewResolver(Config{WindowBlocks: 10, Retry: fastRetry}, fake, nil, nil)
			_, err := resolver.Resolve(context.Background(), model.PairRef{Address: testPair, FactoryAddress: testFactory, FactoryDeployBlock: 50})

			var mismatch *FactoryMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, testPair, mismatch.Pair)
			assert.Equal(t, testFactory, mismatch.Factory)
			assert.Equal(t, 1, fake.Calls("getPair"), "mismatch must not be retried")
			assert.Empty(t, fake.FilterCalls())
		})
	}
}

func TestResolveFactoryMismatchCaseInsensitive(t *testing.T) {
	lower := common.HexToAddress("0xdc9232e2df177d7a12fdff6ecbab114e2231198d")
	upper := common.HexToAddress("0xDC9232E2DF177D7A12FDFF6ECBAB114E2231198D")
	fake, ref := newFixture(0, 5)
	fake.RegisterPair(testFactory, testToken0, testToken1, upper)
	ref.Address = lower

	resolver := NewResolver(Config{WindowBlocks: 10, Retry: fastRetry}, fake, nil, nil)
	block, err := resolver.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), block)
}

func TestResolveNotFound(t *testing.T) {
	fake, ref := newFixture(1000, 1_000_000)
	resolver := NewResolver(Config{WindowBlocks: 100, MaxWindows: 3, Retry: fastRetry}, fake, nil, nil)

	_, err := resolver.Resolve(context.Background(), ref)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 3, notFound.Windows)
	assert.Equal(t, uint64(1200), notFound.LastFrom)
	assert.Equal(t, uint64(1299), notFound.LastTo)
	assert.Len(t, fake.FilterCalls(), 3)
}

func TestResolveNotFoundAtEndOfBlockSpace(t *testing.T) {
	const deploy = math.MaxUint64 - 14
	fake, ref := newFixture(deploy, 5)
	resolver := NewResolver(Config{WindowBlocks: 10, MaxWindows: 100, Retry: fastRetry}, fake, nil, nil)

	_, err := resolver.Resolve(context.Background(), ref)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, 1, notFound.Windows, "only windows that fit are counted")
	assert.Equal(t, uint64(deploy), notFound.LastFrom)
	assert.Equal(t, uint64(deploy+9), notFound.LastTo)
	assert.Len(t, fake.FilterCalls(), 1)
}

func TestResolveRetriesWithoutAdvancing(t *testing.T) {
	fake, ref := newFixture(0, 25)
	fake.FailFilterLogs(errors.New("429 Too Many Requests"), errors.New("i/o timeout"))

	resolver := NewResolver(Config{WindowBlocks: 10, Retry: fastRetry}, fake, nil, nil)
	block, err := resolver.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), block)

	assert.Equal(t, []chaintest.Range{
		{From: 0, To: 9},
		{From: 0, To: 9},
		{From: 0, To: 9},
		{From: 10, To: 19},
		{From: 20, To: 29},
	}, fake.FilterCalls())
}

func TestResolveRetriesExhausted(t *testing.T) {
	fake, ref := newFixture(0, 25)
	boom := errors.New("connection reset by peer")
	fake.FailFilterLogs(boom, boom, boom)

	resolver := NewResolver(Config{WindowBlocks: 10, Retry: fastRetry}, fake, nil, nil)
	_, err := resolver.Resolve(context.Background(), ref)

	var queryErr *chain.QueryError
	require.ErrorAs(t, err, &queryErr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, queryErr.Attempts)
	assert.Equal(t, uint64(0), queryErr.From)
	assert.Equal(t, uint64(9), queryErr.To)
}

func TestResolveSetupCallRetried(t *testing.T) {
	fake, ref := newFixture(0, 3)
	fake.FailCalls(errors.New("503 Service Unavailable"))

	resolver := NewResolver(Config{WindowBlocks: 10, Retry: fastRetry}, fake, nil, nil)
	block, err := resolver.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), block)
	assert.Equal(t, 2, fake.Calls("token0"))
}

func TestResolveRevertNotRetried(t *testing.T) {
	fake, ref := newFixture(0, 3)
	revert := errors.New("execution reverted")
	fake.FailCalls(revert, revert, revert, revert, revert, revert)

	resolver := NewResolver(Config{WindowBlocks: 10, Retry: retry.Policy{MaxRetries: 5, BaseDelay: time.Millisecond}}, fake, nil, nil)
	_, err := resolver.Resolve(context.Background(), ref)

	var rejected *chain.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "token lookup", rejected.Op)
	assert.ErrorIs(t, err, revert)

	var queryErr *chain.QueryError
	assert.False(t, errors.As(err, &queryErr), "a revert is not a transient query failure")
	assert.Equal(t, 1, fake.Calls("token0"))
	assert.Empty(t, fake.FilterCalls())
}

func TestResolveRejectedLogQueryNotRetried(t *testing.T) {
	fake, ref := newFixture(0, 25)
	fake.FailFilterLogs(rpc.HTTPError{StatusCode: 400, Status: "400 Bad Request"})

	resolver := NewResolver(Config{WindowBlocks: 10, Retry: fastRetry}, fake, nil, nil)
	_, err := resolver.Resolve(context.Background(), ref)

	var rejected *chain.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Len(t, fake.FilterCalls(), 1)
}

func TestResolveDecodeErrorNotRetried(t *testing.T) {
	fake := chaintest.New()
	resolver := NewResolver(Config{WindowBlocks: 10, Retry: fastRetry}, fake, nil, nil)

	_, err := resolver.Resolve(context.Background(), model.PairRef{Address: testPair, FactoryAddress: testFactory})
	var decodeErr *dex.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, 1, fake.Calls("token0"))
}

func TestResolveCanceled(t *testing.T) {
	fake, ref := newFixture(0, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resolver := NewResolver(Config{WindowBlocks: 10, Retry: fastRetry}, fake, nil, nil)
	_, err := resolver.Resolve(ctx, ref)
	require.ErrorIs(t, err, context.Canceled)

	var queryErr *chain.QueryError
	assert.False(t, errors.As(err, &queryErr))
	assert.Empty(t, fake.FilterCalls())
}

func TestResolveTieBreak(t *testing.T) {
	fake, ref := newFixture(0, 18)
	fake.AddPairCreated(testFactory, testToken0, testToken1, testPair, 12, 4)
	fake.AddPairCreated(testFactory, testToken0, testToken1, testPair, 12, 2)

	resolver := NewResolver(Config{WindowBlocks: 100, Retry: fastRetry}, fake, nil, nil)
	block, err := resolver.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), block)
}

func TestResolveIgnoresRemovedLogs(t *testing.T) {
	fake, ref := newFixture(0, 15)
	topics, err := dex.PairCreatedTopics(testToken0, testToken1)
	require.NoError(t, err)
	fake.AddLog(types.Log{
		Address:     testFactory,
		Topics:      []common.Hash{topics[0][0], topics[1][0], topics[2][0]},
		BlockNumber: 3,
		Removed:     true,
	})

	resolver := NewResolver(Config{WindowBlocks: 10, Retry: fastRetry}, fake, nil, nil)
	block, err := resolver.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, uint64(15), block)
}

func TestVerify(t *testing.T) {
	fake, ref := newFixture(0, 42)
	resolver := NewResolver(Config{WindowBlocks: 10, Retry: fastRetry}, fake, nil, nil)

	block, err := resolver.Verify(context.Background(), ref, 42)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), block)

	block, err = resolver.Verify(context.Background(), ref, 41)
	var mismatch *CreationMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, uint64(42), block)
	assert.Equal(t, uint64(41), mismatch.Expected)
}

func TestDefaultWindowIsOneWeekOfTwoSecondBlocks(t *testing.T) {
	assert.Equal(t, uint64(302400), DefaultWindowBlocks)
}
