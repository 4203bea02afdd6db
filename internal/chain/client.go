package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/PeterTheOne/honeyswap-farm/internal/metrics"
)

// Options tunes a Client.
type Options struct {
	// RateLimit caps requests per second; zero means unlimited.
	RateLimit float64
	Metrics   *metrics.Metrics
}

// Client wraps go-ethereum RPC with rate limiting. It is safe for concurrent use.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		limiter:   limiter,
		metrics:   opts.Metrics,
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	started := time.Now()
	id, err := c.ethClient.ChainID(ctx)
	c.metrics.ObserveRPC("eth_chainId", started, err)
	return id, err
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	started := time.Now()
	n, err := c.ethClient.BlockNumber(ctx)
	c.metrics.ObserveRPC("eth_blockNumber", started, err)
	return n, err
}

// CodeAt returns the code deployed at account as of the latest block.
func (c *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	started := time.Now()
	code, err := c.ethClient.CodeAt(ctx, account, nil)
	c.metrics.ObserveRPC("eth_getCode", started, err)
	return code, err
}

// FilterLogs returns logs in the inclusive block range for addresses and positional topic filters.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topics [][]common.Hash,
) ([]types.Log, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
		Topics:    topics,
	}
	started := time.Now()
	logs, err := c.ethClient.FilterLogs(ctx, query)
	c.metrics.ObserveRPC("eth_getLogs", started, err)
	return logs, err
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	started := time.Now()
	out, err := c.ethClient.CallContract(ctx, msg, blockNumber)
	c.metrics.ObserveRPC("eth_call", started, err)
	return out, err
}
