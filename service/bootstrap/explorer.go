// Package bootstrap assembles the explorer service from configuration for
// the server and worker binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/brojonat/solexplorer/service/cache"
	"github.com/brojonat/solexplorer/service/config"
	"github.com/brojonat/solexplorer/service/explorer"
	"github.com/brojonat/solexplorer/service/fetch"
	"github.com/brojonat/solexplorer/service/metrics"
	"github.com/brojonat/solexplorer/service/solana"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

// NewExplorer builds the explorer service and its upstream gateway. The
// returned func releases the optional Redis connection.
func NewExplorer(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*explorer.Service, func(), error) {
	var limiter *rate.Limiter
	if cfg.RPCRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPCRateLimit), max(int(cfg.RPCRateLimit), 1))
	}

	commitment := rpc.CommitmentType(cfg.RPCCommitment)
	retry := solana.DefaultRetryPolicy()
	retry.MaxRetries = cfg.RPCMaxRetries
	retry.BaseDelay = cfg.RPCRetryBaseDelay
	retry.RateLimitDelay = cfg.RPCRateLimitDelay

	gateway := solana.NewClient(solana.NewRPCClient(cfg.SolanaRPCURL), endpointLabel(cfg.SolanaRPCURL), solana.Options{
		Commitment:  commitment,
		CallTimeout: cfg.RPCCallTimeout,
		Retry:       &retry,
		Limiter:     limiter,
	}, m, logger)
	logger.Info("initialized solana RPC client", "endpoint", endpointLabel(cfg.SolanaRPCURL))

	pool := fetch.NewPool(cfg.FetchPoolSize, func(err error) bool {
		return errors.Is(err, solana.ErrNotFound)
	}, m)
	logger.Info("initialized fetch pool", "size", pool.Size())

	// The head lookup counts against the same in-flight cap as block fan-out.
	headSlot := fetch.Bound(pool, fetch.Task[uint64](gateway.HeadSlot))
	head := explorer.NewHeadCache(explorer.HeadFetcher(headSlot), cfg.HeadCacheTTL, m)

	closeFn := func() {}
	var blocks explorer.BlockCache
	switch {
	case cfg.RedisURL == "":
	case commitment != rpc.CommitmentFinalized:
		logger.Warn("block cache disabled, blocks below finalized commitment can change",
			"commitment", cfg.RPCCommitment,
		)
	default:
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		closeFn = func() { rdb.Close() }
		blocks = cache.NewBlockCache(rdb, cfg.BlockCacheTTL, logger)
		logger.Info("block cache enabled", "ttl", cfg.BlockCacheTTL)
	}

	svc := explorer.NewService(gateway, pool, head, blocks, explorer.Config{
		Paging: explorer.Paging{
			DefaultLimit: cfg.DefaultPageLimit,
			MaxLimit:     cfg.MaxPageLimit,
		},
	}, m, logger)

	return svc, closeFn, nil
}

// endpointLabel extracts a short identifier from the RPC URL for metrics labeling.
func endpointLabel(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil || parsed.Hostname() == "" {
		return "unknown"
	}
	return parsed.Hostname()
}
