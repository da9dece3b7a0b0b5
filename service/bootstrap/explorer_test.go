package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/solexplorer/service/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		SolanaRPCURL:      "https://rpc.example.com/?api-key=secret",
		RPCCommitment:     "finalized",
		RPCCallTimeout:    time.Second,
		RPCMaxRetries:     1,
		RPCRetryBaseDelay: 10 * time.Millisecond,
		RPCRateLimitDelay: 100 * time.Millisecond,
		FetchPoolSize:     4,
		DefaultPageLimit:  20,
		MaxPageLimit:      100,
		HeadCacheTTL:      400 * time.Millisecond,
	}
}

func TestNewExplorer_WithoutRedis(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc, closeFn, err := NewExplorer(context.Background(), testConfig(), nil, logger)
	require.NoError(t, err)
	require.NotNil(t, svc)
	defer closeFn()

	assert.Equal(t, 20, svc.Paging().DefaultLimit)
	assert.Equal(t, 100, svc.Paging().MaxLimit)
}

func TestNewExplorer_CacheSkippedBelowFinalized(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()
	cfg.RPCCommitment = "confirmed"
	// Would fail to connect if the cache were wired.
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	svc, closeFn, err := NewExplorer(context.Background(), cfg, nil, logger)
	require.NoError(t, err)
	require.NotNil(t, svc)
	closeFn()
}

func TestNewExplorer_BadRedisURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()
	cfg.RedisURL = "not a url"

	_, _, err := NewExplorer(context.Background(), cfg, nil, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://api.mainnet-beta.solana.com", "api.mainnet-beta.solana.com"},
		{"https://mainnet.helius-rpc.com/?api-key=abc", "mainnet.helius-rpc.com"},
		{"not a url", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, endpointLabel(tt.url))
		})
	}
}
