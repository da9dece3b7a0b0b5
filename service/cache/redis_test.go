package cache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/brojonat/solexplorer/service/explorer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBlockCache connects to TEST_REDIS_URL, skipping the test when no
// Redis server is reachable.
func newTestBlockCache(t *testing.T) *BlockCache {
	t.Helper()

	if os.Getenv("SKIP_REDIS_TESTS") != "" {
		t.Skip("Skipping redis test (SKIP_REDIS_TESTS is set)")
	}

	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Skipf("Skipping redis test: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return NewBlockCache(client, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBlockKey(t *testing.T) {
	assert.Equal(t, "solexplorer:block:250000000", blockKey(250_000_000))
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse redis url")
}

func TestBlockCache_RoundTrip(t *testing.T) {
	c := newTestBlockCache(t)
	ctx := context.Background()

	ts := int64(1_700_000_000)
	block := explorer.Block{
		BlockNumber:       987654321,
		Slot:              987654321,
		Timestamp:         &ts,
		Leader:            "So11111111111111111111111111111111111111112",
		TransactionsCount: 1200,
		Blockhash:         "hash",
		ParentSlot:        987654320,
		PreviousBlockhash: "prev",
	}
	t.Cleanup(func() { c.client.Del(ctx, blockKey(block.Slot)) })

	_, ok, err := c.GetBlock(ctx, block.Slot)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetBlock(ctx, block))

	got, ok, err := c.GetBlock(ctx, block.Slot)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, block, *got)
}

func TestBlockCache_CorruptEntryIsDropped(t *testing.T) {
	c := newTestBlockCache(t)
	ctx := context.Background()

	const slot = 123456789
	require.NoError(t, c.client.Set(ctx, blockKey(slot), "{not json", time.Minute).Err())
	t.Cleanup(func() { c.client.Del(ctx, blockKey(slot)) })

	_, ok, err := c.GetBlock(ctx, slot)
	require.Error(t, err)
	assert.False(t, ok)

	n, err := c.client.Exists(ctx, blockKey(slot)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}
