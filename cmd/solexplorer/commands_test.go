package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brojonat/solexplorer/service/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// run executes the CLI against serverURL and returns what it wrote to stdout.
func run(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}

	argv := append([]string{"solexplorer", "--server-url", serverURL}, args...)
	err := app.Run(argv)
	return out.String(), err
}

const blocksBody = `{"blocks":[` +
	`{"block_number":101,"slot":101,"timestamp":1700000000,"leader":"LeaderA","transactions_count":7,"blockhash":"h1","parent_slot":100,"previous_blockhash":"h0"},` +
	`{"block_number":100,"slot":100,"timestamp":null,"leader":"LeaderB","transactions_count":3,"blockhash":"h0","parent_slot":99,"previous_blockhash":"hx"}` +
	`],"total":101,"page":1,"limit":2}`

func blocksServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/blocks":
			w.Write([]byte(blocksBody))
		case "/api/blocks/101":
			w.Write([]byte(`{"block_number":101,"slot":101,"timestamp":1700000000,"leader":"LeaderA","transactions_count":7,"blockhash":"h1","parent_slot":100,"previous_blockhash":"h0"}`))
		default:
			w.Write([]byte("null"))
		}
	}))
}

func TestBlocksList(t *testing.T) {
	server := blocksServer(t)
	defer server.Close()

	t.Run("table", func(t *testing.T) {
		out, err := run(t, server.URL, "blocks", "list", "--limit", "2")
		require.NoError(t, err)
		assert.Contains(t, out, "SLOT")
		assert.Contains(t, out, "LeaderA")
		assert.Contains(t, out, "2023-11-14T22:13:20Z")
		assert.Contains(t, out, "head slot 101")
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, server.URL, "--json", "blocks", "list")
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Len(t, decoded["blocks"], 2)
		assert.EqualValues(t, 101, decoded["total"])
	})

	t.Run("jq", func(t *testing.T) {
		out, err := run(t, server.URL, "--jq", ".blocks[].slot", "blocks", "list")
		require.NoError(t, err)
		assert.Equal(t, "101\n100\n", out)
	})

	t.Run("bad jq", func(t *testing.T) {
		_, err := run(t, server.URL, "--jq", ".blocks[", "blocks", "list")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse jq filter")
	})
}

func TestBlocksGet(t *testing.T) {
	server := blocksServer(t)
	defer server.Close()

	out, err := run(t, server.URL, "blocks", "get", "101")
	require.NoError(t, err)
	assert.Contains(t, out, "Blockhash:          h1")

	_, err = run(t, server.URL, "blocks", "get", "5")
	require.Error(t, err)
	assert.Equal(t, "block not found", err.Error())

	_, err = run(t, server.URL, "blocks", "get", "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid slot")
}

func TestAPIKeyFlag(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		w.Write([]byte(`{"slot":10,"block_height":9,"tps":1234.5,"total_transactions":99,"epoch":3,"epoch_progress":42.5}`))
	}))
	defer server.Close()

	out, err := run(t, server.URL, "--api-key", "secret", "stats")
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
	assert.Contains(t, out, "TPS:                1234.50")
	assert.Contains(t, out, "Epoch:              3 (42.50%)")
}

func TestSearchCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"type":"address","result":null}`)
	}))
	defer server.Close()

	out, err := run(t, server.URL, "search", "11111111111111111111111111111111")
	require.NoError(t, err)
	assert.Contains(t, out, "Type:   address")
	assert.Contains(t, out, "not found")
}

func TestHealthCommand(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		expectErr bool
	}{
		{
			name:   "healthy",
			status: http.StatusOK,
			body:   `{"status":"ok","timestamp":"2024-01-01T00:00:00Z","service":"solexplorer"}`,
		},
		{
			name:      "server error",
			status:    http.StatusInternalServerError,
			body:      `{"error":"boom"}`,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			out, err := run(t, server.URL, "server", "health")
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, "Server is healthy")
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "http://unused", "server", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: dev")
}

func TestStreamHeadCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stream/head", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: connected\ndata: {\"service\":\"solexplorer\"}\n\n")
		for _, slot := range []int{10, 11, 14, 15} {
			fmt.Fprintf(w, "event: head\ndata: {\"slot\":%d,\"timestamp\":\"2024-01-01T00:00:00Z\",\"skipped\":0}\n\n", slot)
		}
	}))
	defer server.Close()

	out, err := run(t, server.URL, "--json", "stream", "head", "--must-jq", ".slot > 10", "--count", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"slot":11`)
	assert.Contains(t, lines[1], `"slot":14`)
}

func TestUpsertSchedule(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s := temporal.NewMockScheduler()
		err := upsertSchedule(t.Context(), s, time.Minute, temporal.WarmCacheInput{Limit: 20, Pages: 2})
		require.NoError(t, err)

		interval, input, exists := s.Schedule()
		assert.True(t, exists)
		assert.Equal(t, time.Minute, interval)
		assert.Equal(t, 20, input.Limit)
		assert.Equal(t, 2, input.Pages)
	})

	t.Run("interval too short", func(t *testing.T) {
		s := temporal.NewMockScheduler()
		err := upsertSchedule(t.Context(), s, 100*time.Millisecond, temporal.WarmCacheInput{Limit: 20, Pages: 1})
		require.Error(t, err)
		assert.Equal(t, 0, s.UpsertCount())
	})

	t.Run("invalid input", func(t *testing.T) {
		s := temporal.NewMockScheduler()
		err := upsertSchedule(t.Context(), s, time.Minute, temporal.WarmCacheInput{Limit: 0, Pages: 1})
		require.Error(t, err)
	})

	t.Run("scheduler error", func(t *testing.T) {
		s := temporal.NewMockScheduler()
		s.SetCreateError(errors.New("temporal unavailable"))
		err := upsertSchedule(t.Context(), s, time.Minute, temporal.WarmCacheInput{Limit: 20, Pages: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "temporal unavailable")
	})
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("yes\n"), &out, "sure? "))
	assert.False(t, confirm(strings.NewReader("no\n"), &out, "sure? "))
	assert.False(t, confirm(strings.NewReader(""), &out, "sure? "))
	assert.Equal(t, "sure? sure? sure? ", out.String())
}
