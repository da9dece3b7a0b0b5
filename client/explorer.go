// Package client is an HTTP client for the solexplorer API.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/solexplorer/service/explorer"
	natspkg "github.com/brojonat/solexplorer/service/nats"
)

// ErrNotFound is returned when the server answers an entity lookup with null.
var ErrNotFound = errors.New("not found")

// Health is the server liveness report.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// SearchResult is a routed search result. Result holds the raw entity so the
// caller can decode it according to Type.
type SearchResult struct {
	Type   explorer.QueryType `json:"type"`
	Result json.RawMessage    `json:"result"`
}

// Found reports whether the search resolved to an entity.
func (r *SearchResult) Found() bool {
	return len(r.Result) > 0 && !bytes.Equal(r.Result, []byte("null"))
}

// Client is the HTTP client for the solexplorer service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new explorer client. apiKey may be empty.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// ListBlocks fetches a page of recent blocks, newest first.
func (c *Client) ListBlocks(ctx context.Context, page, limit int) (*explorer.Page[explorer.Block], error) {
	var p explorer.Page[explorer.Block]
	if err := c.get(ctx, "/api/blocks", pagingQuery(page, limit), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetBlock fetches a block by slot.
func (c *Client) GetBlock(ctx context.Context, slot uint64) (*explorer.Block, error) {
	return getEntity[explorer.Block](ctx, c, "/api/blocks/"+strconv.FormatUint(slot, 10))
}

// ListTransactions fetches the recent transactions page.
func (c *Client) ListTransactions(ctx context.Context, page, limit int) (*explorer.Page[explorer.Transaction], error) {
	var p explorer.Page[explorer.Transaction]
	if err := c.get(ctx, "/api/transactions", pagingQuery(page, limit), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetTransaction fetches a transaction by signature.
func (c *Client) GetTransaction(ctx context.Context, signature string) (*explorer.Transaction, error) {
	return getEntity[explorer.Transaction](ctx, c, "/api/transactions/"+url.PathEscape(signature))
}

// GetAddress fetches the account summary for an address.
func (c *Client) GetAddress(ctx context.Context, address string) (*explorer.AddressDetails, error) {
	return getEntity[explorer.AddressDetails](ctx, c, "/api/addresses/"+url.PathEscape(address))
}

// ListAddressTransactions fetches a page of transactions for an address.
func (c *Client) ListAddressTransactions(ctx context.Context, address string, page, limit int) (*explorer.Page[explorer.Transaction], error) {
	var p explorer.Page[explorer.Transaction]
	path := "/api/addresses/" + url.PathEscape(address) + "/transactions"
	if err := c.get(ctx, path, pagingQuery(page, limit), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetToken fetches supply information for a token mint.
func (c *Client) GetToken(ctx context.Context, mint string) (*explorer.TokenInfo, error) {
	return getEntity[explorer.TokenInfo](ctx, c, "/api/tokens/"+url.PathEscape(mint))
}

// NetworkStats fetches the cluster snapshot.
func (c *Client) NetworkStats(ctx context.Context) (*explorer.NetworkStats, error) {
	var s explorer.NetworkStats
	if err := c.get(ctx, "/api/network/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Search classifies and resolves a query on the server.
func (c *Client) Search(ctx context.Context, q string) (*SearchResult, error) {
	var r SearchResult
	if err := c.get(ctx, "/api/search", url.Values{"q": {q}}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Health calls the liveness endpoint.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.get(ctx, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// StreamHead connects to the head stream and calls fn for every head event
// until ctx is done, the server closes the stream, or fn returns an error.
// A cancelled ctx is not reported as an error.
func (c *Client) StreamHead(ctx context.Context, fn func(natspkg.HeadEvent) error) error {
	req, err := c.newRequest(ctx, "/api/stream/head", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives any client-wide timeout.
	stream := *c.httpClient
	stream.Timeout = 0

	resp, err := stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to connect to head stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	err = readEvents(resp.Body, func(event, data string) error {
		switch event {
		case "connected":
			c.logger.Debug("head stream connected", "info", data)
		case "head":
			var head natspkg.HeadEvent
			if err := json.Unmarshal([]byte(data), &head); err != nil {
				return fmt.Errorf("failed to decode head event: %w", err)
			}
			return fn(head)
		}
		return nil
	})
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// readEvents splits an SSE body into (event, data) pairs. Comment lines are
// skipped and multi-line data is joined with newlines.
func readEvents(r io.Reader, fn func(event, data string) error) error {
	scanner := bufio.NewScanner(r)
	var event string
	var data []string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(data) > 0 {
				if event == "" {
					event = "message"
				}
				if err := fn(event, strings.Join(data, "\n")); err != nil {
					return err
				}
			}
			event, data = "", nil
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading event stream: %w", err)
	}
	return nil
}

func getEntity[T any](ctx context.Context, c *Client, path string) (*T, error) {
	var v *T
	if err := c.get(ctx, path, nil, &v); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, path, query)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("request complete", "path", path)
	return nil
}

func (c *Client) newRequest(ctx context.Context, path string, query url.Values) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return req, nil
}

func pagingQuery(page, limit int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, errResp.Error)
}
