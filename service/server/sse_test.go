package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brojonat/solexplorer/service/metrics"
	natspkg "github.com/brojonat/solexplorer/service/nats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chanFeed struct {
	ch  chan natspkg.HeadEvent
	err error
}

func (f *chanFeed) Subscribe(ctx context.Context) (<-chan natspkg.HeadEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

type counterSource struct {
	slot atomic.Uint64
}

func (s *counterSource) HeadSlot(ctx context.Context) (uint64, error) {
	return s.slot.Add(1), nil
}

func TestStreamHead(t *testing.T) {
	feed := &chanFeed{ch: make(chan natspkg.HeadEvent, 2)}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	h := handleStreamHead(feed, m, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/stream/head", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	feed.ch <- natspkg.HeadEvent{Slot: 100}
	feed.ch <- natspkg.HeadEvent{Slot: 101}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(rec, req)
	}()

	require.Eventually(t, func() bool { return len(feed.ch) == 0 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: connected\ndata: {\"service\":\"solexplorer\"}\n\n"), body)
	assert.Contains(t, body, "event: head\ndata: {\"slot\":100,")
	assert.Contains(t, body, "event: head\ndata: {\"slot\":101,")
	assert.Less(t, strings.Index(body, `"slot":100`), strings.Index(body, `"slot":101`))
}

func TestStreamHead_ClosedFeedEndsStream(t *testing.T) {
	feed := &chanFeed{ch: make(chan natspkg.HeadEvent)}
	close(feed.ch)
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	rec := httptest.NewRecorder()
	handleStreamHead(feed, m, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stream/head", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: connected")

	gauge, err := testutil.GatherAndCount(reg, "sse_active_connections")
	require.NoError(t, err)
	assert.Equal(t, 1, gauge)
}

func TestStreamHead_SubscribeError(t *testing.T) {
	feed := &chanFeed{err: errors.New("no stream")}
	rec := httptest.NewRecorder()
	handleStreamHead(feed, nil, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stream/head", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"failed to subscribe"}`, rec.Body.String())
}

func TestPollingFeed(t *testing.T) {
	feed := NewPollingFeed(&counterSource{}, time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	events, err := feed.Subscribe(ctx)
	require.NoError(t, err)

	var last uint64
	for range 3 {
		select {
		case e := <-events:
			assert.Greater(t, e.Slot, last)
			assert.False(t, e.PublishedAt.IsZero())
			last = e.Slot
		case <-time.After(time.Second):
			t.Fatal("no head event")
		}
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestServer_StreamRouteRequiresFeed(t *testing.T) {
	withoutFeed := New(":0", newFakeExplorer(), nil, nil, nil, testLogger()).Handler()
	rec := serve(withoutFeed, httptest.NewRequest(http.MethodGet, "/api/stream/head", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
