package explorer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/brojonat/solexplorer/service/metrics"
	"golang.org/x/sync/singleflight"
)

// HeadFetcher reads the current head slot from upstream.
type HeadFetcher func(ctx context.Context) (uint64, error)

type headSnapshot struct {
	slot      uint64
	fetchedAt time.Time
}

// HeadCache memoizes the head slot for a short TTL so that bursts of list
// requests share one upstream read. Concurrent misses are coalesced into a
// single fetch. Failed fetches are not cached.
type HeadCache struct {
	fetch   HeadFetcher
	ttl     time.Duration
	now     func() time.Time
	snap    atomic.Pointer[headSnapshot]
	group   singleflight.Group
	metrics *metrics.Metrics
}

// NewHeadCache creates a head cache. A ttl of zero disables memoization but
// still coalesces concurrent reads. If metrics is nil, no metrics will be recorded.
func NewHeadCache(fetch HeadFetcher, ttl time.Duration, m *metrics.Metrics) *HeadCache {
	return &HeadCache{
		fetch:   fetch,
		ttl:     ttl,
		now:     time.Now,
		metrics: m,
	}
}

// SetClock replaces the cache's time source.
func (h *HeadCache) SetClock(now func() time.Time) {
	h.now = now
}

// Get returns the memoized head slot, refreshing it when stale.
func (h *HeadCache) Get(ctx context.Context) (uint64, error) {
	if slot, ok := h.fresh(); ok {
		h.record("hit")
		return slot, nil
	}

	// The fetch is shared by every waiter, so it must not die with the
	// first caller's request.
	shared := context.WithoutCancel(ctx)
	ch := h.group.DoChan("head", func() (any, error) {
		if slot, ok := h.fresh(); ok {
			return slot, nil
		}
		slot, err := h.fetch(shared)
		if err != nil {
			return uint64(0), err
		}
		h.snap.Store(&headSnapshot{slot: slot, fetchedAt: h.now()})
		return slot, nil
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			h.record("error")
			return 0, res.Err
		}
		h.record("miss")
		return res.Val.(uint64), nil
	}
}

func (h *HeadCache) fresh() (uint64, bool) {
	s := h.snap.Load()
	if s == nil || h.ttl <= 0 {
		return 0, false
	}
	if h.now().Sub(s.fetchedAt) >= h.ttl {
		return 0, false
	}
	return s.slot, true
}

func (h *HeadCache) record(result string) {
	if h.metrics != nil {
		h.metrics.RecordHeadCacheLookup(result)
	}
}
