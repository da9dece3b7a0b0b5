package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/brojonat/solexplorer/service/db"
	"github.com/brojonat/solexplorer/service/metrics"
	"golang.org/x/time/rate"
)

const apiKeyHeader = "X-API-Key"

// KeyStore reads API keys and records their usage. *db.Store implements it.
type KeyStore interface {
	GetAPIKey(ctx context.Context, key string) (*db.APIKey, error)
	RecordAPIKeyUsage(ctx context.Context, id string, n int64, at time.Time) error
}

var _ KeyStore = (*db.Store)(nil)

type keyEntry struct {
	key       *db.APIKey // nil when the key does not exist
	fetchedAt time.Time
	limiter   *rate.Limiter
}

// APIKeyGate authenticates requests that carry an API key and enforces the
// key's per-second rate limit. Requests without a key pass through.
type APIKeyGate struct {
	store   KeyStore
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*keyEntry
	usage   map[string]int64 // key id -> requests since last flush
}

// NewAPIKeyGate creates a gate that caches key lookups for ttl.
// If metrics is nil, no metrics will be recorded.
func NewAPIKeyGate(store KeyStore, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *APIKeyGate {
	return &APIKeyGate{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		metrics: m,
		logger:  logger,
		entries: make(map[string]*keyEntry),
		usage:   make(map[string]int64),
	}
}

// Middleware wraps next with key checks.
func (g *APIKeyGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get(apiKeyHeader)
		if secret == "" {
			next.ServeHTTP(w, r)
			return
		}

		entry, err := g.lookup(r.Context(), secret)
		if err != nil {
			g.logger.ErrorContext(r.Context(), "failed to check api key", "error", err)
			g.reject("lookup_error")
			writeError(w, "api key check unavailable", http.StatusServiceUnavailable)
			return
		}
		if entry.key == nil || !entry.key.Active {
			g.reject("invalid")
			writeError(w, "invalid api key", http.StatusUnauthorized)
			return
		}
		if !entry.limiter.Allow() {
			g.reject("rate_limited")
			w.Header().Set("Retry-After", "1")
			writeError(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		g.mu.Lock()
		g.usage[entry.key.ID]++
		g.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

// lookup returns the cached entry for secret, refreshing it from the store
// once it is older than the ttl. A refresh keeps the existing limiter so the
// bucket is not refilled.
func (g *APIKeyGate) lookup(ctx context.Context, secret string) (*keyEntry, error) {
	now := g.now()

	g.mu.Lock()
	entry, ok := g.entries[secret]
	g.mu.Unlock()
	if ok && now.Sub(entry.fetchedAt) < g.ttl {
		return entry, nil
	}

	key, err := g.store.GetAPIKey(ctx, secret)
	if err != nil && !errors.Is(err, db.ErrAPIKeyNotFound) {
		return nil, err
	}

	fresh := &keyEntry{key: key, fetchedAt: now}
	if key != nil {
		lim := limitFor(key.RateLimit)
		if ok && entry.limiter != nil {
			entry.limiter.SetLimit(lim)
			entry.limiter.SetBurst(burstFor(key.RateLimit))
			fresh.limiter = entry.limiter
		} else {
			fresh.limiter = rate.NewLimiter(lim, burstFor(key.RateLimit))
		}
	}

	g.mu.Lock()
	g.entries[secret] = fresh
	g.mu.Unlock()

	return fresh, nil
}

// FlushUsage writes accumulated request counts to the store.
func (g *APIKeyGate) FlushUsage(ctx context.Context) error {
	g.mu.Lock()
	pending := g.usage
	g.usage = make(map[string]int64)
	g.mu.Unlock()

	at := g.now()
	var errs []error
	for id, n := range pending {
		if err := g.store.RecordAPIKeyUsage(ctx, id, n, at); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunUsageFlusher flushes usage every interval until ctx is done, then once more.
func (g *APIKeyGate) RunUsageFlusher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := g.FlushUsage(context.WithoutCancel(ctx)); err != nil {
				g.logger.Warn("failed to flush api key usage", "error", err)
			}
			return
		case <-ticker.C:
			if err := g.FlushUsage(ctx); err != nil {
				g.logger.WarnContext(ctx, "failed to flush api key usage", "error", err)
			}
		}
	}
}

func (g *APIKeyGate) reject(reason string) {
	if g.metrics != nil {
		g.metrics.RecordAPIKeyRejection(reason)
	}
}

// limitFor converts a key's requests-per-second quota. Zero or less is unlimited.
func limitFor(rps int) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

func burstFor(rps int) int {
	return max(rps, 1)
}
