package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solexplorer/service/explorer"
	"github.com/brojonat/solexplorer/service/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Explorer is the read API the handlers serve. *explorer.Service implements it.
type Explorer interface {
	ListBlocks(ctx context.Context, page, limit int) (*explorer.Page[explorer.Block], error)
	GetBlock(ctx context.Context, slot uint64) (*explorer.Block, error)
	ListTransactions(ctx context.Context, page, limit int) *explorer.Page[explorer.Transaction]
	GetTransaction(ctx context.Context, signature string) (*explorer.Transaction, error)
	GetAddress(ctx context.Context, address string) (*explorer.AddressDetails, error)
	ListAddressTransactions(ctx context.Context, address string, page, limit int) *explorer.Page[explorer.Transaction]
	GetToken(ctx context.Context, mint string) (*explorer.TokenInfo, error)
	NetworkStats(ctx context.Context) (*explorer.NetworkStats, error)
	Search(ctx context.Context, q string) *explorer.SearchResult
}

var _ Explorer = (*explorer.Service)(nil)

const serviceName = "solexplorer"

// Server represents the HTTP server for the explorer API.
type Server struct {
	addr     string
	explorer Explorer
	feed     HeadFeed
	keys     *APIKeyGate
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The feed is optional - if nil, the head stream endpoint won't be available.
// The keys gate is optional - if nil, every request is anonymous.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, svc Explorer, feed HeadFeed, keys *APIKeyGate, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		explorer: svc,
		feed:     feed,
		keys:     keys,
		metrics:  m,
		logger:   logger,
	}
}

// Handler builds the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.handleAPI(mux, "GET /api/blocks", "/api/blocks", handleListBlocks(s.explorer, s.logger))
	s.handleAPI(mux, "GET /api/blocks/{number}", "/api/blocks/{number}", handleGetBlock(s.explorer, s.logger))
	s.handleAPI(mux, "GET /api/transactions", "/api/transactions", handleListTransactions(s.explorer, s.logger))
	s.handleAPI(mux, "GET /api/transactions/{signature}", "/api/transactions/{signature}", handleGetTransaction(s.explorer, s.logger))
	s.handleAPI(mux, "GET /api/addresses/{address}", "/api/addresses/{address}", handleGetAddress(s.explorer, s.logger))
	s.handleAPI(mux, "GET /api/addresses/{address}/transactions", "/api/addresses/{address}/transactions", handleListAddressTransactions(s.explorer, s.logger))
	s.handleAPI(mux, "GET /api/tokens/{mint}", "/api/tokens/{mint}", handleGetToken(s.explorer, s.logger))
	s.handleAPI(mux, "GET /api/network/stats", "/api/network/stats", handleNetworkStats(s.explorer, s.logger))
	s.handleAPI(mux, "GET /api/search", "/api/search", handleSearch(s.explorer, s.logger))

	if s.feed != nil {
		s.handleAPI(mux, "GET /api/stream/head", "/api/stream/head", handleStreamHead(s.feed, s.metrics, s.logger))
		s.logger.Info("head stream endpoint enabled")
	} else {
		s.logger.Warn("head feed not configured, streaming endpoint disabled")
	}

	mux.Handle("GET /health", metrics.HTTPMetricsMiddleware(s.metrics, "/health")(handleHealth(time.Now)))

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// handleAPI registers an API route behind the metrics and API key middleware.
func (s *Server) handleAPI(mux *http.ServeMux, pattern, name string, h http.Handler) {
	if s.keys != nil {
		h = s.keys.Middleware(h)
	}
	mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the head stream holds its response open.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+apiKeyHeader)
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
