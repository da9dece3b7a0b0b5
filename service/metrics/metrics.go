package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec
	solanaRPCRetries       *prometheus.CounterVec

	// Fetch Pool Metrics
	fetchPoolInFlight    prometheus.Gauge
	fetchPoolAcquireWait prometheus.Histogram
	fetchOutcomesTotal   *prometheus.CounterVec

	// Aggregation Metrics
	headCacheLookups   *prometheus.CounterVec
	blockCacheLookups  *prometheus.CounterVec
	pageItemsDropped   *prometheus.CounterVec
	searchQueriesTotal *prometheus.CounterVec

	// Workflow Metrics
	cacheWarmDuration *prometheus.HistogramVec
	cacheWarmBlocks   prometheus.Counter

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	apiKeyRejections     *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),

		// Fetch Pool Metrics
		fetchPoolInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fetch_pool_in_flight",
				Help: "Number of upstream fetches currently holding a pool slot",
			},
		),
		fetchPoolAcquireWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fetch_pool_acquire_wait_seconds",
				Help:    "Time spent waiting for a fetch pool slot",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
		),
		fetchOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetch_outcomes_total",
				Help: "Total number of fetch pool task outcomes by kind",
			},
			[]string{"outcome"},
		),

		// Aggregation Metrics
		headCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "head_cache_lookups_total",
				Help: "Head slot cache lookups by result",
			},
			[]string{"result"},
		),
		blockCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "block_cache_lookups_total",
				Help: "Finalized block cache lookups by result",
			},
			[]string{"result"},
		),
		pageItemsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "page_items_dropped_total",
				Help: "Items dropped from paged responses by reason",
			},
			[]string{"entity", "reason"},
		),
		searchQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Search queries by classified type",
			},
			[]string{"type"},
		),

		// Workflow Metrics
		cacheWarmDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cache_warm_duration_seconds",
				Help:    "Duration of cache warm activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		cacheWarmBlocks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_warm_blocks_total",
				Help: "Total number of blocks loaded by the cache warmer",
			},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		apiKeyRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "api_key_rejections_total",
				Help: "Requests rejected by the API key gate",
			},
			[]string{"reason"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// Fetch pool metric helpers

// RecordPoolAcquire records the wait for a pool slot and marks it in flight.
func (m *Metrics) RecordPoolAcquire(wait float64) {
	m.fetchPoolAcquireWait.Observe(wait)
	m.fetchPoolInFlight.Inc()
}

// RecordPoolRelease marks a pool slot as released.
func (m *Metrics) RecordPoolRelease() {
	m.fetchPoolInFlight.Dec()
}

// RecordFetchOutcome records the outcome kind of a pool task.
func (m *Metrics) RecordFetchOutcome(outcome string) {
	m.fetchOutcomesTotal.WithLabelValues(outcome).Inc()
}

// Aggregation metric helpers

// RecordHeadCacheLookup records a head slot cache hit, miss or error.
func (m *Metrics) RecordHeadCacheLookup(result string) {
	m.headCacheLookups.WithLabelValues(result).Inc()
}

// RecordBlockCacheLookup records a finalized block cache hit, miss or error.
func (m *Metrics) RecordBlockCacheLookup(result string) {
	m.blockCacheLookups.WithLabelValues(result).Inc()
}

// RecordItemsDropped records items left out of a page.
func (m *Metrics) RecordItemsDropped(entity, reason string, count int) {
	m.pageItemsDropped.WithLabelValues(entity, reason).Add(float64(count))
}

// RecordSearch records a search query by its classified type.
func (m *Metrics) RecordSearch(queryType string) {
	m.searchQueriesTotal.WithLabelValues(queryType).Inc()
}

// Workflow metric helpers

// RecordCacheWarm records a cache warm activity run.
func (m *Metrics) RecordCacheWarm(status string, blocks int, duration float64) {
	m.cacheWarmDuration.WithLabelValues(status).Observe(duration)
	m.cacheWarmBlocks.Add(float64(blocks))
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordAPIKeyRejection records a request rejected by the API key gate.
func (m *Metrics) RecordAPIKeyRejection(reason string) {
	m.apiKeyRejections.WithLabelValues(reason).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
