package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var requestDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric instruments for the client pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Outbound calls
	ClientRequestsTotal   *prometheus.CounterVec
	ClientRequestDuration *prometheus.HistogramVec
	AuthExpiredTotal      prometheus.Counter

	// Query cache
	QueryCacheHitsTotal      *prometheus.CounterVec
	QueryCacheMissesTotal    *prometheus.CounterVec
	QueryCacheRefreshesTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClientRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suitekit_client_requests_total",
			Help: "Total number of outbound API requests.",
		}, []string{"method", "host", "status"}),
		ClientRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "suitekit_client_request_duration_seconds",
			Help:    "Outbound API request duration in seconds.",
			Buckets: requestDurationBuckets,
		}, []string{"host"}),
		AuthExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "suitekit_auth_expired_total",
			Help: "Total number of responses that invalidated the stored credential.",
		}),

		QueryCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suitekit_query_cache_hits_total",
			Help: "Total query cache hits.",
		}, []string{"query"}),
		QueryCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suitekit_query_cache_misses_total",
			Help: "Total query cache misses.",
		}, []string{"query"}),
		QueryCacheRefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "suitekit_query_cache_refreshes_total",
			Help: "Total background refreshes of stale query results.",
		}, []string{"query"}),
	}

	reg.MustRegister(
		m.ClientRequestsTotal,
		m.ClientRequestDuration,
		m.AuthExpiredTotal,
		m.QueryCacheHitsTotal,
		m.QueryCacheMissesTotal,
		m.QueryCacheRefreshesTotal,
	)

	return m
}

// RecordClientRequest records an outbound request. Status 0 means no
// response was received.
func (m *Metrics) RecordClientRequest(method, host string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	if status == 0 {
		statusStr = "error"
	}
	m.ClientRequestsTotal.WithLabelValues(method, host, statusStr).Inc()
	m.ClientRequestDuration.WithLabelValues(host).Observe(duration.Seconds())
}

// RecordAuthExpired records a credential invalidated by the backend.
func (m *Metrics) RecordAuthExpired() {
	if m == nil {
		return
	}
	m.AuthExpiredTotal.Inc()
}

// RecordQueryCacheHit records a query cache hit.
func (m *Metrics) RecordQueryCacheHit(query string) {
	if m == nil {
		return
	}
	m.QueryCacheHitsTotal.WithLabelValues(query).Inc()
}

// RecordQueryCacheMiss records a query cache miss.
func (m *Metrics) RecordQueryCacheMiss(query string) {
	if m == nil {
		return
	}
	m.QueryCacheMissesTotal.WithLabelValues(query).Inc()
}

// RecordQueryCacheRefresh records a background refresh.
func (m *Metrics) RecordQueryCacheRefresh(query string) {
	if m == nil {
		return
	}
	m.QueryCacheRefreshesTotal.WithLabelValues(query).Inc()
}
