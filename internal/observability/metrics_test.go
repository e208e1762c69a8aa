package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return InitMetrics(reg), reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)

	// Vectors only appear in Gather once a series exists.
	m.RecordClientRequest("GET", "api.example.com", 200, time.Millisecond)
	m.RecordAuthExpired()
	m.RecordQueryCacheHit("transactions")
	m.RecordQueryCacheMiss("transactions")
	m.RecordQueryCacheRefresh("transactions")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"suitekit_client_requests_total",
		"suitekit_client_request_duration_seconds",
		"suitekit_auth_expired_total",
		"suitekit_query_cache_hits_total",
		"suitekit_query_cache_misses_total",
		"suitekit_query_cache_refreshes_total",
	} {
		if !names[want] {
			t.Errorf("metric %q not registered", want)
		}
	}
}

func TestRecordClientRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordClientRequest("GET", "finance.example.com", 200, 20*time.Millisecond)
	m.RecordClientRequest("GET", "finance.example.com", 200, 30*time.Millisecond)
	m.RecordClientRequest("POST", "finance.example.com", 0, time.Second)

	if got := testutil.ToFloat64(m.ClientRequestsTotal.WithLabelValues("GET", "finance.example.com", "200")); got != 2 {
		t.Errorf("GET 200 count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ClientRequestsTotal.WithLabelValues("POST", "finance.example.com", "error")); got != 1 {
		t.Errorf("transport error count = %v, want 1", got)
	}
}

func TestMetrics_nilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordClientRequest("GET", "h", 500, time.Millisecond)
	m.RecordAuthExpired()
	m.RecordQueryCacheHit("q")
	m.RecordQueryCacheMiss("q")
	m.RecordQueryCacheRefresh("q")
}
