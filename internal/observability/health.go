package observability

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// HealthReport is the outcome of running every dependency check.
type HealthReport struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Commit  string                 `json:"commit"`
	Checks  map[string]CheckResult `json:"checks"`
}

// Healthy reports whether every check passed.
func (r HealthReport) Healthy() bool {
	return r.Status == "ok"
}

// Names returns the check names in sorted order.
func (r HealthReport) Names() []string {
	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckResult is the result of a single check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

const checkTimeout = 2 * time.Second

// RunChecks runs every checker concurrently, each under its own timeout.
// Nil checkers are skipped.
func RunChecks(ctx context.Context, checks map[string]HealthChecker) HealthReport {
	results := make(map[string]CheckResult, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, checker := range checks {
		if checker == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := runCheck(ctx, checker)
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := "ok"
	for _, result := range results {
		if result.Status != "ok" {
			status = "degraded"
			break
		}
	}

	return HealthReport{
		Status:  status,
		Version: Version,
		Commit:  Commit,
		Checks:  results,
	}
}

// runCheck executes a health check with a per-check timeout.
func runCheck(parent context.Context, checker HealthChecker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := checker.HealthCheck(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return CheckResult{
			Status:    "error",
			LatencyMs: latency,
			Error:     err.Error(),
		}
	}
	return CheckResult{
		Status:    "ok",
		LatencyMs: latency,
	}
}
