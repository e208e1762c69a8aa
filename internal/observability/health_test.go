package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mockHealthChecker struct {
	err   error
	delay time.Duration
}

func (m *mockHealthChecker) HealthCheck(ctx context.Context) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func TestRunChecks_allHealthy(t *testing.T) {
	origVersion, origCommit := Version, Commit
	Version = "1.2.3"
	Commit = "abc1234"
	t.Cleanup(func() {
		Version = origVersion
		Commit = origCommit
	})

	report := RunChecks(context.Background(), map[string]HealthChecker{
		"storage": &mockHealthChecker{},
		"finance": HealthCheckFunc(func(context.Context) error { return nil }),
	})

	if !report.Healthy() {
		t.Errorf("status = %q, want ok", report.Status)
	}
	if report.Version != "1.2.3" || report.Commit != "abc1234" {
		t.Errorf("version/commit = %q/%q", report.Version, report.Commit)
	}
	if len(report.Checks) != 2 {
		t.Errorf("checks = %d, want 2", len(report.Checks))
	}
}

func TestRunChecks_failure(t *testing.T) {
	report := RunChecks(context.Background(), map[string]HealthChecker{
		"storage": &mockHealthChecker{err: errors.New("connection refused")},
		"crm":     &mockHealthChecker{},
	})

	if report.Healthy() {
		t.Error("report should be degraded")
	}
	if report.Checks["storage"].Error != "connection refused" {
		t.Errorf("storage check = %+v", report.Checks["storage"])
	}
	if report.Checks["crm"].Status != "ok" {
		t.Errorf("crm check = %+v", report.Checks["crm"])
	}
}

func TestRunChecks_skipsNilAndOrdersNames(t *testing.T) {
	report := RunChecks(context.Background(), map[string]HealthChecker{
		"zeta":  &mockHealthChecker{},
		"alpha": &mockHealthChecker{},
		"nil":   nil,
	})

	names := report.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("Names() = %v", names)
	}
}

func TestRunChecks_timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	report := RunChecks(ctx, map[string]HealthChecker{
		"slow": &mockHealthChecker{delay: time.Second},
	})
	if report.Checks["slow"].Status != "error" {
		t.Errorf("slow check = %+v, want error", report.Checks["slow"])
	}
}
