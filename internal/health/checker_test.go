package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingChecker struct {
	err   error
	calls atomic.Int32
}

func (c *countingChecker) Ready(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker()

	response := checker.Liveness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_NoDependencies(t *testing.T) {
	t.Parallel()
	checker := NewChecker()

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()
	down := errors.New("connection refused")

	tests := []struct {
		name     string
		deps     []Dependency
		expected Status
	}{
		{
			name: "all healthy",
			deps: []Dependency{
				{Name: "runtime", Checker: &countingChecker{}},
				{Name: "store", Checker: &countingChecker{}},
			},
			expected: StatusHealthy,
		},
		{
			name: "runtime down",
			deps: []Dependency{
				{Name: "runtime", Checker: &countingChecker{err: down}},
				{Name: "store", Checker: &countingChecker{}},
			},
			expected: StatusUnhealthy,
		},
		{
			name: "optional down",
			deps: []Dependency{
				{Name: "runtime", Checker: &countingChecker{}},
				{Name: "locks", Checker: &countingChecker{err: down}, Optional: true},
			},
			expected: StatusDegraded,
		},
		{
			name: "required and optional down",
			deps: []Dependency{
				{Name: "store", Checker: &countingChecker{err: down}},
				{Name: "locks", Checker: &countingChecker{err: down}, Optional: true},
			},
			expected: StatusUnhealthy,
		},
		{
			name:     "nil checker",
			deps:     []Dependency{{Name: "runtime"}},
			expected: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := NewChecker(tt.deps...).Readiness(context.Background())

			if response.Status != tt.expected {
				t.Errorf("Readiness() status = %s, want %s", response.Status, tt.expected)
			}
			if len(response.Checks) != len(tt.deps) {
				t.Errorf("expected %d checks, got %d", len(tt.deps), len(response.Checks))
			}
		})
	}
}

func TestChecker_Readiness_ReportsMessage(t *testing.T) {
	t.Parallel()
	checker := NewChecker(Dependency{
		Name: "runtime",
		Checker: ReadyFunc(func(context.Context) error {
			return errors.New("cannot connect to the docker daemon")
		}),
	})

	response := checker.Readiness(context.Background())

	check := response.Checks["runtime"]
	if check.Status != StatusUnhealthy {
		t.Errorf("runtime check status = %s, want unhealthy", check.Status)
	}
	if check.Message != "cannot connect to the docker daemon" {
		t.Errorf("runtime check message = %q", check.Message)
	}
}

func TestChecker_Readiness_Cached(t *testing.T) {
	t.Parallel()
	dep := &countingChecker{}
	checker := NewChecker(Dependency{Name: "runtime", Checker: dep})
	checker.cacheTTL = time.Hour

	checker.Readiness(context.Background())
	checker.Readiness(context.Background())

	if got := dep.calls.Load(); got != 1 {
		t.Errorf("expected 1 dependency call, got %d", got)
	}
}

func TestChecker_SetShuttingDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(Dependency{Name: "runtime", Checker: &countingChecker{}})

	if !checker.Readiness(context.Background()).IsHealthy() {
		t.Fatal("expected healthy before shutdown")
	}

	checker.SetShuttingDown()

	response := checker.Readiness(context.Background())
	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy after shutdown, got %s", response.Status)
	}
	if _, ok := response.Checks["shutdown"]; !ok {
		t.Error("Expected shutdown check to be present")
	}
}

func TestResponse_IsHealthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		status  Status
		healthy bool
		ready   bool
	}{
		{"healthy", StatusHealthy, true, true},
		{"unhealthy", StatusUnhealthy, false, false},
		{"degraded", StatusDegraded, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := &Response{Status: tt.status}
			if response.IsHealthy() != tt.healthy {
				t.Errorf("IsHealthy() = %v, want %v", response.IsHealthy(), tt.healthy)
			}
			if response.IsReady() != tt.ready {
				t.Errorf("IsReady() = %v, want %v", response.IsReady(), tt.ready)
			}
		})
	}
}
