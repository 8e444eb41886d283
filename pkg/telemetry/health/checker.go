package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Check and overall statuses.
const (
	StatusOK        = "ok"
	StatusReady     = "ready"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// DefaultCheckTimeout bounds each check when New is given zero.
const DefaultCheckTimeout = 5 * time.Second

// CheckFunc is a function that performs a health check for a component.
// It returns nil if the component is healthy, or an error describing the problem.
type CheckFunc func(ctx context.Context) error

// Pinger is satisfied by the SQLite stores and the Redis challenge store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck adapts a Pinger to a CheckFunc.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// HealthStatus represents the overall health status of the system.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Checker manages readiness checks for system components.
type Checker struct {
	mu           sync.RWMutex
	checks       map[string]CheckFunc
	checkTimeout time.Duration
	now          func() time.Time
}

// New creates a new health checker with the specified check timeout.
func New(checkTimeout time.Duration) *Checker {
	if checkTimeout <= 0 {
		checkTimeout = DefaultCheckTimeout
	}
	return &Checker{
		checks:       make(map[string]CheckFunc),
		checkTimeout: checkTimeout,
		now:          time.Now,
	}
}

// RegisterCheck registers a check for a named component, replacing any
// check already registered under that name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// UnregisterCheck removes a health check for a named component.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// ListChecks returns the names of all registered checks in sorted order.
func (c *Checker) ListChecks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckLiveness reports the process as alive. It runs no component checks.
func (c *Checker) CheckLiveness(context.Context) HealthStatus {
	return HealthStatus{Status: StatusOK, Timestamp: c.now()}
}

// CheckReadiness runs all registered checks concurrently. The status is
// "ready" when every check passes and "degraded" otherwise.
func (c *Checker) CheckReadiness(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check CheckFunc) {
			defer wg.Done()
			result := c.runCheck(ctx, check)
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	status := StatusReady
	for _, result := range results {
		if result.Status != StatusOK {
			status = StatusDegraded
		}
	}

	return HealthStatus{
		Status:    status,
		Checks:    results,
		Timestamp: c.now(),
	}
}

// runCheck executes a single check under the check timeout. A check that
// ignores its context is abandoned when the timeout fires.
func (c *Checker) runCheck(ctx context.Context, check CheckFunc) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	start := time.Now()
	errChan := make(chan error, 1)
	go func() {
		errChan <- check(checkCtx)
	}()

	var err error
	select {
	case err = <-errChan:
	case <-checkCtx.Done():
		err = checkCtx.Err()
		if err == context.DeadlineExceeded {
			return CheckResult{
				Status:     StatusUnhealthy,
				Message:    "health check timeout",
				DurationMS: msSince(start),
			}
		}
	}

	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error(), DurationMS: msSince(start)}
	}
	return CheckResult{Status: StatusOK, DurationMS: msSince(start)}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
