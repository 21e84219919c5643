// Package health runs self checks on demand for the management API.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check represents one health check result
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
	LastChecked time.Time     `json:"last_checked"`
}

// CheckFunc is a function that performs a health check
type CheckFunc func(ctx context.Context) Check

// Checker performs registered health checks on demand and caches the
// latest results.
type Checker struct {
	logger  zerolog.Logger
	checks  map[string]CheckFunc
	results map[string]Check
	mu      sync.RWMutex
	timeout time.Duration
}

// NewChecker creates an empty checker.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		logger:  logger.With().Str("component", "health").Logger(),
		checks:  make(map[string]CheckFunc),
		results: make(map[string]Check),
		timeout: 5 * time.Second,
	}
}

// Register adds a named check.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// RunAll executes all checks and returns the overall status with the
// per-check results.
func (c *Checker) RunAll(ctx context.Context) (Status, map[string]Check) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]Check, len(checks))
	overall := StatusHealthy

	for name, check := range checks {
		start := time.Now()
		result := check(ctx)
		result.Name = name
		result.Duration = time.Since(start)
		result.LastChecked = time.Now()
		results[name] = result

		switch result.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}

	c.mu.Lock()
	c.results = results
	c.mu.Unlock()

	return overall, results
}

// DatabaseCheck wraps a ping function as a health check.
func DatabaseCheck(ping func() error) CheckFunc {
	return func(ctx context.Context) Check {
		if err := ping(); err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		return Check{Status: StatusHealthy}
	}
}

// OnlineCheck reports degraded service while the update engine is gated
// offline.
func OnlineCheck(online func() bool) CheckFunc {
	return func(ctx context.Context) Check {
		if !online() {
			return Check{Status: StatusDegraded, Message: "update engine is offline"}
		}
		return Check{Status: StatusHealthy}
	}
}
