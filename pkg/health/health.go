// Package health aggregates liveness checks for the gateway's dependencies.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// Check is one named dependency probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Checker runs registered checks on demand.
type Checker struct {
	mu     sync.RWMutex
	checks []Check
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{checks: make([]Check, 0)}
}

// Register adds a check.
func (c *Checker) Register(name string, probe func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, Check{Name: name, Probe: probe})
}

// Check runs all probes and reports per-dependency results.
func (c *Checker) Check(ctx context.Context) map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	results := make(map[string]error, len(c.checks))
	for _, check := range c.checks {
		results[check.Name] = check.Probe(ctx)
	}
	return results
}

// Handler serves the aggregate status: 200 when every probe passes,
// 503 otherwise.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := StatusUp
		for _, err := range c.Check(ctx) {
			if err != nil {
				status = StatusDown
				break
			}
		}
		if status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		w.Write([]byte(string(status)))
	}
}
