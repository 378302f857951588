package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Probe reports whether one dependency is usable. It must honor ctx.
type Probe func(ctx context.Context) error

type check struct {
	name     string
	probe    Probe
	critical bool
}

// Checker runs named probes and aggregates their results.
type Checker struct {
	name    string
	timeout time.Duration

	mu     sync.RWMutex
	checks []check
	last   *Status
}

// NewChecker creates a checker. Each probe gets at most timeout; zero
// means five seconds.
func NewChecker(name string, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{name: name, timeout: timeout}
}

// Add registers a probe. A failing critical probe makes the aggregate
// unhealthy; any other failure only degrades it.
func (c *Checker) Add(name string, probe Probe, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check{name: name, probe: probe, critical: critical})
}

// Check runs every probe concurrently and returns the aggregate. Sub
// statuses keep registration order.
func (c *Checker) Check(ctx context.Context) Status {
	c.mu.RLock()
	checks := append([]check(nil), c.checks...)
	c.mu.RUnlock()

	results := make([]Status, len(checks))
	var g errgroup.Group
	g.SetLimit(4)
	for i, chk := range checks {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			start := time.Now()
			status := FromError(chk.name, chk.probe(probeCtx), chk.critical)
			status.Latency = time.Since(start)
			results[i] = status
			return nil
		})
	}
	_ = g.Wait()

	agg := Aggregate(c.name, results)
	c.mu.Lock()
	c.last = &agg
	c.mu.Unlock()
	return agg
}

// Last returns the result of the most recent Check.
func (c *Checker) Last() (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return Status{}, false
	}
	return *c.last, true
}

// RegisterHTTPHandlers serves a fresh Check at prefix + "/health". The
// response is 503 when the aggregate is unhealthy.
func (c *Checker) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.HandleFunc("GET "+prefix+"/health", func(w http.ResponseWriter, r *http.Request) {
		status := c.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if status.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
