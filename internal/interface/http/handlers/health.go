package handlers

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCY HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// Status is the aggregate state reported by the health endpoint.
type Status string

const (
	StatusUp       Status = "up"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// Pinger is implemented by the store and the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency is one backing service probed by the checker.
type Dependency struct {
	Name string

	// Critical dependencies take the API down when they fail.
	// A failing optional dependency only degrades it.
	Critical bool

	Ping func(ctx context.Context) error
}

// Critical declares a dependency the API cannot serve without.
func Critical(name string, p Pinger) Dependency {
	return Dependency{Name: name, Critical: true, Ping: p.Ping}
}

// Optional declares a dependency the API can fall back from.
func Optional(name string, p Pinger) Dependency {
	return Dependency{Name: name, Ping: p.Ping}
}

// DependencyReport is the probe result for one dependency.
type DependencyReport struct {
	Name     string `json:"name"`
	Critical bool   `json:"critical"`
	Up       bool   `json:"up"`
	Error    string `json:"error,omitempty"`
	Latency  string `json:"latency"`
}

// Report is the body of GET /health.
type Report struct {
	Status       Status             `json:"status"`
	Version      string             `json:"version,omitempty"`
	Uptime       string             `json:"uptime"`
	CheckedAt    time.Time          `json:"checked_at"`
	Dependencies []DependencyReport `json:"dependencies"`
}

// Healthy reports whether the API can serve requests.
func (r Report) Healthy() bool {
	return r.Status != StatusDown
}

// HealthChecker produces a Report.
type HealthChecker interface {
	Check(ctx context.Context) Report
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// Checker probes all dependencies concurrently, each under its own timeout.
type Checker struct {
	version string
	deps    []Dependency
	timeout time.Duration
	started time.Time
	now     func() time.Time
}

// NewChecker creates a Checker. Dependencies are reported in name order.
func NewChecker(version string, deps ...Dependency) *Checker {
	sorted := append([]Dependency(nil), deps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	return &Checker{
		version: version,
		deps:    sorted,
		timeout: 3 * time.Second,
		started: time.Now(),
		now:     time.Now,
	}
}

// WithTimeout sets the per-dependency probe timeout.
func (c *Checker) WithTimeout(d time.Duration) *Checker {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// Check runs every probe and folds the results into one status.
func (c *Checker) Check(ctx context.Context) Report {
	reports := make([]DependencyReport, len(c.deps))

	var g errgroup.Group
	for i, dep := range c.deps {
		i, dep := i, dep
		g.Go(func() error {
			reports[i] = c.probe(ctx, dep)
			return nil
		})
	}
	_ = g.Wait()

	status := StatusUp
	for _, r := range reports {
		switch {
		case r.Up:
		case r.Critical:
			status = StatusDown
		case status == StatusUp:
			status = StatusDegraded
		}
	}

	return Report{
		Status:       status,
		Version:      c.version,
		Uptime:       c.now().Sub(c.started).Round(time.Second).String(),
		CheckedAt:    c.now().UTC(),
		Dependencies: reports,
	}
}

func (c *Checker) probe(ctx context.Context, dep Dependency) DependencyReport {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := dep.Ping(ctx)

	r := DependencyReport{
		Name:     dep.Name,
		Critical: dep.Critical,
		Up:       err == nil,
		Latency:  time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}
