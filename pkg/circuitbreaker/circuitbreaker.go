// Package circuitbreaker stops calling a failing dependency for a cool-down
// period and lets a few probe calls through before resuming.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the position of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

var (
	// ErrCircuitOpen is returned while the cool-down runs.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when every half-open probe slot is taken.
	ErrTooManyRequests = errors.New("circuit breaker probe quota exhausted")
)

// IsRejection reports whether err came from the breaker rather than the call.
func IsRejection(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}

// Settings configures a Breaker. Zero fields take the defaults noted.
type Settings struct {
	Name string

	// Failures in a row that open the circuit. Default 5.
	Failures int
	// Successes in a row, while half-open, that close it. Default 2.
	Successes int
	// Cooldown is how long the circuit stays open. Default 30s.
	Cooldown time.Duration
	// Probes is the number of concurrent half-open calls. Default 1.
	Probes int

	// Counts decides which errors are failures. Nil counts all of them.
	Counts func(error) bool

	OnStateChange func(name string, from, to State)
}

// Stats is a snapshot of what a breaker has seen.
type Stats struct {
	Calls    int
	Failures int
	Rejected int
}

// Breaker guards calls to one dependency.
type Breaker struct {
	settings Settings
	now      func() time.Time

	mu        sync.Mutex
	state     State
	streak    int // consecutive failures when closed, successes when half-open
	openUntil time.Time
	inFlight  int
	stats     Stats
}

// New creates a closed Breaker.
func New(s Settings) *Breaker {
	if s.Failures <= 0 {
		s.Failures = 5
	}
	if s.Successes <= 0 {
		s.Successes = 2
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Probes <= 0 {
		s.Probes = 1
	}
	return &Breaker{settings: s, now: time.Now}
}

// CacheBreaker returns a breaker tuned for the progress cache: three
// failures open it for 15s and one good probe closes it.
func CacheBreaker(onStateChange func(name string, from, to State)) *Breaker {
	return New(Settings{
		Name:          "cache",
		Failures:      3,
		Successes:     1,
		Cooldown:      15 * time.Second,
		Probes:        1,
		OnStateChange: onStateChange,
	})
}

// Name returns the configured name.
func (b *Breaker) Name() string { return b.settings.Name }

// State returns the current state. An open breaker whose cool-down has
// elapsed still reports open until the next call probes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns the counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Execute runs fn unless the circuit rejects it, and records the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Before(b.openUntil) {
			b.stats.Rejected++
			return ErrCircuitOpen
		}
		b.moveTo(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.inFlight >= b.settings.Probes {
			b.stats.Rejected++
			return ErrTooManyRequests
		}
		b.inFlight++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Calls++
	failed := err != nil && (b.settings.Counts == nil || b.settings.Counts(err))
	if failed {
		b.stats.Failures++
	}

	switch b.state {
	case StateClosed:
		if !failed {
			b.streak = 0
			return
		}
		b.streak++
		if b.streak >= b.settings.Failures {
			b.open()
		}
	case StateHalfOpen:
		b.inFlight--
		if failed {
			b.open()
			return
		}
		b.streak++
		if b.streak >= b.settings.Successes {
			b.moveTo(StateClosed)
		}
	}
}

func (b *Breaker) open() {
	b.openUntil = b.now().Add(b.settings.Cooldown)
	b.moveTo(StateOpen)
}

// moveTo must be called with mu held.
func (b *Breaker) moveTo(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.streak = 0
	b.inFlight = 0
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.settings.Name, from, to)
	}
}
