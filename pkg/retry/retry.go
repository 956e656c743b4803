// Package retry re-runs operations that fail with transient errors,
// backing off exponentially between attempts.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy describes how often and how patiently to retry.
type Policy struct {
	// Attempts counts the first call. Values below 1 mean a single call.
	Attempts int

	// Base is the delay before the second attempt; it doubles per attempt up to Max.
	Base time.Duration
	Max  time.Duration

	// Jitter spreads each delay by ±Jitter of itself. 0 disables it.
	Jitter float64

	// Retry reports whether err is transient. Nil retries nothing.
	Retry func(err error) bool

	// OnRetry runs before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retrier applies a Policy.
type Retrier struct {
	policy Policy
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Retrier for p.
func New(p Policy) *Retrier {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	return &Retrier{policy: p, sleep: sleepCtx}
}

// Do calls op until it succeeds, fails permanently, runs out of attempts, or
// ctx ends. The error of the last call is returned; a context error is
// returned only when op never ran.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		err = op(ctx)
		if err == nil || attempt >= r.policy.Attempts || r.policy.Retry == nil || !r.policy.Retry(err) {
			return err
		}

		delay := r.delay(attempt)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}
		if r.sleep(ctx, delay) != nil {
			return err
		}
	}
}

// delay is the wait after the given failed attempt.
func (r *Retrier) delay(attempt int) time.Duration {
	d := r.policy.Base << (attempt - 1)
	if d <= 0 || (r.policy.Max > 0 && d > r.policy.Max) {
		d = r.policy.Max
	}
	if j := r.policy.Jitter; j > 0 {
		d += time.Duration(float64(d) * j * (2*rand.Float64() - 1))
	}
	return max(d, 0)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// TransactionRetrier retries units of work that lost a serialization race.
// isConflict decides which errors are worth another attempt.
func TransactionRetrier(isConflict func(error) bool, onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(Policy{
		Attempts: 4,
		Base:     20 * time.Millisecond,
		Max:      500 * time.Millisecond,
		Jitter:   0.2,
		Retry:    isConflict,
		OnRetry:  onRetry,
	})
}

// ConnectRetrier retries startup connections to backing services on any error.
func ConnectRetrier(onRetry func(attempt int, err error, delay time.Duration)) *Retrier {
	return New(Policy{
		Attempts: 5,
		Base:     500 * time.Millisecond,
		Max:      5 * time.Second,
		Jitter:   0.1,
		Retry:    func(error) bool { return true },
		OnRetry:  onRetry,
	})
}
