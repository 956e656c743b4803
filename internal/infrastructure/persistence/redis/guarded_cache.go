package redis

import (
	"context"
	"errors"
	"time"

	"github.com/drivehub/drivehub-api/internal/domain/gamification"
	"github.com/drivehub/drivehub-api/pkg/circuitbreaker"
)

// GuardedInfoCache stops calling an unhealthy cache until the breaker closes.
// Misses are not failures. While open, Get reports a miss and writes are dropped.
type GuardedInfoCache struct {
	next    gamification.InfoCache
	breaker *circuitbreaker.Breaker
}

var _ gamification.InfoCache = (*GuardedInfoCache)(nil)

// NewGuardedInfoCache wraps next with breaker.
func NewGuardedInfoCache(next gamification.InfoCache, breaker *circuitbreaker.Breaker) *GuardedInfoCache {
	return &GuardedInfoCache{next: next, breaker: breaker}
}

// Get returns the cached snapshot or ErrCacheMiss.
func (c *GuardedInfoCache) Get(ctx context.Context, userID string) (*gamification.Info, error) {
	var (
		info *gamification.Info
		miss bool
	)
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		info, err = c.next.Get(ctx, userID)
		if errors.Is(err, ErrCacheMiss) {
			miss = true
			return nil
		}
		return err
	})
	if miss || circuitbreaker.IsRejection(err) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Version returns the invalidation counter. While the breaker is open it
// returns the rejection so callers skip the fill.
func (c *GuardedInfoCache) Version(ctx context.Context, userID string) (int64, error) {
	var version int64
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		version, err = c.next.Version(ctx, userID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Set stores a snapshot unless the breaker is open.
func (c *GuardedInfoCache) Set(ctx context.Context, info *gamification.Info, version int64, ttl time.Duration) error {
	return dropRejected(c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.next.Set(ctx, info, version, ttl)
	}))
}

// Invalidate drops the snapshot unless the breaker is open; skipped entries
// expire by TTL.
func (c *GuardedInfoCache) Invalidate(ctx context.Context, userID string) error {
	return dropRejected(c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.next.Invalidate(ctx, userID)
	}))
}

func dropRejected(err error) error {
	if circuitbreaker.IsRejection(err) {
		return nil
	}
	return err
}
