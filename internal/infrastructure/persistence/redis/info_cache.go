package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drivehub/drivehub-api/internal/domain/gamification"
)

// infoKeyPrefix carries a schema version so a changed Info layout never
// decodes stale entries.
const infoKeyPrefix = "drivehub:progress:v1:"

// versionTTL outlives any snapshot TTL so a counter never resets under a
// reader that is still filling.
const versionTTL = 24 * time.Hour

// InfoKey is the key of a user's cached progress snapshot. The user id is a
// hash tag so the snapshot and its version share a cluster slot.
func InfoKey(userID string) string {
	return infoKeyPrefix + "{" + userID + "}"
}

// VersionKey is the key of a user's invalidation counter.
func VersionKey(userID string) string {
	return InfoKey(userID) + ":version"
}

// InfoCache stores gamification.Info snapshots as JSON strings with a TTL.
type InfoCache struct {
	rdb redis.UniversalClient
}

var _ gamification.InfoCache = (*InfoCache)(nil)

// NewInfoCache creates an InfoCache on c.
func NewInfoCache(c *Client) *InfoCache {
	return &InfoCache{rdb: c.rdb}
}

// Get returns the cached snapshot or ErrCacheMiss.
// An entry that no longer decodes is dropped and reported as a miss.
func (c *InfoCache) Get(ctx context.Context, userID string) (*gamification.Info, error) {
	key := InfoKey(userID)
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var info gamification.Info
	if err := json.Unmarshal(data, &info); err != nil || info.UserID != userID {
		_ = c.rdb.Del(ctx, key).Err()
		return nil, ErrCacheMiss
	}
	return &info, nil
}

// Version returns the invalidation counter, zero when never invalidated.
func (c *InfoCache) Version(ctx context.Context, userID string) (int64, error) {
	v, err := c.rdb.Get(ctx, VersionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", VersionKey(userID), err)
	}
	return v, nil
}

// Set stores a snapshot read at version. The write runs under WATCH on the
// version key and is skipped when an invalidation got there first.
// A non-positive ttl skips the write.
func (c *InfoCache) Set(ctx context.Context, info *gamification.Info, version int64, ttl time.Duration) error {
	if info == nil || info.UserID == "" {
		return errors.New("cache: snapshot without user id")
	}
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	key, versionKey := InfoKey(info.UserID), VersionKey(info.UserID)
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return errStaleSnapshot
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			return nil
		})
		return err
	}, versionKey)
	if errors.Is(err, errStaleSnapshot) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Invalidate drops the user's snapshot and bumps the version.
func (c *InfoCache) Invalidate(ctx context.Context, userID string) error {
	key, versionKey := InfoKey(userID), VersionKey(userID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.Incr(ctx, versionKey)
		pipe.Expire(ctx, versionKey, versionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	return nil
}
