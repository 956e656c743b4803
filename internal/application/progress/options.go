package progress

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// AwardOption tunes a single point award.
type AwardOption func(*awardOptions)

type awardOptions struct {
	idempotencyKey string
}

// WithIdempotencyKey makes the award happen at most once per (user, key).
// A replay returns the current balance and writes nothing.
func WithIdempotencyKey(key string) AwardOption {
	return func(o *awardOptions) {
		o.idempotencyKey = key
	}
}

func collectAwardOptions(opts []AwardOption) awardOptions {
	var o awardOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// derive returns options for a secondary award caused by the same event.
func (o awardOptions) derive(suffix string) []AwardOption {
	if o.idempotencyKey == "" {
		return nil
	}
	return []AwardOption{WithIdempotencyKey(o.idempotencyKey + ":" + suffix)}
}

// idempotencyDigest hashes the user-scoped key to a fixed-width identifier.
func idempotencyDigest(userID, key string) string {
	sum := blake2b.Sum256([]byte(userID + "\x00" + key))
	return hex.EncodeToString(sum[:])
}
