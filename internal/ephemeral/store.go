// Package ephemeral provides the TTL key-value store that backs presence sets
// and invite counters, plus the resilience Adapter every caller goes through.
//
// Everything kept here is lossy by design. The Adapter never hides errors
// from its caller; instead it records them (health window, error class,
// rate-limited logging, metrics) so the presence service and the invite
// limiter can substitute a safe default without logging storms.
package ephemeral

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned for every operation when no store is wired
// (REDIS_URL unset).
var ErrNotConfigured = errors.New("ephemeral store not configured")

// Store is the minimal set of atomic TTL operations the growth services need.
type Store interface {
	// AddMember adds member to the set at key and (re)sets the key TTL.
	AddMember(ctx context.Context, key, member string, ttl time.Duration) error
	// CountMembers returns the cardinality of the set at key (0 if absent).
	CountMembers(ctx context.Context, key string) (int64, error)
	// Counter returns the integer at key (0 if absent).
	Counter(ctx context.Context, key string) (int64, error)
	// Increment atomically adds one to the counter at key, sets it to expire
	// at expireAt and returns the new value.
	Increment(ctx context.Context, key string, expireAt time.Time) (int64, error)
}
