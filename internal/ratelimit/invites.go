// Package ratelimit implements the per-user daily invite quota.
//
// Counters live in the ephemeral store under invites:<userId>:<YYYY-MM-DD>
// (UTC) and expire at the next UTC midnight. The limiter fails open: if the
// store cannot be read, the caller is allowed with a full quota, and a failed
// increment is silently dropped.
package ratelimit

import (
	"context"
	"time"
)

// Store is the subset of the ephemeral adapter the limiter needs.
type Store interface {
	Counter(ctx context.Context, key string) (int64, error)
	Increment(ctx context.Context, key string, expireAt time.Time) (int64, error)
}

// DefaultDailyLimit applies when the configured limit is not positive.
const DefaultDailyLimit = 20

// Status is the result of a quota check.
type Status struct {
	Allowed   bool      `json:"allowed"`
	Remaining int64     `json:"remaining"`
	Limit     int64     `json:"limit"`
	ResetAt   time.Time `json:"resetAt"`
}

// InviteLimiter enforces the daily quota.
type InviteLimiter struct {
	store Store
	limit int64
}

// NewInviteLimiter returns a limiter allowing limit invites per user per UTC day.
func NewInviteLimiter(store Store, limit int) *InviteLimiter {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &InviteLimiter{store: store, limit: int64(limit)}
}

// Key returns the counter key for (userID, date).
func Key(userID string, date time.Time) string {
	return "invites:" + userID + ":" + date.UTC().Format("2006-01-02")
}

// NextUTCMidnight returns the first instant of the UTC day after date.
func NextUTCMidnight(date time.Time) time.Time {
	y, m, d := date.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// Check reports whether userID may send another invite on date.
func (l *InviteLimiter) Check(ctx context.Context, userID string, date time.Time) Status {
	st := Status{Limit: l.limit, ResetAt: NextUTCMidnight(date)}
	n, err := l.store.Counter(ctx, Key(userID, date))
	if err != nil {
		st.Allowed = true
		st.Remaining = l.limit
		return st
	}
	st.Allowed = n < l.limit
	st.Remaining = max(l.limit-n, 0)
	return st
}

// Increment records one invite for (userID, date) and returns the new count,
// or nil when the store is unavailable.
func (l *InviteLimiter) Increment(ctx context.Context, userID string, date time.Time) *int64 {
	n, err := l.store.Increment(ctx, Key(userID, date), NextUTCMidnight(date))
	if err != nil {
		return nil
	}
	return &n
}
