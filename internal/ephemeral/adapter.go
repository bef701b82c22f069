package ephemeral

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/growth-loop-backend/internal/observability"
)

// Class is the coarse error category used for logging and metrics.
type Class int

const (
	// ClassTransient errors are expected to clear on their own (timeouts,
	// resets, DNS hiccups, a restarting server).
	ClassTransient Class = iota
	// ClassPermanent errors need an operator (missing configuration, bad
	// credentials).
	ClassPermanent
)

func (c Class) String() string {
	if c == ClassPermanent {
		return "permanent"
	}
	return "transient"
}

const (
	// HealthWindow is how recent the last success must be for IsHealthy.
	HealthWindow = 2 * time.Minute
	// LogWindow bounds error logging to one line per window.
	LogWindow = 60 * time.Second
)

// Classify maps err to a Class. Unknown errors are treated as transient so a
// surprise failure mode never disables a feature outright.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassTransient
	case errors.Is(err, ErrNotConfigured):
		return ClassPermanent
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, redis.ErrClosed):
		return ClassTransient
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	msg := err.Error()
	for _, p := range []string{"NOAUTH", "WRONGPASS", "ERR invalid password", "ERR AUTH", "NOPERM", "invalid URL", "parse redis url"} {
		if strings.Contains(msg, p) {
			return ClassPermanent
		}
	}
	return ClassTransient
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(a *Adapter) { a.now = now } }

// WithLogger overrides the global zerolog logger.
func WithLogger(l zerolog.Logger) Option { return func(a *Adapter) { a.log = l } }

// Adapter wraps a Store with health tracking, error classification and log
// suppression. It is safe for concurrent use; all state is held in atomics.
// A nil store means "not configured": every call fails with ErrNotConfigured
// and IsHealthy is always false.
type Adapter struct {
	store Store
	now   func() time.Time
	log   zerolog.Logger

	lastAttempt atomic.Int64 // unix nanos, 0 = never
	lastSuccess atomic.Int64
	lastLog     atomic.Int64
	suppressed  atomic.Int64
}

// NewAdapter wraps store (which may be nil).
func NewAdapter(store Store, opts ...Option) *Adapter {
	a := &Adapter{store: store, now: time.Now, log: log.Logger}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Configured reports whether a backing store is wired.
func (a *Adapter) Configured() bool { return a.store != nil }

// IsHealthy reports true when no operation has been attempted yet or the last
// success is within HealthWindow. An unconfigured adapter is never healthy.
func (a *Adapter) IsHealthy() bool {
	if a.store == nil {
		return false
	}
	if a.lastAttempt.Load() == 0 {
		return true
	}
	last := a.lastSuccess.Load()
	if last == 0 {
		return false
	}
	return a.now().Sub(time.Unix(0, last)) <= HealthWindow
}

// AddMember forwards to the store.
func (a *Adapter) AddMember(ctx context.Context, key, member string, ttl time.Duration) error {
	return a.do(ctx, "add_member", key, func(s Store) error {
		return s.AddMember(ctx, key, member, ttl)
	})
}

// CountMembers forwards to the store.
func (a *Adapter) CountMembers(ctx context.Context, key string) (int64, error) {
	var n int64
	err := a.do(ctx, "count_members", key, func(s Store) (err error) {
		n, err = s.CountMembers(ctx, key)
		return err
	})
	return n, err
}

// Counter forwards to the store.
func (a *Adapter) Counter(ctx context.Context, key string) (int64, error) {
	var n int64
	err := a.do(ctx, "counter", key, func(s Store) (err error) {
		n, err = s.Counter(ctx, key)
		return err
	})
	return n, err
}

// Increment forwards to the store.
func (a *Adapter) Increment(ctx context.Context, key string, expireAt time.Time) (int64, error) {
	var n int64
	err := a.do(ctx, "increment", key, func(s Store) (err error) {
		n, err = s.Increment(ctx, key, expireAt)
		return err
	})
	return n, err
}

func (a *Adapter) do(_ context.Context, op, key string, fn func(Store) error) error {
	if a.store == nil {
		a.record(op, key, ErrNotConfigured)
		return ErrNotConfigured
	}
	now := a.now().UnixNano()
	a.lastAttempt.Store(now)
	err := fn(a.store)
	if err == nil {
		a.lastSuccess.Store(a.now().UnixNano())
		return nil
	}
	a.record(op, key, err)
	return err
}

// record counts the error and logs at most once per LogWindow. Concurrent
// failures race on CompareAndSwap; losers only bump the suppressed count.
func (a *Adapter) record(op, key string, err error) {
	class := Classify(err)
	observability.EphemeralStoreErrors.WithLabelValues(op, class.String()).Inc()

	now := a.now().UnixNano()
	last := a.lastLog.Load()
	if last != 0 && now-last < int64(LogWindow) {
		a.suppressed.Add(1)
		return
	}
	if !a.lastLog.CompareAndSwap(last, now) {
		a.suppressed.Add(1)
		return
	}

	ev := a.log.Warn()
	if class == ClassPermanent {
		ev = a.log.Error()
	}
	ev.Err(err).
		Str("op", op).
		Str("key", key).
		Str("class", class.String()).
		Int64("suppressed", a.suppressed.Swap(0)).
		Msg("ephemeral store error")
}
