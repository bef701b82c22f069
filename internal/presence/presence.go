// Package presence counts distinct active users per subject (a deck, a
// challenge, a cohort page) on top of the ephemeral store.
//
// Membership is a TTL'd set per subject; each ping re-adds the user and
// refreshes the TTL, so a user drops out TTL after their last ping. Every
// operation is best effort: store failures degrade to "nobody here" and are
// never returned to the caller.
package presence

import (
	"context"
	"regexp"
	"time"

	"golang.org/x/sync/errgroup"
)

// Store is the subset of the ephemeral adapter presence needs.
type Store interface {
	AddMember(ctx context.Context, key, member string, ttl time.Duration) error
	CountMembers(ctx context.Context, key string) (int64, error)
	IsHealthy() bool
}

// Options configures TTL and push channel cadence.
type Options struct {
	TTL          time.Duration
	PollInterval time.Duration
	KeepAlive    time.Duration
}

// DefaultOptions mirrors the configuration defaults.
var DefaultOptions = Options{
	TTL:          30 * time.Second,
	PollInterval: 2500 * time.Millisecond,
	KeepAlive:    15 * time.Second,
}

const maxBatch = 50

var subjectRE = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// ValidSubject reports whether s can be used as a subject id.
func ValidSubject(s string) bool { return subjectRE.MatchString(s) }

// Key is the store key for a subject's presence set.
func Key(subject string) string { return "presence:" + subject }

// Service implements ping/count and the live watch loop.
type Service struct {
	store Store
	opts  Options
}

// New returns a Service; zero durations in opts fall back to DefaultOptions.
func New(store Store, opts Options) *Service {
	if opts.TTL <= 0 {
		opts.TTL = DefaultOptions.TTL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions.PollInterval
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultOptions.KeepAlive
	}
	return &Service{store: store, opts: opts}
}

// Ping marks userID as present on subject.
func (s *Service) Ping(ctx context.Context, subject, userID string) {
	_ = s.store.AddMember(ctx, Key(subject), userID, s.opts.TTL)
}

// Count returns the number of present users, or 0 when the store fails.
func (s *Service) Count(ctx context.Context, subject string) int64 {
	n, err := s.store.CountMembers(ctx, Key(subject))
	if err != nil {
		return 0
	}
	return n
}

// Counts resolves many subjects concurrently. A failing subject reads as 0
// without affecting the others. At most maxBatch distinct subjects are read.
func (s *Service) Counts(ctx context.Context, subjects []string) map[string]int64 {
	uniq := make([]string, 0, len(subjects))
	seen := make(map[string]struct{}, len(subjects))
	for _, sub := range subjects {
		if _, ok := seen[sub]; ok {
			continue
		}
		seen[sub] = struct{}{}
		uniq = append(uniq, sub)
		if len(uniq) == maxBatch {
			break
		}
	}

	vals := make([]int64, len(uniq))
	var g errgroup.Group
	g.SetLimit(8)
	for i, sub := range uniq {
		g.Go(func() error {
			vals[i] = s.Count(ctx, sub)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]int64, len(uniq))
	for i, sub := range uniq {
		out[sub] = vals[i]
	}
	return out
}

// Healthy reports the store adapter's health.
func (s *Service) Healthy() bool { return s.store.IsHealthy() }
