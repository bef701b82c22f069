package ephemeral

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-memory Store whose failures can be switched on.
type fakeStore struct {
	mu      sync.Mutex
	sets    map[string]map[string]struct{}
	counts  map[string]int64
	failErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sets: map[string]map[string]struct{}{}, counts: map[string]int64{}}
}

func (f *fakeStore) fail(err error) {
	f.mu.Lock()
	f.failErr = err
	f.mu.Unlock()
}

func (f *fakeStore) AddMember(_ context.Context, key, member string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	if f.sets[key] == nil {
		f.sets[key] = map[string]struct{}{}
	}
	f.sets[key][member] = struct{}{}
	return nil
}

func (f *fakeStore) CountMembers(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return 0, f.failErr
	}
	return int64(len(f.sets[key])), nil
}

func (f *fakeStore) Counter(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return 0, f.failErr
	}
	return f.counts[key], nil
}

func (f *fakeStore) Increment(_ context.Context, key string, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return 0, f.failErr
	}
	f.counts[key]++
	return f.counts[key], nil
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
