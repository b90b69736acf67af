// Package ratelimit implements fixed-window request counters.
//
// A call to Allow checks several rules at once and only increments the
// counters when every rule still has capacity, so a rejected request never
// consumes quota from the rules it did pass.
//
// Three backends share the Limiter interface: Memory for tests and single
// instance deployments, Redis (go-redis) and Postgres (pgx) for deployments
// with several app instances.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Rule is one counter: at most Limit hits per Window for Key.
type Rule struct {
	Key    string
	Limit  int
	Window time.Duration
}

// Limiter admits or rejects a request against a set of rules.
type Limiter interface {
	Allow(ctx context.Context, rules ...Rule) (bool, error)
}

// windowStart truncates now to the start of the rule's fixed window.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.UTC().Truncate(window)
}

type bucket struct {
	start time.Time
	count int
}

// Memory is an in-process Limiter.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemory returns an empty in-process limiter.
func NewMemory() *Memory {
	return &Memory{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, rules ...Rule) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, r := range rules {
		if b := m.current(r, now); b != nil && b.count >= r.Limit {
			return false, nil
		}
	}
	for _, r := range rules {
		b := m.current(r, now)
		if b == nil {
			b = &bucket{start: windowStart(now, r.Window)}
			m.buckets[r.Key] = b
		}
		b.count++
	}
	return true, nil
}

// current returns the live bucket for r, or nil when its window has passed.
func (m *Memory) current(r Rule, now time.Time) *bucket {
	b, ok := m.buckets[r.Key]
	if !ok || !b.start.Equal(windowStart(now, r.Window)) {
		return nil
	}
	return b
}

// Purge drops buckets whose window started before cutoff.
func (m *Memory) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, b := range m.buckets {
		if b.start.Before(cutoff) {
			delete(m.buckets, k)
			n++
		}
	}
	return n, nil
}

// Noop admits everything. Used when rate limiting is disabled.
type Noop struct{}

func (Noop) Allow(context.Context, ...Rule) (bool, error) { return true, nil }
