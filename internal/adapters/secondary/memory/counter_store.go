package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

type counterEntry struct {
	start     time.Time
	count     int
	expiresAt time.Time
}

// CounterStore is a process-local ports.CounterStore. It is only shared by
// callers in the same process; multi-process deployments use the postgres store.
type CounterStore struct {
	mu       sync.Mutex
	counters map[string]map[int64]*counterEntry
	now      func() time.Time
}

var _ ports.CounterStore = (*CounterStore)(nil)

// NewCounterStore creates an empty store. A nil clock defaults to time.Now.
func NewCounterStore(now func() time.Time) *CounterStore {
	if now == nil {
		now = time.Now
	}
	return &CounterStore{
		counters: make(map[string]map[int64]*counterEntry),
		now:      now,
	}
}

func (s *CounterStore) Increment(_ context.Context, key string, windowStart time.Time, delta int, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	windows, ok := s.counters[key]
	if !ok {
		windows = make(map[int64]*counterEntry)
		s.counters[key] = windows
	}

	e, ok := windows[windowStart.UnixNano()]
	if !ok || s.now().After(e.expiresAt) {
		e = &counterEntry{start: windowStart}
		windows[windowStart.UnixNano()] = e
	}
	e.count += delta
	if e.count < 0 {
		e.count = 0
	}
	e.expiresAt = windowStart.Add(ttl)
	return e.count, nil
}

func (s *CounterStore) Get(_ context.Context, key string, windowStart time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.counters[key][windowStart.UnixNano()]
	if !ok || s.now().After(e.expiresAt) {
		return 0, nil
	}
	return e.count, nil
}

func (s *CounterStore) Counts(_ context.Context, key string, from time.Time) ([]ports.WindowCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var counts []ports.WindowCount
	for _, e := range s.counters[key] {
		if e.start.Before(from) || now.After(e.expiresAt) {
			continue
		}
		counts = append(counts, ports.WindowCount{Start: e.start, Count: e.count})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Start.Before(counts[j].Start) })
	return counts, nil
}

// Sweep removes expired counters and returns how many were dropped.
func (s *CounterStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, windows := range s.counters {
		for start, e := range windows {
			if now.After(e.expiresAt) {
				delete(windows, start)
				removed++
			}
		}
		if len(windows) == 0 {
			delete(s.counters, key)
		}
	}
	return removed, nil
}
