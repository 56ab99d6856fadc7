package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cardotrejos/babypeek-sub000/internal/clock"
)

type window struct {
	count int
	start time.Time
}

// MemoryStore is the single-process Store: one mutable map guarded by a
// mutex. Adequate for one instance; state does not survive a restart.
type MemoryStore struct {
	limit    int
	duration time.Duration
	clock    clock.Clock

	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryStore(limit int, duration time.Duration, clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		limit:    limit,
		duration: duration,
		clock:    clk,
		windows:  make(map[string]*window),
	}
}

func (s *MemoryStore) Check(_ context.Context, key string) (Decision, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || s.expired(w, now) {
		return Decision{
			Allowed:   true,
			Limit:     s.limit,
			Remaining: s.limit,
			ResetAt:   now.Add(s.duration),
		}, nil
	}
	// For a read-only check, "allowed" means a further request would still
	// be admitted.
	d := s.decision(w)
	d.Allowed = w.count < s.limit
	return d, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string) (Decision, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &window{start: now}
		s.windows[key] = w
	} else if s.expired(w, now) {
		w.count = 0
		w.start = now
	}

	w.count++
	return s.decision(w), nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// Sweep drops expired windows and returns how many were removed. Called
// periodically so abandoned keys do not accumulate.
func (s *MemoryStore) Sweep(_ context.Context) int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if s.expired(w, now) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) expired(w *window, now time.Time) bool {
	return !now.Before(w.start.Add(s.duration))
}

func (s *MemoryStore) decision(w *window) Decision {
	remaining := s.limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   w.count <= s.limit,
		Limit:     s.limit,
		Remaining: remaining,
		ResetAt:   w.start.Add(s.duration),
	}
}
