// Package ratelimit implements an in-memory sliding-window limiter keyed by
// caller identity (client IP, user id).
package ratelimit

import (
	"sort"
	"sync"
	"time"
)

// DefaultMaxKeys bounds the number of tracked keys before a prune runs.
const DefaultMaxKeys = 10000

// DefaultWindow is used when a limiter is built with a non-positive window.
const DefaultWindow = time.Minute

// SlidingWindow allows at most limit hits per key within window.
type SlidingWindow struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	maxKeys  int
}

// NewSlidingWindow clamps limit to at least one hit and window to at least
// DefaultWindow.
func NewSlidingWindow(limit int, window time.Duration, maxKeys int) *SlidingWindow {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &SlidingWindow{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		maxKeys:  maxKeys,
	}
}

// Allow records a hit for key at now. When the key is over its limit the hit
// is not recorded and retryAfter tells when the oldest hit leaves the window.
func (s *SlidingWindow) Allow(key string, now time.Time) (bool, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	valid := s.live(s.requests[key], now)
	if len(valid) >= s.limit {
		s.requests[key] = valid
		return false, valid[0].Add(s.window).Sub(now)
	}

	s.requests[key] = append(valid, now)
	if len(s.requests) > s.maxKeys {
		s.prune(now)
	}
	return true, 0
}

// Remaining reports how many hits key has left in the current window.
func (s *SlidingWindow) Remaining(key string, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.limit - len(s.live(s.requests[key], now))
	if n < 0 {
		return 0
	}
	return n
}

// Len returns the number of tracked keys.
func (s *SlidingWindow) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Cleanup drops keys whose hits have all left the window.
func (s *SlidingWindow) Cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropExpired(now)
}

func (s *SlidingWindow) live(times []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(times) && now.Sub(times[i]) >= s.window {
		i++
	}
	if i == 0 {
		return times
	}
	out := make([]time.Time, len(times)-i)
	copy(out, times[i:])
	return out
}

func (s *SlidingWindow) dropExpired(now time.Time) {
	for key, times := range s.requests {
		valid := s.live(times, now)
		if len(valid) == 0 {
			delete(s.requests, key)
		} else {
			s.requests[key] = valid
		}
	}
}

// prune is called with the lock held once the map exceeds maxKeys. Expired
// keys go first; if that is not enough the least recently seen keys go.
func (s *SlidingWindow) prune(now time.Time) {
	s.dropExpired(now)
	excess := len(s.requests) - s.maxKeys
	if excess <= 0 {
		return
	}

	type seen struct {
		key  string
		last time.Time
	}
	keys := make([]seen, 0, len(s.requests))
	for k, times := range s.requests {
		keys = append(keys, seen{key: k, last: times[len(times)-1]})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].last.Before(keys[j].last) })
	for _, k := range keys[:excess] {
		delete(s.requests, k.key)
	}
}
