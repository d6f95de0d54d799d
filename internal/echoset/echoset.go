// Package echoset implements self-loop suppression for DiskMirror: a
// disk or editor event caused by a write the mirror itself just
// performed must be consumed once and not re-propagated upstream.
//
// A plain set does not fit: a rename registers both a "delete" and a
// "create" echo key for the same logical operation, and the two must be
// consumed independently. So this is a multiset: Add increments a
// per-key counter, Consume decrements it and reports whether an entry
// was present. No available set type (golang-set/v2 included) models
// multiplicities, so this is a small hand-rolled type guarded by a mutex
// rather than a channel, the same shape as a watcher's ignore-once map.
package echoset

import "sync"

// Set is a concurrency-safe per-key multiset of pending echoes.
type Set struct {
	mu     sync.Mutex
	counts map[string]int
}

// New returns an empty echo Set.
func New() *Set {
	return &Set{counts: make(map[string]int)}
}

// Add registers one expected echo for key.
func (s *Set) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
}

// Consume atomically checks for and removes one echo for key. It returns
// true if an echo was pending (and has now been consumed), false if the
// event was not self-caused and should be propagated upstream.
func (s *Set) Consume(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.counts[key]
	if !ok || n <= 0 {
		return false
	}
	if n == 1 {
		delete(s.counts, key)
	} else {
		s.counts[key] = n - 1
	}
	return true
}

// Empty reports whether no echoes are currently pending. Used by tests
// to assert that echoes are fully drained once reconciliation settles.
func (s *Set) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counts) == 0
}

// Clear removes all pending echoes, used on DiskMirror.unlink().
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[string]int)
}
