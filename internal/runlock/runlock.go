// Package runlock serializes agent runs per session within one process.
package runlock

import (
	"fmt"
	"sync"

	"github.com/zulandar/switchboard/internal/errs"
)

// Set is the in-memory set of session ids with a run in flight. It does
// not coordinate across processes sharing one store.
type Set struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

// New returns an empty Set.
func New() *Set {
	return &Set{busy: make(map[string]struct{})}
}

// TryAcquire marks id busy. It returns false, leaving the set untouched,
// when id is already held.
func (s *Set) TryAcquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.busy[id]; held {
		return false
	}
	s.busy[id] = struct{}{}
	return true
}

// Release clears id. Releasing an id that is not held is a no-op.
func (s *Set) Release(id string) {
	s.mu.Lock()
	delete(s.busy, id)
	s.mu.Unlock()
}

// Acquire is TryAcquire returning a release func, or errs.ErrBusy.
// The release func is safe to call more than once.
func (s *Set) Acquire(id string) (func(), error) {
	if !s.TryAcquire(id) {
		return nil, fmt.Errorf("runlock: session %s: %w", id, errs.ErrBusy)
	}
	var once sync.Once
	return func() { once.Do(func() { s.Release(id) }) }, nil
}

// Held reports whether id is currently busy.
func (s *Set) Held(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, held := s.busy[id]
	return held
}
