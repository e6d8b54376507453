package engine

import "sync"

// inflightSet tracks territory ids with a reconciliation currently running.
// It exists purely for deduplication; entries are removed on completion or
// failure and never persisted. TryAdd is a single check-then-insert step
// under one lock, so two overlapping calls can never both claim an id.
type inflightSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newInflightSet() *inflightSet {
	return &inflightSet{ids: make(map[string]struct{})}
}

// TryAdd claims the id, reporting false when it is already claimed.
func (s *inflightSet) TryAdd(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.ids[id]; busy {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Remove releases the id.
func (s *inflightSet) Remove(id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

// Contains reports whether the id is currently claimed.
func (s *inflightSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.ids[id]
	return busy
}
