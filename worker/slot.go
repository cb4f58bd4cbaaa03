package worker

import "sync"

// Slot is a single-entry mailbox for analysis requests. A new request is
// accepted only while the slot is empty; otherwise it is dropped and
// counted. Results release the slot only when they carry the id it holds.
type Slot struct {
	mu      sync.Mutex
	id      uint64
	busy    bool
	dropped uint64
}

// Acquire claims the slot for id. It reports false, and counts a drop,
// when another request already holds it.
func (s *Slot) Acquire(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		s.dropped++
		return false
	}

	s.id, s.busy = id, true

	return true
}

// Release frees the slot if it holds id.
func (s *Slot) Release(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.busy || s.id != id {
		return false
	}

	s.id, s.busy = 0, false

	return true
}

// Current returns the held id.
func (s *Slot) Current() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.id, s.busy
}

// Reset empties the slot without counting a drop.
func (s *Slot) Reset() {
	s.mu.Lock()
	s.id, s.busy = 0, false
	s.mu.Unlock()
}

// Dropped returns how many Acquire calls were refused.
func (s *Slot) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dropped
}
