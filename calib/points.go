package calib

import (
	"math"
	"slices"
	"strings"
	"sync"
)

const defaultHistory = 10

// Entry is a calibration point as edited by a user: it may carry a label and
// may be temporarily disabled without being removed.
type Entry struct {
	Point
	Label   string `json:"label,omitempty"`
	Enabled bool   `json:"enabled"`
}

// PointSet is an editable list of entries with a bounded undo history.
type PointSet struct {
	mu         sync.Mutex
	entries    []Entry
	history    [][]Entry
	maxHistory int
}

// NewPointSet returns an empty set keeping up to maxHistory undo snapshots
// (10 when maxHistory <= 0).
func NewPointSet(maxHistory int) *PointSet {
	if maxHistory <= 0 {
		maxHistory = defaultHistory
	}

	return &PointSet{maxHistory: maxHistory}
}

func normalize(e Entry) (Entry, bool) {
	if math.IsNaN(e.Px) || math.IsNaN(e.Nm) || math.IsInf(e.Px, 0) || math.IsInf(e.Nm, 0) {
		return Entry{}, false
	}

	e.Label = strings.TrimSpace(e.Label)

	return e, true
}

func (s *PointSet) snapshot() {
	s.history = append(s.history, slices.Clone(s.entries))
	if over := len(s.history) - s.maxHistory; over > 0 {
		s.history = slices.Delete(s.history, 0, over)
	}
}

// Add appends a point. Non-finite points are ignored.
func (s *PointSet) Add(e Entry) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := normalize(e); ok {
		s.snapshot()
		s.entries = append(s.entries, n)
	}

	return slices.Clone(s.entries)
}

// Set replaces all entries, dropping non-finite ones.
func (s *PointSet) Set(entries []Entry) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot()
	s.entries = s.entries[:0:0]

	for _, e := range entries {
		if n, ok := normalize(e); ok {
			s.entries = append(s.entries, n)
		}
	}

	return slices.Clone(s.entries)
}

// SetEnabled toggles the entry at index. Out-of-range indices are ignored.
func (s *PointSet) SetEnabled(index int, enabled bool) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index >= 0 && index < len(s.entries) {
		s.snapshot()
		s.entries[index].Enabled = enabled
	}

	return slices.Clone(s.entries)
}

// RemoveAt deletes the entry at index. Out-of-range indices are ignored.
func (s *PointSet) RemoveAt(index int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index >= 0 && index < len(s.entries) {
		s.snapshot()
		s.entries = slices.Delete(slices.Clone(s.entries), index, index+1)
	}

	return slices.Clone(s.entries)
}

// Clear removes every entry.
func (s *PointSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot()
	s.entries = nil
}

// Undo restores the previous snapshot, if any.
func (s *PointSet) Undo() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.history); n > 0 {
		s.entries = s.history[n-1]
		s.history = s.history[:n-1]
	}

	return slices.Clone(s.entries)
}

// Entries returns a copy of all entries.
func (s *PointSet) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.entries)
}

// EnabledPoints returns the enabled points in insertion order.
func (s *PointSet) EnabledPoints() []Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Point, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Enabled {
			out = append(out, e.Point)
		}
	}

	return out
}
