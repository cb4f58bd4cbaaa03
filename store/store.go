// Package store keeps the shared application state as a single JSON document
// addressed by dot paths such as "worker.status" or "analysis.topHits".
//
// Writes go through [Store.Update], which replaces the value at a path only
// when it differs structurally from the current one and then announces the
// change on the event bus as [EventChanged]. Readers get immutable copies.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/cwbudde/algo-spectra/bus"
)

// EventChanged is emitted after every effective state change with a Change
// payload.
const EventChanged = "state:changed"

// ErrInvalidPath reports an empty or malformed state path.
var ErrInvalidPath = errors.New("store: invalid path")

// Change describes one state transition.
type Change struct {
	// Path is the updated dot path, or "" for a Merge.
	Path string
	// Patch maps each written path or top-level key to its new value.
	Patch map[string]any
	// Meta is caller-supplied context, such as the producer name.
	Meta any
	// State is a snapshot of the whole document after the change.
	State []byte
}

// Decode unmarshals the post-change document into v.
func (c Change) Decode(v any) error {
	return json.Unmarshal(c.State, v)
}

// Store is a path-addressable JSON state tree. It is safe for concurrent
// use; events are emitted outside the lock.
type Store struct {
	mu  sync.RWMutex
	doc []byte
	bus *bus.Bus
}

// New creates a Store seeded from initial, which must marshal to a JSON
// object. A nil bus disables change events.
func New(b *bus.Bus, initial any) (*Store, error) {
	doc := []byte("{}")

	if initial != nil {
		raw, err := json.Marshal(initial)
		if err != nil {
			return nil, fmt.Errorf("store: encode initial state: %w", err)
		}

		if !gjson.ParseBytes(raw).IsObject() {
			return nil, fmt.Errorf("store: initial state must be an object, got %s", gjson.ParseBytes(raw).Type)
		}

		doc = raw
	}

	return &Store{doc: doc, bus: b}, nil
}

func splitPath(path string) ([]string, error) {
	var parts []string

	for _, p := range strings.Split(path, ".") {
		if p == "" {
			continue
		}

		if strings.ContainsAny(p, `*?#|@\:!=<>%"`) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}

		parts = append(parts, p)
	}

	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	return parts, nil
}

// Update sets the value at path, creating intermediate objects and
// replacing non-object intermediates. It reports whether the state changed;
// a value structurally equal to the current one is a silent no-op.
func (s *Store) Update(path string, value any, meta any) (bool, error) {
	parts, err := splitPath(path)
	if err != nil {
		return false, err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("store: encode %s: %w", path, err)
	}

	clean := strings.Join(parts, ".")

	s.mu.Lock()

	if cur := gjson.GetBytes(s.doc, clean); cur.Exists() && sameJSON([]byte(cur.Raw), raw) {
		s.mu.Unlock()
		return false, nil
	}

	next := bytes.Clone(s.doc)

	for i := 1; i < len(parts); i++ {
		prefix := strings.Join(parts[:i], ".")
		if r := gjson.GetBytes(next, prefix); r.Exists() && !r.IsObject() {
			if next, err = sjson.SetRawBytes(next, prefix, []byte("{}")); err != nil {
				s.mu.Unlock()
				return false, fmt.Errorf("store: reset %s: %w", prefix, err)
			}
		}
	}

	next, err = sjson.SetRawBytes(next, clean, raw)
	if err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("store: set %s: %w", path, err)
	}

	s.doc = next
	snapshot := bytes.Clone(next)
	s.mu.Unlock()

	s.emit(Change{Path: clean, Patch: map[string]any{clean: value}, Meta: meta, State: snapshot})

	return true, nil
}

// Merge shallowly replaces top-level keys with the entries of patch and
// always emits EventChanged, even when nothing differs.
func (s *Store) Merge(patch map[string]any, meta any) error {
	s.mu.Lock()

	next := bytes.Clone(s.doc)

	for key, value := range patch {
		if _, err := splitPath(key); err != nil || strings.Contains(key, ".") {
			s.mu.Unlock()
			return fmt.Errorf("%w: top-level key %q", ErrInvalidPath, key)
		}

		raw, err := json.Marshal(value)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("store: encode %s: %w", key, err)
		}

		if next, err = sjson.SetRawBytes(next, key, raw); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("store: set %s: %w", key, err)
		}
	}

	s.doc = next
	snapshot := bytes.Clone(next)
	s.mu.Unlock()

	s.emit(Change{Patch: patch, Meta: meta, State: snapshot})

	return nil
}

func (s *Store) emit(c Change) {
	if s.bus != nil {
		s.bus.Emit(EventChanged, c)
	}
}

// Get returns the value at path using gjson path syntax.
func (s *Store) Get(path string) gjson.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return gjson.GetBytes(s.doc, path)
}

// Decode unmarshals the value at path into v. A missing path leaves v
// untouched and returns nil.
func (s *Store) Decode(path string, v any) error {
	r := s.Get(path)
	if !r.Exists() {
		return nil
	}

	if err := json.Unmarshal([]byte(r.Raw), v); err != nil {
		return fmt.Errorf("store: decode %s: %w", path, err)
	}

	return nil
}

// Snapshot returns a copy of the whole document.
func (s *Store) Snapshot() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return bytes.Clone(s.doc)
}

// DecodeAll unmarshals the whole document into v.
func (s *Store) DecodeAll(v any) error {
	return json.Unmarshal(s.Snapshot(), v)
}

// sameJSON compares two JSON texts structurally, ignoring whitespace and key
// order.
func sameJSON(a, b []byte) bool {
	if bytes.Equal(a, b) {
		return true
	}

	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return false
	}

	return reflect.DeepEqual(va, vb)
}
