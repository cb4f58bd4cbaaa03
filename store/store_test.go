package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cwbudde/algo-spectra/bus"
)

type workerState struct {
	Status      string `json:"status"`
	DroppedJobs int    `json:"droppedJobs"`
}

type testState struct {
	AppMode string      `json:"appMode"`
	Worker  workerState `json:"worker"`
}

func newTestStore(t *testing.T, initial any) (*Store, *[]Change) {
	t.Helper()

	b := bus.New()
	changes := &[]Change{}
	b.On(EventChanged, func(p any) { *changes = append(*changes, p.(Change)) })

	s, err := New(b, initial)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return s, changes
}

func TestUpdateEmitsOnChange(t *testing.T) {
	s, changes := newTestStore(t, testState{AppMode: "CORE", Worker: workerState{Status: "idle"}})

	changed, err := s.Update("worker.status", "ready", "worker")
	if err != nil || !changed {
		t.Fatalf("Update changed=%v err=%v", changed, err)
	}

	if got := s.Get("worker.status").String(); got != "ready" {
		t.Fatalf("status=%q", got)
	}

	if len(*changes) != 1 {
		t.Fatalf("got %d events want=1", len(*changes))
	}

	c := (*changes)[0]
	if c.Path != "worker.status" || c.Meta != "worker" || c.Patch["worker.status"] != "ready" {
		t.Fatalf("unexpected change: %+v", c)
	}

	var st testState
	if err := c.Decode(&st); err != nil || st.Worker.Status != "ready" || st.AppMode != "CORE" {
		t.Fatalf("decoded=%+v err=%v", st, err)
	}
}

func TestUpdateIdenticalIsNoop(t *testing.T) {
	s, changes := newTestStore(t, testState{Worker: workerState{Status: "idle"}})

	changed, err := s.Update("worker.status", "idle", nil)
	if err != nil || changed {
		t.Fatalf("changed=%v err=%v", changed, err)
	}

	if _, err := s.Update("worker", workerState{Status: "idle"}, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if len(*changes) != 0 {
		t.Fatalf("redundant updates emitted %d events", len(*changes))
	}
}

func TestUpdateStructuralCompareIgnoresKeyOrder(t *testing.T) {
	type pair struct {
		B int `json:"b"`
		A int `json:"a"`
	}

	s, changes := newTestStore(t, struct {
		X pair `json:"x"`
	}{X: pair{B: 2, A: 1}})

	changed, err := s.Update("x", map[string]int{"a": 1, "b": 2}, nil)
	if err != nil || changed || len(*changes) != 0 {
		t.Fatalf("changed=%v err=%v events=%d", changed, err, len(*changes))
	}
}

func TestUpdateCreatesIntermediates(t *testing.T) {
	s, _ := newTestStore(t, map[string]any{"num": 3, "list": []int{1, 2}})

	tests := []struct {
		path string
		want string
	}{
		{path: "a.b.c", want: "5"},
		{path: "num.inner", want: "5"},
		{path: "list.key", want: "5"},
	}

	for _, tt := range tests {
		if _, err := s.Update(tt.path, 5, nil); err != nil {
			t.Fatalf("Update(%s): %v", tt.path, err)
		}

		if got := s.Get(tt.path).Raw; got != tt.want {
			t.Fatalf("Get(%s)=%q want=%q", tt.path, got, tt.want)
		}
	}

	if !s.Get("num").IsObject() {
		t.Fatalf("num not replaced by object: %s", s.Get("num").Raw)
	}
}

func TestUpdateInvalidPath(t *testing.T) {
	s, _ := newTestStore(t, nil)

	for _, p := range []string{"", "..", "a.*", "a|b"} {
		if _, err := s.Update(p, 1, nil); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("Update(%q) err=%v want ErrInvalidPath", p, err)
		}
	}
}

func TestNewRejectsNonObject(t *testing.T) {
	if _, err := New(nil, []int{1}); err == nil {
		t.Fatal("expected error for array state")
	}
}

func TestMergeAlwaysEmits(t *testing.T) {
	s, changes := newTestStore(t, testState{AppMode: "CORE"})

	for range 2 {
		if err := s.Merge(map[string]any{"appMode": "LAB"}, "mode"); err != nil {
			t.Fatalf("Merge: %v", err)
		}
	}

	if len(*changes) != 2 || s.Get("appMode").String() != "LAB" {
		t.Fatalf("events=%d appMode=%s", len(*changes), s.Get("appMode").String())
	}

	if err := s.Merge(map[string]any{"a.b": 1}, nil); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("nested key err=%v", err)
	}
}

func TestDecodeAndSnapshot(t *testing.T) {
	s, _ := newTestStore(t, testState{Worker: workerState{Status: "idle", DroppedJobs: 2}})

	var w workerState
	if err := s.Decode("worker", &w); err != nil || w.DroppedJobs != 2 {
		t.Fatalf("w=%+v err=%v", w, err)
	}

	w = workerState{Status: "keep"}
	if err := s.Decode("missing", &w); err != nil || w.Status != "keep" {
		t.Fatalf("missing path modified target: %+v err=%v", w, err)
	}

	snap := s.Snapshot()
	snap[0] = 'X'

	var all testState
	if err := s.DecodeAll(&all); err != nil || all.Worker.Status != "idle" {
		t.Fatalf("snapshot aliases store: %+v err=%v", all, err)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	s, _ := newTestStore(t, nil)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, err := s.Update(fmt.Sprintf("counters.k%d", i), i, nil); err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}

	wg.Wait()

	for i := range 16 {
		if got := s.Get(fmt.Sprintf("counters.k%d", i)).Int(); got != int64(i) {
			t.Fatalf("k%d=%d", i, got)
		}
	}
}
