// Package testutil holds assertion helpers and synthetic spectra for tests.
package testutil

import (
	"math"
	"testing"
)

// RequireNear fails t if got and want differ by more than eps.
func RequireNear(t *testing.T, name string, got, want, eps float64) {
	t.Helper()

	if d := math.Abs(got - want); d > eps || math.IsNaN(d) {
		t.Fatalf("%s = %v, want %v ± %v", name, got, want, eps)
	}
}

// RequireTraceNear compares two traces sample by sample with an absolute
// tolerance and reports the first offending index.
func RequireTraceNear(t *testing.T, name string, got, want []float64, eps float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("%s: %d samples, want %d", name, len(got), len(want))
	}

	for i := range got {
		if d := math.Abs(got[i] - want[i]); d > eps || math.IsNaN(d) {
			t.Fatalf("%s[%d] = %v, want %v ± %v", name, i, got[i], want[i], eps)
		}
	}
}

// RequireFiniteTrace fails t on the first NaN or infinite sample.
func RequireFiniteTrace(t *testing.T, name string, trace []float64) {
	t.Helper()

	for i, v := range trace {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("%s[%d] = %v, want a finite sample", name, i, v)
		}
	}
}
