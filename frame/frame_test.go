package frame

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/algo-spectra/calib"
	"github.com/cwbudde/algo-spectra/internal/testutil"
)

func linearModel(t *testing.T) calib.Model {
	t.Helper()

	m, err := calib.Fit([]calib.Point{{Px: 0, Nm: 400}, {Px: 100, Nm: 500}})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	return m
}

func TestAdaptUncalibrated(t *testing.T) {
	raw := Raw{I: []float64{1, 2, 3}}

	f, err := Adapt(raw, calib.Model{})
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}

	if f.Calibrated || f.Nm != nil {
		t.Fatalf("frame should be uncalibrated: %+v", f)
	}

	testutil.RequireTraceNear(t, "px", f.Px, []float64{0, 1, 2}, 0)

	if f.Source != OriginUnknown || f.Timestamp.IsZero() || f.ID == "" {
		t.Fatalf("defaults not applied: %+v", f)
	}

	raw.I[0] = 99
	if f.I[0] != 1 {
		t.Fatal("Adapt must copy input slices")
	}
}

func TestAdaptCalibrated(t *testing.T) {
	ts := time.UnixMilli(1700000000000)

	f, err := Adapt(Raw{I: []float64{5, 6, 7}, Timestamp: ts, Source: OriginCamera}, linearModel(t))
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}

	if !f.Calibrated {
		t.Fatal("expected calibrated frame")
	}

	testutil.RequireTraceNear(t, "nm", f.Nm, []float64{400, 401, 402}, 1e-9)

	if nm, ok := f.WavelengthAt(2); !ok || math.Abs(nm-402) > 1e-9 {
		t.Fatalf("WavelengthAt(2)=%v,%v", nm, ok)
	}

	if _, ok := f.WavelengthAt(3); ok {
		t.Fatal("WavelengthAt out of range should fail")
	}

	if !f.Timestamp.Equal(ts) || f.Source != OriginCamera {
		t.Fatalf("metadata lost: %+v", f)
	}
}

func TestAdaptKeepsSuppliedAxis(t *testing.T) {
	f, err := Adapt(Raw{I: []float64{1, 2}, Px: []float64{10, 11}, Nm: []float64{600, 601}}, linearModel(t))
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}

	testutil.RequireTraceNear(t, "nm", f.Nm, []float64{600, 601}, 0)
	testutil.RequireTraceNear(t, "px", f.Px, []float64{10, 11}, 0)
}

func TestAdaptEmpty(t *testing.T) {
	if _, err := Adapt(Raw{}, calib.Model{}); !errors.Is(err, ErrNoIntensity) {
		t.Fatalf("err=%v want ErrNoIntensity", err)
	}
}

func TestIntensityPrefersProcessed(t *testing.T) {
	f := Frame{I: []float64{1, 2}}
	if got := f.Intensity(); got[0] != 1 {
		t.Fatalf("Intensity=%v", got)
	}

	g := f.WithProcessed([]float64{7, 8})
	if got := g.Intensity(); got[0] != 7 {
		t.Fatalf("Intensity=%v", got)
	}

	if f.ProcessedI != nil {
		t.Fatal("WithProcessed modified receiver")
	}
}

func TestJSONLSource(t *testing.T) {
	in := strings.Join([]string{
		`{"I":[1,2,3],"timestamp":1700000000000,"source":"camera"}`,
		``,
		`{"I":[4,5,6],"timestamp":"2024-01-02T03:04:05Z"}`,
		`{"I":[7]}`,
	}, "\n")

	src := NewJSONLSource(strings.NewReader(in))
	ctx := context.Background()

	first, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	if first.Source != OriginCamera || first.Timestamp.UnixMilli() != 1700000000000 || len(first.I) != 3 {
		t.Fatalf("first=%+v", first)
	}

	second, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	if second.Timestamp.Year() != 2024 || second.I[0] != 4 {
		t.Fatalf("second=%+v", second)
	}

	third, err := src.Next(ctx)
	if err != nil || !third.Timestamp.IsZero() {
		t.Fatalf("third=%+v err=%v", third, err)
	}

	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("err=%v want EOF", err)
	}
}

func TestJSONLSourceErrors(t *testing.T) {
	for _, in := range []string{`{"I":[1`, `{"I":[1],"timestamp":true}`, `{"I":[1],"timestamp":"yesterday"}`} {
		if _, err := NewJSONLSource(strings.NewReader(in)).Next(context.Background()); err == nil {
			t.Fatalf("expected error for %s", in)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewJSONLSource(strings.NewReader(`{"I":[1]}`)).Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestSliceSource(t *testing.T) {
	src := NewSliceSource(Raw{I: []float64{1}}, Raw{I: []float64{2}})
	ctx := context.Background()

	for want := 1.0; want <= 2; want++ {
		r, err := src.Next(ctx)
		if err != nil || r.I[0] != want {
			t.Fatalf("r=%+v err=%v", r, err)
		}
	}

	if _, err := src.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("err=%v want EOF", err)
	}
}
