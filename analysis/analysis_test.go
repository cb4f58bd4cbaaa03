package analysis

import (
	"errors"
	"testing"

	"github.com/cwbudde/algo-spectra/frame"
	"github.com/cwbudde/algo-spectra/internal/testutil"
	"github.com/cwbudde/algo-spectra/lines"
	"github.com/cwbudde/algo-spectra/qc"
)

const (
	axisStart = 380.0
	axisStep  = 0.25
	axisLen   = 1024
)

// hgLampFrame renders four mercury lines on a linear 380-636 nm axis.
func hgLampFrame(extra ...testutil.Line) frame.Frame {
	ls := append([]testutil.Line{
		{Center: 99, Amplitude: 200, Sigma: 2},  // 404.75 nm
		{Center: 223, Amplitude: 150, Sigma: 2}, // 435.75 nm
		{Center: 664, Amplitude: 180, Sigma: 2}, // 546.00 nm
		{Center: 788, Amplitude: 100, Sigma: 2}, // 577.00 nm
	}, extra...)

	return frame.Frame{
		Px:         testutil.LinearAxis(axisLen, 0, 1),
		Nm:         testutil.LinearAxis(axisLen, axisStart, axisStep),
		I:          testutil.EmissionSpectrum(axisLen, 10, ls...),
		Calibrated: true,
	}
}

func builtinState() *State {
	st := NewState()
	st.Library = lines.BuiltinLibrary()
	st.LibrariesLoaded = true

	return st
}

func TestAnalyzeMercuryLamp(t *testing.T) {
	res, err := Analyze(hgLampFrame(), builtinState(), Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(res.Peaks) != 4 {
		t.Fatalf("got %d peaks want=4", len(res.Peaks))
	}

	if len(res.TopHits) != 4 {
		t.Fatalf("got %d hits want=4: %+v", len(res.TopHits), res.TopHits)
	}

	best := 0.0
	for _, h := range res.TopHits {
		if h.Element != "Hg" {
			t.Fatalf("unexpected element: %+v", h)
		}

		if h.Confidence <= 0 || h.Confidence > 1 {
			t.Fatalf("confidence out of range: %+v", h)
		}

		best = max(best, h.Confidence)
	}

	testutil.RequireNear(t, "confidence", res.Confidence, best, 0)

	if res.OffsetNm == nil {
		t.Fatal("OffsetNm is nil")
	}

	testutil.RequireNear(t, "offset", *res.OffsetNm, 546.0-546.074, 1e-9)

	if !res.Calibrated || res.QCFlags == nil || len(res.QCFlags) != 0 || res.Preset != PresetGeneral {
		t.Fatalf("unexpected result metadata: %+v", res)
	}
}

func TestAnalyzeUncalibrated(t *testing.T) {
	f := hgLampFrame()
	f.Calibrated = false
	f.Nm = nil

	res, err := Analyze(f, builtinState(), Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(res.TopHits) != 0 || res.OffsetNm != nil || res.Confidence != 0 {
		t.Fatalf("uncalibrated frame produced hits: %+v", res)
	}

	if !qc.HasFlag(res.QCFlags, qc.FlagUncalibrated) {
		t.Fatalf("flags=%v", res.QCFlags)
	}

	if len(res.Peaks) != 4 {
		t.Fatalf("peaks should still be reported, got %d", len(res.Peaks))
	}
}

func TestAnalyzeFrameTooSmall(t *testing.T) {
	f := frame.Frame{I: []float64{0, 1, 5, 1, 0}, Nm: []float64{500, 501, 502, 503, 504}, Calibrated: true}

	res, err := Analyze(f, builtinState(), Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if !qc.HasFlag(res.QCFlags, qc.FlagFrameTooSmall) {
		t.Fatalf("flags=%v", res.QCFlags)
	}
}

func TestAnalyzeUsesProcessedIntensity(t *testing.T) {
	f := hgLampFrame()
	processed := f.I
	f.I = testutil.DC(10, axisLen)
	f = f.WithProcessed(processed)

	res, err := Analyze(f, builtinState(), Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(res.Peaks) != 4 {
		t.Fatalf("processed intensity ignored: %d peaks", len(res.Peaks))
	}
}

func TestAnalyzePresets(t *testing.T) {
	// H-beta at px 425 (486.25 nm) is matched by the general preset only.
	f := hgLampFrame(testutil.Line{Center: 425, Amplitude: 120, Sigma: 2})

	tests := []struct {
		preset string
		want   string
		hits   int
	}{
		{preset: PresetGeneral, want: PresetGeneral, hits: 5},
		{preset: "no-such-preset", want: PresetGeneral, hits: 5},
		{preset: PresetLampHg, want: PresetLampHg, hits: 4},
		{preset: PresetFast, want: PresetFast, hits: 5},
	}

	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			st := builtinState()
			st.PresetID = tt.preset

			res, err := Analyze(f, st, Options{})
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}

			if res.Preset != tt.want || len(res.TopHits) != tt.hits {
				t.Fatalf("preset=%s hits=%d want %s/%d", res.Preset, len(res.TopHits), tt.want, tt.hits)
			}
		})
	}
}

func TestAnalyzeLampPresetBoostsMercury(t *testing.T) {
	st := builtinState()
	st.PresetID = PresetLampHg

	res, err := Analyze(hgLampFrame(), st, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	for _, h := range res.TopHits {
		if h.RawScore <= 1 {
			t.Fatalf("boost missing: %+v", h)
		}
	}
}

func TestAnalyzeWeakPeaks(t *testing.T) {
	f := hgLampFrame(testutil.Line{Center: 500, Amplitude: 5, Sigma: 2})

	normal, err := Analyze(f, builtinState(), Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	weak, err := Analyze(f, builtinState(), Options{IncludeWeakPeaks: true})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(normal.Peaks) != 4 || len(weak.Peaks) != 5 {
		t.Fatalf("normal=%d weak=%d want 4/5", len(normal.Peaks), len(weak.Peaks))
	}
}

func TestAnalyzeWithoutLibrary(t *testing.T) {
	res, err := Analyze(hgLampFrame(), NewState(), Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(res.TopHits) != 0 || res.OffsetNm != nil {
		t.Fatalf("hits without library: %+v", res.TopHits)
	}
}

func TestAnalyzeInconsistentAxis(t *testing.T) {
	f := hgLampFrame()
	f.Nm = f.Nm[:10]

	if _, err := Analyze(f, builtinState(), Options{}); !errors.Is(err, ErrPipeline) {
		t.Fatalf("err=%v want ErrPipeline", err)
	}
}

func TestLowerMedianDelta(t *testing.T) {
	mk := func(ds ...float64) []lines.Match {
		out := make([]lines.Match, len(ds))
		for i, d := range ds {
			out[i].DeltaNm = d
		}

		return out
	}

	if got := lowerMedianDelta(nil); got != nil {
		t.Fatalf("got %v want nil", *got)
	}

	if got := lowerMedianDelta(mk(0.3, -0.1, 0.2)); *got != 0.2 {
		t.Fatalf("odd median=%v", *got)
	}

	if got := lowerMedianDelta(mk(0.4, -0.2, 0.1, 0.3)); *got != 0.1 {
		t.Fatalf("even median=%v want lower middle", *got)
	}
}

func BenchmarkAnalyze(b *testing.B) {
	f := hgLampFrame()
	st := builtinState()

	b.ReportAllocs()

	for b.Loop() {
		_, _ = Analyze(f, st, Options{})
	}
}
