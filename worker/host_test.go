package worker

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/cwbudde/algo-spectra/analysis"
	"github.com/cwbudde/algo-spectra/frame"
	"github.com/cwbudde/algo-spectra/lines"
)

// hgFrame has one Gaussian peak at 546 nm.
func hgFrame() frame.Frame {
	n := 64
	f := frame.Frame{
		ID:         "test",
		Px:         make([]float64, n),
		Nm:         make([]float64, n),
		I:          make([]float64, n),
		Calibrated: true,
	}

	for i := range n {
		f.Px[i] = float64(i)
		f.Nm[i] = 530 + 0.5*float64(i)
		d := float64(i - 32)
		f.I[i] = 10 + 200*math.Exp(-d*d/8)
	}

	return f
}

func roundTrip(t *testing.T, h *Host, k Kind, id uint64, payload any) Message {
	t.Helper()

	req, err := NewMessage(k, id, payload)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	resp := h.Handle(context.Background(), req)
	if resp.RequestID != id {
		t.Fatalf("requestId=%d want=%d", resp.RequestID, id)
	}

	return resp
}

func TestHostPing(t *testing.T) {
	h := NewHost()

	resp := roundTrip(t, h, KindPing, 1, Ping{TS: 42})
	if resp.Type != KindPong {
		t.Fatalf("type=%s", resp.Type)
	}

	var p Ping
	if err := resp.Decode(&p); err != nil || p.TS != 42 {
		t.Fatalf("pong=%+v err=%v", p, err)
	}
}

func TestHostInitLibraries(t *testing.T) {
	h := NewHost()

	resp := roundTrip(t, h, KindInitLibraries, 1, InitLibraries{})
	if resp.Type != KindInitLibrariesResult {
		t.Fatalf("type=%s", resp.Type)
	}

	var p InitLibrariesResult
	if err := resp.Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !p.OK || p.Count != len(lines.Builtin()) || !h.State().LibrariesLoaded {
		t.Fatalf("result=%+v loaded=%v", p, h.State().LibrariesLoaded)
	}

	inline := &Manifest{Lines: []lines.Line{{Species: "Hg I", Nm: 546.074}}}
	resp = roundTrip(t, h, KindInitLibraries, 2, InitLibraries{Manifest: inline})

	if err := resp.Decode(&p); err != nil || p.Count != 1 {
		t.Fatalf("inline result=%+v err=%v", p, err)
	}
}

func TestHostInitLibrariesMissingFile(t *testing.T) {
	h := NewHost()

	resp := roundTrip(t, h, KindInitLibraries, 5, InitLibraries{Manifest: &Manifest{Path: "does-not-exist.yaml"}})
	if resp.Type != KindError {
		t.Fatalf("type=%s want ERROR", resp.Type)
	}

	if h.State().LibrariesLoaded {
		t.Fatal("failed load must not mark libraries loaded")
	}
}

func TestHostSetPreset(t *testing.T) {
	h := NewHost()

	var p SetPresetResult

	resp := roundTrip(t, h, KindSetPreset, 1, SetPreset{Preset: analysis.PresetLampHg})
	if err := resp.Decode(&p); err != nil || !p.Known || p.Preset != analysis.PresetLampHg {
		t.Fatalf("result=%+v err=%v", p, err)
	}

	resp = roundTrip(t, h, KindSetPreset, 2, SetPreset{Preset: "nope"})
	if err := resp.Decode(&p); err != nil || p.Known || p.Preset != analysis.PresetGeneral {
		t.Fatalf("fallback result=%+v err=%v", p, err)
	}

	if h.State().PresetID != analysis.PresetGeneral {
		t.Fatalf("preset=%q", h.State().PresetID)
	}
}

func TestHostQueryLibrary(t *testing.T) {
	h := NewHost(WithLibrary(lines.BuiltinLibrary()))

	resp := roundTrip(t, h, KindQueryLibrary, 3, QueryLibrary{MinNm: 580, MaxNm: 600, Query: "na"})
	if resp.Type != KindQueryLibraryResult {
		t.Fatalf("type=%s", resp.Type)
	}

	var p QueryLibraryResult
	if err := resp.Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if p.Count != 2 || len(p.Hits) != 2 || p.MinNm != 580 || p.MaxNm != 600 {
		t.Fatalf("result=%+v", p)
	}

	for _, l := range p.Hits {
		if l.Species != "Na I" {
			t.Fatalf("unexpected hit %+v", l)
		}
	}
}

func TestHostQueryWithoutLibrary(t *testing.T) {
	h := NewHost()

	var p QueryLibraryResult

	resp := roundTrip(t, h, KindQueryLibrary, 1, QueryLibrary{MinNm: 400, MaxNm: 700})
	if err := resp.Decode(&p); err != nil || p.Count != 0 || p.Hits == nil {
		t.Fatalf("result=%+v err=%v", p, err)
	}
}

func TestHostAnalyzeFrame(t *testing.T) {
	h := NewHost(WithLibrary(lines.BuiltinLibrary()))

	resp := roundTrip(t, h, KindAnalyzeFrame, 9, AnalyzeFrame{Frame: hgFrame()})
	if resp.Type != KindAnalyzeResult {
		t.Fatalf("type=%s", resp.Type)
	}

	var res analysis.Result
	if err := resp.Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !res.Calibrated || len(res.TopHits) == 0 || res.TopHits[0].Species != "Hg I" {
		t.Fatalf("result=%+v", res)
	}

	if res.OffsetNm == nil || math.Abs(*res.OffsetNm+0.074) > 1e-9 {
		t.Fatalf("offset=%v", res.OffsetNm)
	}
}

func TestHostAnalyzePipelineError(t *testing.T) {
	h := NewHost()

	f := hgFrame()
	f.Nm = f.Nm[:10]

	resp := roundTrip(t, h, KindAnalyzeFrame, 4, AnalyzeFrame{Frame: f})
	if resp.Type != KindError {
		t.Fatalf("type=%s want ERROR", resp.Type)
	}

	var p ErrorPayload
	if err := resp.Decode(&p); err != nil || !strings.Contains(p.Message, "pipeline") {
		t.Fatalf("error=%+v err=%v", p, err)
	}
}

func TestHostUnknownType(t *testing.T) {
	h := NewHost()

	for _, k := range []Kind{KindUnknown, KindPong, KindError} {
		resp := h.Handle(context.Background(), Message{Type: k, RequestID: 11})
		if resp.Type != KindError || resp.RequestID != 11 {
			t.Fatalf("%s: resp=%+v", k, resp)
		}

		var p ErrorPayload
		if err := resp.Decode(&p); err != nil || !strings.Contains(p.Message, "unknown message type") {
			t.Fatalf("%s: error=%+v err=%v", k, p, err)
		}
	}
}

func TestHostHandleBytesGarbage(t *testing.T) {
	h := NewHost()

	data, err := h.HandleBytes(context.Background(), []byte{0xc1})
	if err != nil {
		t.Fatalf("HandleBytes: %v", err)
	}

	msg, err := Decode(data)
	if err != nil || msg.Type != KindError || msg.RequestID != 0 {
		t.Fatalf("msg=%+v err=%v", msg, err)
	}
}
