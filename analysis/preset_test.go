package analysis

import (
	"slices"
	"testing"
)

func TestBuiltinPresets(t *testing.T) {
	p := BuiltinPresets()

	want := []string{PresetFast, PresetGeneral, PresetGeneralTight, PresetGeneralWide, PresetLampHg}
	if !slices.Equal(p.IDs(), want) {
		t.Fatalf("ids=%v want=%v", p.IDs(), want)
	}

	g := p.Resolve(PresetGeneral)
	if g.ToleranceNm != 2.5 || g.MaxMatches != 12 {
		t.Fatalf("general=%+v", g)
	}
}

func TestResolveFallsBackAndCopies(t *testing.T) {
	p := BuiltinPresets()

	if got := p.Resolve(""); got.ID != PresetGeneral {
		t.Fatalf("empty id resolved to %q", got.ID)
	}

	lamp := p.Resolve(PresetLampHg)
	lamp.ElementBoost["Hg"] = 9
	lamp.PreferredElements[0] = "Xx"

	again := p.Resolve(PresetLampHg)
	if again.ElementBoost["Hg"] != 0.15 || again.PreferredElements[0] != "Hg" {
		t.Fatalf("Resolve leaked internal storage: %+v", again)
	}

	var empty Presets
	if got := empty.Resolve("x"); got.ID != PresetGeneral {
		t.Fatalf("nil registry resolved to %q", got.ID)
	}
}

func TestPresetsMerge(t *testing.T) {
	base := BuiltinPresets()
	merged := base.Merge(
		Preset{ID: "solar", ToleranceNm: 0.8},
		Preset{ID: PresetFast, MaxMatches: 3},
		Preset{},
	)

	solar := merged.Resolve("solar")
	if solar.ToleranceNm != 0.8 || solar.MaxMatches != 12 {
		t.Fatalf("solar=%+v", solar)
	}

	fast := merged.Resolve(PresetFast)
	if fast.ToleranceNm != 3.0 || fast.MaxMatches != 3 {
		t.Fatalf("fast=%+v", fast)
	}

	if base.Has("solar") || !merged.Has("solar") {
		t.Fatal("Merge must not modify the receiver")
	}
}
