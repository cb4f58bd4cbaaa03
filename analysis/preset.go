package analysis

import (
	"maps"
	"slices"
	"sort"
)

// Built-in preset ids.
const (
	PresetGeneral      = "general"
	PresetGeneralTight = "general-tight"
	PresetGeneralWide  = "general-wide"
	PresetFast         = "fast"
	PresetLampHg       = "lamp-hg"
)

// Preset is a named bundle of matching parameters.
type Preset struct {
	ID                string             `json:"id" yaml:"id" toml:"id"`
	ToleranceNm       float64            `json:"toleranceNm" yaml:"toleranceNm" toml:"toleranceNm"`
	MaxMatches        int                `json:"maxMatches" yaml:"maxMatches" toml:"maxMatches"`
	PreferredElements []string           `json:"preferredElements,omitempty" yaml:"preferredElements,omitempty" toml:"preferredElements,omitempty"`
	ElementBoost      map[string]float64 `json:"elementBoost,omitempty" yaml:"elementBoost,omitempty" toml:"elementBoost,omitempty"`
}

func (p Preset) clone() Preset {
	p.PreferredElements = slices.Clone(p.PreferredElements)
	p.ElementBoost = maps.Clone(p.ElementBoost)

	return p
}

// Presets maps preset ids to their parameters.
type Presets map[string]Preset

// BuiltinPresets returns a fresh copy of the built-in presets.
func BuiltinPresets() Presets {
	return Presets{
		PresetGeneral:      {ID: PresetGeneral, ToleranceNm: 2.5, MaxMatches: 12},
		PresetGeneralTight: {ID: PresetGeneralTight, ToleranceNm: 1.2, MaxMatches: 10},
		PresetGeneralWide:  {ID: PresetGeneralWide, ToleranceNm: 4.0, MaxMatches: 16},
		PresetFast:         {ID: PresetFast, ToleranceNm: 3.0, MaxMatches: 6},
		PresetLampHg: {
			ID:                PresetLampHg,
			ToleranceNm:       2.0,
			MaxMatches:        12,
			PreferredElements: []string{"Hg", "Ar", "Ne", "Na", "He"},
			ElementBoost:      map[string]float64{"Hg": 0.15, "Ar": 0.08, "Ne": 0.08, "Na": 0.05, "He": 0.05},
		},
	}
}

// Resolve returns the preset for id, falling back to PresetGeneral for
// unknown or empty ids. The returned preset is a copy.
func (p Presets) Resolve(id string) Preset {
	if preset, ok := p[id]; ok {
		return preset.clone()
	}

	if preset, ok := p[PresetGeneral]; ok {
		return preset.clone()
	}

	return BuiltinPresets()[PresetGeneral]
}

// Has reports whether id names a preset.
func (p Presets) Has(id string) bool {
	_, ok := p[id]
	return ok
}

// IDs returns the preset ids in sorted order.
func (p Presets) IDs() []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Merge returns a copy of p with extra added or replacing existing entries.
// Entries with a non-positive tolerance or match cap inherit the value of the
// preset they replace, or of PresetGeneral.
func (p Presets) Merge(extra ...Preset) Presets {
	out := make(Presets, len(p)+len(extra))
	for id, preset := range p {
		out[id] = preset.clone()
	}

	for _, e := range extra {
		if e.ID == "" {
			continue
		}

		base := out.Resolve(e.ID)
		if e.ToleranceNm <= 0 {
			e.ToleranceNm = base.ToleranceNm
		}

		if e.MaxMatches <= 0 {
			e.MaxMatches = base.MaxMatches
		}

		out[e.ID] = e.clone()
	}

	return out
}
