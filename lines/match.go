package lines

import (
	"math"
	"slices"
	"sort"
	"strconv"
)

// Matcher defaults.
const (
	DefaultToleranceNm = 2.5
	DefaultMaxMatches  = 12

	prominenceTieBreak = 0.002
)

// Observation is a scored peak with a resolved wavelength.
type Observation struct {
	Index      int
	Nm         float64
	Value      float64
	Prominence float64
}

// MatchOptions tunes [MatchPeaks]. Zero values select the defaults.
type MatchOptions struct {
	ToleranceNm float64
	MaxMatches  int
	// PreferredElements, when non-empty, restricts candidates to lines of
	// these elements.
	PreferredElements []string
	// ElementBoost adds a per-element bonus to the raw score.
	ElementBoost map[string]float64
}

// Match pairs an observed peak with a reference line.
type Match struct {
	Species    string  `json:"species"`
	SpeciesKey string  `json:"speciesKey"`
	Element    string  `json:"element,omitempty"`
	RefNm      float64 `json:"refNm"`
	ObsNm      float64 `json:"obsNm"`
	DeltaNm    float64 `json:"deltaNm"` // ObsNm - RefNm
	PeakIndex  int     `json:"peakIndex"`
	PeakValue  float64 `json:"peakValue"`
	Prominence float64 `json:"prominence"`
	RawScore   float64 `json:"rawScore"`
}

func (m Match) sortScore() float64 {
	return m.RawScore + m.Prominence*prominenceTieBreak
}

// MatchPeaks pairs every observation with its nearest reference line within
// ToleranceNm and returns at most MaxMatches matches by descending score.
// Observations with a non-finite wavelength are skipped. A reference line
// claimed by several observations is reported once, for the best-scoring
// observation.
func MatchPeaks(obs []Observation, ref []Line, opts MatchOptions) []Match {
	tol := opts.ToleranceNm
	if tol <= 0 || math.IsNaN(tol) {
		tol = DefaultToleranceNm
	}

	maxMatches := opts.MaxMatches
	if maxMatches <= 0 {
		maxMatches = DefaultMaxMatches
	}

	candidates := ref
	if len(opts.PreferredElements) > 0 {
		candidates = make([]Line, 0, len(ref))
		for _, l := range ref {
			if slices.Contains(opts.PreferredElements, l.Element) {
				candidates = append(candidates, l)
			}
		}
	}

	var out []Match

	for _, o := range obs {
		if math.IsNaN(o.Nm) || math.IsInf(o.Nm, 0) {
			continue
		}

		best, bestDist := -1, math.Inf(1)
		for i, l := range candidates {
			d := math.Abs(l.Nm - o.Nm)
			if d <= tol && d < bestDist {
				best, bestDist = i, d
			}
		}

		if best < 0 {
			continue
		}

		l := candidates[best]
		out = append(out, Match{
			Species:    l.Species,
			SpeciesKey: l.SpeciesKey,
			Element:    l.Element,
			RefNm:      l.Nm,
			ObsNm:      o.Nm,
			DeltaNm:    o.Nm - l.Nm,
			PeakIndex:  o.Index,
			PeakValue:  o.Value,
			Prominence: o.Prominence,
			RawScore:   max(0, 1-bestDist/tol) + opts.ElementBoost[l.Element],
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].sortScore() > out[j].sortScore() })

	seen := make(map[string]struct{}, len(out))
	kept := out[:0]

	for _, m := range out {
		key := m.SpeciesKey + "|" + strconv.FormatFloat(m.RefNm, 'f', 3, 64)
		if _, dup := seen[key]; dup {
			continue
		}

		seen[key] = struct{}{}
		kept = append(kept, m)

		if len(kept) == maxMatches {
			break
		}
	}

	return kept
}
