package analysis

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cwbudde/algo-spectra/frame"
	"github.com/cwbudde/algo-spectra/lines"
	"github.com/cwbudde/algo-spectra/peaks"
	"github.com/cwbudde/algo-spectra/qc"
)

// ErrPipeline wraps any failure inside Analyze.
var ErrPipeline = errors.New("analysis: pipeline failure")

// Scoring parameters for normal and weak-peak mode.
const (
	normalMaxPeaks     = 32
	normalMinRelHeight = 0.05
	weakMaxPeaks       = 64
	weakMinRelHeight   = 0.02
)

// State is the mutable pipeline context owned by the worker host.
type State struct {
	Library         *lines.Library
	PresetID        string
	LibrariesLoaded bool
	Presets         Presets
}

// NewState returns a State with the built-in presets, PresetGeneral active
// and no library loaded.
func NewState() *State {
	return &State{PresetID: PresetGeneral, Presets: BuiltinPresets()}
}

// Preset returns the active preset.
func (s *State) Preset() Preset {
	presets := s.Presets
	if presets == nil {
		presets = BuiltinPresets()
	}

	return presets.Resolve(s.PresetID)
}

// Options are per-call analysis switches.
type Options struct {
	IncludeWeakPeaks bool `json:"includeWeakPeaks,omitempty"`
	QualityChecks    bool `json:"qualityChecks,omitempty"`
	// ProminenceWindowPx overrides the detector window when positive.
	ProminenceWindowPx int `json:"prominenceWindowPx,omitempty"`
}

// Hit is a match with its confidence.
type Hit struct {
	lines.Match
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of one Analyze call.
type Result struct {
	TopHits    []Hit        `json:"topHits"`
	Peaks      []peaks.Peak `json:"peaks"`
	OffsetNm   *float64     `json:"offsetNm"`
	QCFlags    []string     `json:"qcFlags"`
	Confidence float64      `json:"confidence"`
	Calibrated bool         `json:"calibrated"`
	Preset     string       `json:"preset"`
}

// Analyze identifies lines in f.
//
// It uses f.ProcessedI when present, otherwise f.I. Peaks are matched only
// when the frame is calibrated; otherwise FlagUncalibrated is added and the
// result carries no hits. The overall confidence is the best hit confidence.
func Analyze(f frame.Frame, st *State, opts Options) (Result, error) {
	if st == nil {
		st = NewState()
	}

	intensity := f.Intensity()
	if f.Calibrated && len(f.Nm) != len(intensity) {
		return Result{}, fmt.Errorf("%w: wavelength axis has %d samples, intensity %d",
			ErrPipeline, len(f.Nm), len(intensity))
	}

	preset := st.Preset()

	report := qc.Evaluate(intensity, qc.WithSignalChecks(opts.QualityChecks))
	flags := append([]string(nil), report.Flags...)

	scoreOpts := peaks.ScoreOptions{MaxPeaks: normalMaxPeaks, MinRelHeight: normalMinRelHeight}
	if opts.IncludeWeakPeaks {
		scoreOpts = peaks.ScoreOptions{MaxPeaks: weakMaxPeaks, MinRelHeight: weakMinRelHeight}
	}

	kept := peaks.Score(peaks.Detect(intensity, peaks.WithProminenceWindow(opts.ProminenceWindowPx)), scoreOpts)

	res := Result{
		Peaks:      kept,
		Calibrated: f.Calibrated,
		Preset:     preset.ID,
	}

	var matches []lines.Match

	if f.Calibrated {
		obs := make([]lines.Observation, 0, len(kept))
		for _, p := range kept {
			nm, ok := f.WavelengthAt(p.Index)
			if !ok {
				continue
			}

			obs = append(obs, lines.Observation{Index: p.Index, Nm: nm, Value: p.Value, Prominence: p.Prominence})
		}

		matches = lines.MatchPeaks(obs, st.Library.Lines(), lines.MatchOptions{
			ToleranceNm:       preset.ToleranceNm,
			MaxMatches:        preset.MaxMatches,
			PreferredElements: preset.PreferredElements,
			ElementBoost:      preset.ElementBoost,
		})
	} else {
		flags = append(flags, qc.FlagUncalibrated)
	}

	factor := qc.Factor(flags)

	maxValue := 0.0
	for _, p := range kept {
		maxValue = max(maxValue, p.Value)
	}

	res.TopHits = make([]Hit, 0, len(matches))
	for _, m := range matches {
		c := qc.HitConfidence(m.RawScore, m.PeakValue, maxValue, factor)
		res.TopHits = append(res.TopHits, Hit{Match: m, Confidence: c})
		res.Confidence = max(res.Confidence, c)
	}

	res.OffsetNm = lowerMedianDelta(matches)
	res.QCFlags = flags

	if res.QCFlags == nil {
		res.QCFlags = []string{}
	}

	return res, nil
}

// lowerMedianDelta returns the median DeltaNm, taking the lower middle value
// for an even count, or nil without matches.
func lowerMedianDelta(matches []lines.Match) *float64 {
	if len(matches) == 0 {
		return nil
	}

	deltas := make([]float64, len(matches))
	for i, m := range matches {
		deltas[i] = m.DeltaNm
	}

	sort.Float64s(deltas)

	median := deltas[(len(deltas)-1)/2]

	return &median
}
