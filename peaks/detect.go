package peaks

import (
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-spectra/internal/numeric"
)

// Prominence window bounds in samples.
const (
	DefaultProminenceWindow = 8
	MinProminenceWindow     = 2
	MaxProminenceWindow     = 48
)

// kernel is the smoothing kernel before normalisation.
var kernel = [5]float64{1, 2, 3, 2, 1}

const kernelNorm = 9.0

// Peak is a local maximum of the smoothed trace.
type Peak struct {
	Index         int     `json:"index"`
	Value         float64 `json:"value"`         // raw sample at Index
	SmoothedValue float64 `json:"smoothedValue"` // smoothed sample at Index
	Prominence    float64 `json:"prominence"`    // Height - Baseline, never negative
	Height        float64 `json:"height"`
	Baseline      float64 `json:"baseline"` // max(leftMin, rightMin)
	RankScore     float64 `json:"rankScore,omitempty"`
}

// DetectConfig holds detector settings.
type DetectConfig struct {
	ProminenceWindow int
}

// DetectOption mutates a DetectConfig.
type DetectOption func(*DetectConfig)

// WithProminenceWindow sets how many samples are scanned on each side of a
// candidate when searching for its bounding minima. The value is clamped to
// [MinProminenceWindow, MaxProminenceWindow]; non-positive values keep the
// default.
func WithProminenceWindow(px int) DetectOption {
	return func(cfg *DetectConfig) {
		if px > 0 {
			cfg.ProminenceWindow = numeric.ClampInt(px, MinProminenceWindow, MaxProminenceWindow)
		}
	}
}

func applyDetectOptions(opts []DetectOption) DetectConfig {
	cfg := DetectConfig{ProminenceWindow: DefaultProminenceWindow}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return cfg
}

// Smooth applies the (1,2,3,2,1)/9 kernel. Indices beyond either edge repeat
// the edge sample. Non-finite samples are treated as zero.
func Smooth(x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}

	half := len(kernel) / 2
	padded := make([]float64, n+2*half)
	for i := range padded {
		padded[i] = numeric.Finite(x[numeric.ClampInt(i-half, 0, n-1)])
	}

	out := make([]float64, n)
	tap := make([]float64, n)

	for k, w := range kernel {
		vecmath.ScaleBlock(tap, padded[k:k+n], w/kernelNorm)
		vecmath.AddBlockInPlace(out, tap)
	}

	return out
}

// Detect returns every smoothed local maximum of x in index order. A sample
// i with 1 <= i <= n-2 qualifies when smoothed[i] > smoothed[i-1] and
// smoothed[i] >= smoothed[i+1], so plateaus resolve to their left edge.
func Detect(x []float64, opts ...DetectOption) []Peak {
	n := len(x)
	if n < 3 {
		return nil
	}

	cfg := applyDetectOptions(opts)
	s := Smooth(x)
	var out []Peak

	for i := 1; i < n-1; i++ {
		if !(s[i] > s[i-1] && s[i] >= s[i+1]) {
			continue
		}

		height := numeric.Finite(x[i])
		leftMin := windowMin(x, max(0, i-cfg.ProminenceWindow), i-1)
		rightMin := windowMin(x, i+1, min(n-1, i+cfg.ProminenceWindow))
		baseline := max(leftMin, rightMin)

		out = append(out, Peak{
			Index:         i,
			Value:         height,
			SmoothedValue: s[i],
			Prominence:    max(0, height-baseline),
			Height:        height,
			Baseline:      baseline,
		})
	}

	return out
}

// windowMin returns the smallest finite sample in x[lo..hi] inclusive.
func windowMin(x []float64, lo, hi int) float64 {
	m := numeric.Finite(x[lo])
	for i := lo + 1; i <= hi; i++ {
		m = min(m, numeric.Finite(x[i]))
	}

	return m
}
