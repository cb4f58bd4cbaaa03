package testutil

import (
	"math"
	"math/rand"
)

// Line describes a Gaussian emission line on a pixel axis.
type Line struct {
	Center    float64 // pixel position
	Amplitude float64
	Sigma     float64 // pixels
}

// EmissionSpectrum renders the given lines on top of a constant baseline.
func EmissionSpectrum(length int, baseline float64, lines ...Line) []float64 {
	out := make([]float64, length)
	for i := range out {
		v := baseline
		for _, l := range lines {
			d := (float64(i) - l.Center) / l.Sigma
			v += l.Amplitude * math.Exp(-0.5*d*d)
		}
		out[i] = v
	}
	return out
}

// DeterministicNoise generates white noise with a fixed seed for reproducibility.
func DeterministicNoise(seed int64, amplitude float64, length int) []float64 {
	out := make([]float64, length)
	rng := rand.New(rand.NewSource(seed))
	for i := range out {
		out[i] = (rng.Float64()*2 - 1) * amplitude
	}
	return out
}

// Add returns the element-wise sum of a and b (length of a).
func Add(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i]
		if i < len(b) {
			out[i] += b[i]
		}
	}
	return out
}

// DC generates a constant-valued signal.
func DC(value float64, length int) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = value
	}
	return out
}

// LinearAxis maps pixel i to start + step*i.
func LinearAxis(length int, start, step float64) []float64 {
	out := make([]float64, length)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}
