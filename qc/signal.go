package qc

import (
	"math"
	"sync"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

const (
	clipLevel = 0.98
	// Bins above this share of Nyquist are treated as noise only.
	noiseBandStart = 0.75
)

// fullScale guesses the sensor range from the largest sample: normalised
// data, 8-bit, 12-bit or 16-bit.
func fullScale(maxV float64) float64 {
	switch {
	case maxV <= 1.01:
		return 1
	case maxV <= 255:
		return 255
	case maxV <= 4095:
		return 4095
	default:
		return 65535
	}
}

func saturationLevel(scale float64) float64 {
	if scale == 1 {
		return 0.995
	}

	return scale - 1
}

func evaluateSignal(samples []float64, cfg Config) (Metrics, []string) {
	m := Metrics{Min: math.Inf(1), Max: math.Inf(-1)}
	valid := 0
	sum := 0.0

	for _, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}

		m.Min = min(m.Min, v)
		m.Max = max(m.Max, v)
		sum += v
		valid++
	}

	if valid == 0 {
		return Metrics{}, []string{FlagNoSignal}
	}

	m.Mean = sum / float64(valid)
	m.FullScale = fullScale(m.Max)

	var flags []string

	satLevel := saturationLevel(m.FullScale)
	clipped := 0

	for _, v := range samples {
		switch {
		case v >= satLevel:
			m.SaturatedCount++
		case v >= clipLevel*m.FullScale:
			clipped++
		}
	}

	limit := cfg.SaturationFraction * float64(valid)

	switch {
	case float64(m.SaturatedCount) > limit:
		flags = append(flags, FlagSaturation)
	case float64(m.SaturatedCount+clipped) > limit:
		flags = append(flags, FlagClipping)
	}

	if m.Max-m.Min < cfg.FlatFraction*m.FullScale {
		return m, append(flags, FlagNoSignal)
	}

	if m.Max < cfg.DarkFraction*m.FullScale {
		flags = append(flags, FlagDark)
	}

	snr, err := SpectralSNR(samples)
	if err != nil {
		cfg.Logger.Warn("qc: snr estimate failed", "error", err, "samples", len(samples))
		return m, flags
	}

	m.SNR = snr
	if snr < cfg.MinSNR {
		flags = append(flags, FlagLowSNR)
	}

	return m, flags
}

type fftScratch struct {
	in, out []complex128
	re, im  []float64
	power   []float64
}

var scratchPool = sync.Pool{
	New: func() any { return &fftScratch{} },
}

func (s *fftScratch) resize(n int) {
	if cap(s.in) < n {
		s.in = make([]complex128, n)
		s.out = make([]complex128, n)
		s.re = make([]float64, n)
		s.im = make([]float64, n)
		s.power = make([]float64, n)
	}

	s.in, s.out = s.in[:n], s.out[:n]
	s.re, s.im, s.power = s.re[:n], s.im[:n], s.power[:n]
}

// SpectralSNR estimates how far the trace's structure rises above white
// noise. The mean-removed, Hann-windowed trace is transformed and the average
// power of the top quarter of the band (assumed line-free, since lines are
// several pixels wide) serves as the noise density. The result is total
// positive-frequency power divided by that density times the bin count, so
// pure white noise scores about 1.
func SpectralSNR(samples []float64) (float64, error) {
	n := len(samples)
	if n < MinSamples {
		return 0, nil
	}

	size := nextPowerOf2(n)

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return 0, err
	}

	s := scratchPool.Get().(*fftScratch)
	defer scratchPool.Put(s)

	s.resize(size)

	mean := 0.0
	for _, v := range samples {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			mean += v
		}
	}

	mean /= float64(n)

	clear(s.in)

	for i, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = mean
		}

		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		s.in[i] = complex((v-mean)*w, 0)
	}

	if err := plan.Forward(s.out, s.in); err != nil {
		return 0, err
	}

	for i, c := range s.out {
		s.re[i] = real(c)
		s.im[i] = imag(c)
	}

	vecmath.Power(s.power, s.re, s.im)

	half := size / 2
	start := int(noiseBandStart * float64(half))
	total, noise := 0.0, 0.0

	for k := 1; k <= half; k++ {
		total += s.power[k]
		if k >= start {
			noise += s.power[k]
		}
	}

	noiseDensity := noise / float64(half-start+1)
	if noiseDensity <= 0 {
		if total <= 0 {
			return 0, nil
		}

		return math.Inf(1), nil
	}

	return total / (noiseDensity * float64(half)), nil
}

func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}

	return p
}
