package qc

import (
	"strings"

	"github.com/cwbudde/algo-spectra/internal/numeric"
)

// Per-flag confidence multipliers.
const (
	factorSaturation = 0.35
	factorSNR        = 0.6
	factorNoSignal   = 0.2
	factorDark       = 0.8
	factorOther      = 0.85
)

// Factor converts flags into a multiplier in [0, 1]. FlagUncalibrated
// anywhere in the list yields exactly 0. Every other non-empty flag applies
// its penalty once per occurrence.
func Factor(flags []string) float64 {
	if HasFlag(flags, FlagUncalibrated) {
		return 0
	}

	f := 1.0
	for _, flag := range flags {
		f *= flagFactor(flag)
	}

	return f
}

func flagFactor(flag string) float64 {
	name := strings.ToLower(strings.TrimSpace(flag))

	switch {
	case name == "":
		return 1
	case strings.Contains(name, FlagSaturation), strings.Contains(name, FlagClipping):
		return factorSaturation
	case strings.Contains(name, "snr"):
		return factorSNR
	case strings.Contains(name, FlagNoSignal):
		return factorNoSignal
	case strings.Contains(name, FlagDark):
		return factorDark
	default:
		return factorOther
	}
}

// HitConfidence scores one match:
//
//	clamp01((0.15 + 0.85*(0.75*closeness + 0.25*strength)) * factor)
//
// where closeness = clamp01(rawScore) and
// strength = clamp01(peakValue / maxPeakValue).
func HitConfidence(rawScore, peakValue, maxPeakValue, factor float64) float64 {
	closeness := numeric.Clamp01(rawScore)

	strength := 0.0
	if maxPeakValue > 0 {
		strength = numeric.Clamp01(peakValue / maxPeakValue)
	}

	return numeric.Clamp01((0.15 + 0.85*(0.75*closeness+0.25*strength)) * factor)
}
