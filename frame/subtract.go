package frame

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Mode selects how the processed intensity is derived from the raw trace.
type Mode string

// Subtraction modes.
const (
	ModeRaw           Mode = "raw"
	ModeRawDark       Mode = "raw-dark"
	ModeDifference    Mode = "difference"
	ModeRatio         Mode = "ratio"
	ModeTransmittance Mode = "transmittance"
	ModeAbsorbance    Mode = "absorbance"
	ModeFlat          Mode = "flat"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeRaw, ModeRawDark, ModeDifference, ModeRatio, ModeTransmittance, ModeAbsorbance, ModeFlat}

var (
	ErrUnknownMode      = errors.New("frame: unknown subtraction mode")
	ErrMissingReference = errors.New("frame: subtraction mode needs a reference trace")
	ErrLengthMismatch   = errors.New("frame: trace lengths differ")
)

// References holds the auxiliary traces used by the subtraction modes. A nil
// Dark is treated as all zeros.
type References struct {
	Dark      []float64 `json:"dark,omitempty"`
	Reference []float64 `json:"reference,omitempty"`
	Flat      []float64 `json:"flat,omitempty"`
}

// ParseMode validates s. The empty string selects ModeRaw.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeRaw, nil
	}

	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Process applies mode to raw and returns a new slice:
//
//	raw            R
//	raw-dark       R - D
//	difference     R - Ref
//	ratio          R / Ref
//	transmittance  100 * (R - D) / (Ref - D)
//	absorbance     -log10((R - D) / (Ref - D))
//	flat           (R - D) * mean(F - D) / (F - D)
//
// Divisions by zero yield 0, as does the logarithm of a non-positive ratio.
func Process(mode Mode, raw []float64, refs References) ([]float64, error) {
	n := len(raw)

	dark := refs.Dark
	if dark == nil {
		dark = make([]float64, n)
	}

	if len(dark) != n {
		return nil, fmt.Errorf("%w: dark has %d samples, raw %d", ErrLengthMismatch, len(dark), n)
	}

	need := func(ref []float64, name string) error {
		if ref == nil {
			return fmt.Errorf("%w: %s (%s)", ErrMissingReference, mode, name)
		}

		if len(ref) != n {
			return fmt.Errorf("%w: %s has %d samples, raw %d", ErrLengthMismatch, name, len(ref), n)
		}

		return nil
	}

	out := make([]float64, n)

	switch mode {
	case ModeRaw, "":
		copy(out, raw)
	case ModeRawDark:
		subtract(out, raw, dark)
	case ModeDifference:
		if err := need(refs.Reference, "reference"); err != nil {
			return nil, err
		}

		subtract(out, raw, refs.Reference)
	case ModeRatio:
		if err := need(refs.Reference, "reference"); err != nil {
			return nil, err
		}

		for i := range out {
			out[i] = safeDiv(raw[i], refs.Reference[i])
		}
	case ModeTransmittance, ModeAbsorbance:
		if err := need(refs.Reference, "reference"); err != nil {
			return nil, err
		}

		for i := range out {
			t := safeDiv(raw[i]-dark[i], refs.Reference[i]-dark[i])
			if mode == ModeTransmittance {
				out[i] = 100 * t
			} else {
				out[i] = -safeLog10(t)
			}
		}
	case ModeFlat:
		if err := need(refs.Flat, "flat"); err != nil {
			return nil, err
		}

		flatField(out, raw, dark, refs.Flat)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	return out, nil
}

// subtract computes dst = a - b.
func subtract(dst, a, b []float64) {
	vecmath.ScaleBlock(dst, b, -1)
	vecmath.AddBlockInPlace(dst, a)
}

// flatField divides out the pixel response measured in a dark-corrected flat
// frame, normalised so the mean gain is 1.
func flatField(dst, raw, dark, flat []float64) {
	n := len(raw)
	if n == 0 {
		return
	}

	response := make([]float64, n)
	subtract(response, flat, dark)

	mean := vecmath.Sum(response) / float64(n)

	gain := make([]float64, n)
	for i, r := range response {
		if r > 0 {
			gain[i] = mean / r
		}
	}

	subtract(dst, raw, dark)
	vecmath.MulBlockInPlace(dst, gain)
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}

	return a / b
}

func safeLog10(x float64) float64 {
	if x <= 0 || math.IsNaN(x) {
		return 0
	}

	return math.Log10(x)
}
