// Package frame defines the per-capture spectrum snapshot fed into analysis,
// the adapter that builds it from raw channel data and a calibration, the
// subtraction transforms that derive the processed intensity, and frame
// sources that stream raw captures from files.
package frame

import (
	"time"
)

// Origin names where a frame came from.
type Origin string

// Known origins.
const (
	OriginCamera  Origin = "camera"
	OriginImage   Origin = "image"
	OriginUnknown Origin = "unknown"
)

// Frame is an immutable intensity snapshot. A new Frame supersedes the
// previous one; frames are never modified after Adapt returns them.
type Frame struct {
	ID         string    `json:"id"`
	Px         []float64 `json:"px"`
	Nm         []float64 `json:"nm"` // nil when uncalibrated
	R          []float64 `json:"R,omitempty"`
	G          []float64 `json:"G,omitempty"`
	B          []float64 `json:"B,omitempty"`
	I          []float64 `json:"I"`
	ProcessedI []float64 `json:"processedI,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Source     Origin    `json:"source"`
	Calibrated bool      `json:"calibrated"`
}

// Len returns the number of samples in I.
func (f Frame) Len() int { return len(f.I) }

// Intensity returns ProcessedI when present, else I.
func (f Frame) Intensity() []float64 {
	if len(f.ProcessedI) > 0 {
		return f.ProcessedI
	}

	return f.I
}

// WavelengthAt returns the wavelength of sample i and whether it is known.
func (f Frame) WavelengthAt(i int) (float64, bool) {
	if !f.Calibrated || i < 0 || i >= len(f.Nm) {
		return 0, false
	}

	return f.Nm[i], true
}

// WithProcessed returns a copy of f carrying processed as ProcessedI.
func (f Frame) WithProcessed(processed []float64) Frame {
	f.ProcessedI = processed
	return f
}
