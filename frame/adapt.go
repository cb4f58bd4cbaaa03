package frame

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-spectra/calib"
)

// ErrNoIntensity is returned when a raw capture carries no I channel.
var ErrNoIntensity = errors.New("frame: raw capture has no intensity channel")

// Raw is an unprocessed capture as delivered by a camera or image loader.
type Raw struct {
	Px        []float64 `json:"px,omitempty"`
	Nm        []float64 `json:"nm,omitempty"`
	R         []float64 `json:"R,omitempty"`
	G         []float64 `json:"G,omitempty"`
	B         []float64 `json:"B,omitempty"`
	I         []float64 `json:"I"`
	Timestamp time.Time `json:"timestamp"`
	Source    Origin    `json:"source,omitempty"`
}

// Adapt builds a Frame from raw using model for the wavelength axis.
//
// Px defaults to 0..n-1. When raw carries no Nm and the model is valid, Nm
// is evaluated from the model. The frame is calibrated only when a valid
// model exists and Nm covers every sample. All slices are copied.
func Adapt(raw Raw, model calib.Model) (Frame, error) {
	n := len(raw.I)
	if n == 0 {
		return Frame{}, ErrNoIntensity
	}

	f := Frame{
		ID:        uuid.NewString(),
		I:         clone(raw.I),
		R:         clone(raw.R),
		G:         clone(raw.G),
		B:         clone(raw.B),
		Timestamp: raw.Timestamp,
		Source:    raw.Source,
	}

	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}

	if f.Source == "" {
		f.Source = OriginUnknown
	}

	if len(raw.Px) == n {
		f.Px = clone(raw.Px)
	} else {
		f.Px = make([]float64, n)
		for i := range f.Px {
			f.Px[i] = float64(i)
		}
	}

	switch {
	case len(raw.Nm) == n:
		f.Nm = clone(raw.Nm)
	case model.Valid():
		f.Nm = model.ForwardAll(f.Px)
	}

	f.Calibrated = model.Valid() && len(f.Nm) == n

	return f, nil
}

func clone(x []float64) []float64 {
	if x == nil {
		return nil
	}

	return append([]float64(nil), x...)
}
