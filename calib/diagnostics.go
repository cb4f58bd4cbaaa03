package calib

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ResidualWarnNm is the RMS residual above which a fit is reported as "high".
const ResidualWarnNm = 1.0

// Residual status values published alongside the calibration.
const (
	ResidualUnknown = "unknown"
	ResidualOK      = "ok"
	ResidualHigh    = "high"
)

// Diagnostics summarises how well a model reproduces its own points.
type Diagnostics struct {
	Residuals      []float64 `json:"residuals"` // forward(px_i) - nm_i
	RMS            float64   `json:"rms"`
	MaxAbs         float64   `json:"maxAbs"`
	RSquared       float64   `json:"rSquared"`
	StandardError  float64   `json:"standardError"` // sqrt(Σr²/(n-2)), 0 for n <= 2
	ResidualStatus string    `json:"residualStatus"`
}

// Diagnose computes residual statistics for m. The empty model reports
// ResidualUnknown.
func (m Model) Diagnose() Diagnostics {
	if !m.Valid() {
		return Diagnostics{ResidualStatus: ResidualUnknown}
	}

	n := len(m.Points)
	fitted := make([]float64, n)
	measured := make([]float64, n)
	res := make([]float64, n)

	for i, p := range m.Points {
		fitted[i] = m.Forward(p.Px)
		measured[i] = p.Nm
		res[i] = fitted[i] - p.Nm
	}

	abs := make([]float64, n)
	for i, r := range res {
		abs[i] = math.Abs(r)
	}

	sumSq := floats.Dot(res, res)
	d := Diagnostics{
		Residuals: res,
		RMS:       math.Sqrt(sumSq / float64(n)),
		MaxAbs:    floats.Max(abs),
		RSquared:  stat.RSquaredFrom(fitted, measured, nil),
	}

	if n > 2 {
		d.StandardError = math.Sqrt(sumSq / float64(n-2))
	}

	if math.IsNaN(d.RSquared) {
		d.RSquared = 1
	}

	d.ResidualStatus = ResidualOK
	if d.RMS > ResidualWarnNm {
		d.ResidualStatus = ResidualHigh
	}

	return d
}
