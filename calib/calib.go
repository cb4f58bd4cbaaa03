package calib

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/cwbudde/algo-spectra/internal/poly"
)

// MaxDegree caps the fitted polynomial at a cubic regardless of point count.
const MaxDegree = 3

const (
	inverseTolerance = 1e-4
	inverseMaxIter   = 50
)

var (
	// ErrDuplicatePoints is returned when two points share both px and nm.
	ErrDuplicatePoints = errors.New("calib: duplicate calibration points")

	// ErrDegenerateFit is returned when the point geometry admits no unique
	// polynomial (for example two distinct wavelengths at one pixel).
	ErrDegenerateFit = errors.New("calib: degenerate calibration geometry")
)

// Point is one pixel/wavelength correspondence.
type Point struct {
	Px float64 `json:"px"`
	Nm float64 `json:"nm"`
}

// DuplicatePointError identifies the point that repeated an accepted one.
type DuplicatePointError struct {
	Index int
	Point Point
}

func (e *DuplicatePointError) Error() string {
	return fmt.Sprintf("calib: point %d (px=%g, nm=%g) duplicates an earlier point", e.Index, e.Point.Px, e.Point.Nm)
}

func (e *DuplicatePointError) Unwrap() error { return ErrDuplicatePoints }

// Model is a fitted pixel to wavelength polynomial. The zero value is the
// empty (uncalibrated) model.
type Model struct {
	Coefficients []float64 `json:"coefficients"`
	Degree       int       `json:"degree"`
	Points       []Point   `json:"points"`
}

// Valid reports whether the model carries a fitted polynomial.
func (m Model) Valid() bool {
	return len(m.Points) >= 2 && len(m.Coefficients) == m.Degree+1
}

// Forward evaluates the polynomial at px. Values outside the calibrated range
// are extrapolated, never clamped. The empty model evaluates to 0.
func (m Model) Forward(px float64) float64 {
	return poly.Eval(m.Coefficients, px)
}

// ForwardAll evaluates the polynomial for every pixel in px.
func (m Model) ForwardAll(px []float64) []float64 {
	out := make([]float64, len(px))
	for i, x := range px {
		out[i] = m.Forward(x)
	}

	return out
}

// Domain returns the pixel range spanned by the calibration points.
func (m Model) Domain() (float64, float64) {
	if len(m.Points) == 0 {
		return 0, 0
	}

	lo, hi := m.Points[0].Px, m.Points[0].Px
	for _, p := range m.Points[1:] {
		lo = math.Min(lo, p.Px)
		hi = math.Max(hi, p.Px)
	}

	return lo, hi
}

// Inverse solves forward(px) = nm over the calibrated pixel domain.
func (m Model) Inverse(nm float64) (float64, bool) {
	lo, hi := m.Domain()
	return m.InverseIn(nm, lo, hi)
}

// InverseIn solves forward(px) = nm over [xMin, xMax] by bisection with a
// wavelength tolerance of 1e-4 and at most 50 halvings. It returns false when
// the model is empty or forward(xMin)-nm and forward(xMax)-nm share a sign.
func (m Model) InverseIn(nm, xMin, xMax float64) (float64, bool) {
	if !m.Valid() || math.IsNaN(nm) {
		return 0, false
	}

	f := func(px float64) float64 { return m.Forward(px) - nm }

	return poly.Bisect(f, xMin, xMax, inverseTolerance, inverseMaxIter)
}

// Fit computes a model for points without touching any calibrator state.
// Fewer than two points yield the empty model and no error.
func Fit(points []Point) (Model, error) {
	for i, p := range points {
		if math.IsNaN(p.Px) || math.IsNaN(p.Nm) || math.IsInf(p.Px, 0) || math.IsInf(p.Nm, 0) {
			return Model{}, fmt.Errorf("calib: point %d is not finite", i)
		}

		for _, q := range points[:i] {
			if p == q {
				return Model{}, &DuplicatePointError{Index: i, Point: p}
			}
		}
	}

	n := len(points)
	if n < 2 {
		return Model{}, nil
	}

	degree := min(MaxDegree, n-1)
	x := make([]float64, n)
	y := make([]float64, n)

	for i, p := range points {
		x[i] = p.Px
		y[i] = p.Nm
	}

	coeff, err := poly.Fit(x, y, degree)
	if err != nil {
		return Model{}, fmt.Errorf("%w: %w", ErrDegenerateFit, err)
	}

	for _, c := range coeff {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return Model{}, ErrDegenerateFit
		}
	}

	return Model{
		Coefficients: coeff,
		Degree:       degree,
		Points:       slices.Clone(points),
	}, nil
}

// Calibrator owns the active calibration model. It is safe for concurrent use.
type Calibrator struct {
	mu    sync.RWMutex
	model Model
}

// NewCalibrator returns an uncalibrated Calibrator.
func NewCalibrator() *Calibrator {
	return &Calibrator{}
}

// Fit replaces the active model with one fitted to points. On any error the
// active model is reset to empty; prior state is never merged or retained.
func (c *Calibrator) Fit(points []Point) (Model, error) {
	m, err := Fit(points)

	c.mu.Lock()
	c.model = m
	c.mu.Unlock()

	if err != nil {
		return Model{}, err
	}

	return m.clone(), nil
}

// Reset clears the active model.
func (c *Calibrator) Reset() {
	c.mu.Lock()
	c.model = Model{}
	c.mu.Unlock()
}

// Model returns a copy of the active model.
func (c *Calibrator) Model() Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.model.clone()
}

// IsCalibrated reports whether a valid model is active.
func (c *Calibrator) IsCalibrated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.model.Valid()
}

func (m Model) clone() Model {
	return Model{
		Coefficients: slices.Clone(m.Coefficients),
		Degree:       m.Degree,
		Points:       slices.Clone(m.Points),
	}
}
