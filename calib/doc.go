// Package calib maps sensor pixel positions to wavelengths.
//
// A [Calibrator] fits nm = f(px) by least-squares polynomial regression over a
// set of user-entered [Point] correspondences. The degree is min(3, n-1), so
// two points give a line and four or more points give a cubic. The resulting
// [Model] is immutable; any change to the point set recomputes it wholesale.
//
// A model is either valid (at least two points, coefficients computed) or
// empty. Duplicate points and degenerate geometry reset the calibrator to the
// empty state instead of leaving a partial fit behind.
//
// # Inverse lookup
//
// [Model.InverseIn] solves forward(px) = nm by bisection. It is only correct
// where the polynomial is monotonic over the queried domain; for a
// non-monotonic fit it returns the root bracketed by the first sign change
// the bisection converges to, which need not be the root nearest any
// particular pixel.
package calib
