// Package analysis runs the per-frame line identification pipeline:
// peak detection, scoring, reference-line matching, quality control and
// confidence weighting.
//
// The pipeline is a pure function of a frame, a [State] and per-call
// [Options]; it performs no I/O and keeps no hidden globals, so the worker
// host owns the only State instance.
package analysis
