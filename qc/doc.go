// Package qc derives data-quality flags for an intensity trace and converts
// them into a confidence multiplier.
//
// Structural checks always run: a trace shorter than [MinSamples] is flagged
// [FlagFrameTooSmall]. Signal checks (saturation, clipping, dark frames, flat
// frames and a spectral noise-floor SNR estimate) are opt-in through
// [WithSignalChecks]. The analysis pipeline appends [FlagUncalibrated] itself
// when no wavelength axis is available.
//
// [Factor] turns any flag list into a multiplicative factor in [0, 1] and
// [HitConfidence] combines it with match closeness and peak strength.
package qc
