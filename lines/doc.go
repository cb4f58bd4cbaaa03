// Package lines holds reference spectral lines and pairs observed peaks with
// them.
//
// A [Library] is an immutable, wavelength-sorted table built once from
// [Builtin] data or a file read by [Load]. [MatchPeaks] then finds, for each
// observed peak with a known wavelength, the nearest line within a tolerance
// and scores the pairing.
package lines
