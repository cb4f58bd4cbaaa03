// Package peaks finds and ranks emission-line candidates in a 1-D intensity
// trace.
//
// [Detect] smooths the trace with a fixed 5-tap kernel (1,2,3,2,1)/9 and
// reports every local maximum of the smoothed series together with its
// prominence, measured on the raw samples within a bounded search window.
// [Score] then ranks the candidates by a blend of normalised prominence and
// height, drops weak ones, suppresses near neighbours of stronger peaks, caps
// the count, and returns the survivors sorted by index.
package peaks
