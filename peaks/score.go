package peaks

import (
	"math"
	"sort"
)

// Default scoring parameters.
const (
	DefaultMaxPeaks          = 32
	DefaultMinRelHeight      = 0.05
	DefaultMinPeakDistancePx = 1

	prominenceWeight = 0.72
	heightWeight     = 0.28
)

// ScoreOptions tunes [Score]. Zero values select the defaults.
type ScoreOptions struct {
	MaxPeaks          int
	MinRelHeight      float64 // fraction of the largest prominence
	MinPeakDistancePx int
}

func (o ScoreOptions) withDefaults() ScoreOptions {
	if o.MaxPeaks <= 0 {
		o.MaxPeaks = DefaultMaxPeaks
	}

	if o.MinRelHeight <= 0 || math.IsNaN(o.MinRelHeight) {
		o.MinRelHeight = DefaultMinRelHeight
	}

	if o.MinPeakDistancePx <= 0 {
		o.MinPeakDistancePx = DefaultMinPeakDistancePx
	}

	return o
}

// Score ranks candidates and returns at most opts.MaxPeaks survivors sorted
// by ascending index. The input slice is not modified.
//
// Each candidate gets RankScore = 0.72*prom/maxProm + 0.28*value/maxValue.
// Candidates with a prominence below MinRelHeight*maxProm are dropped, then
// a greedy pass in rank order rejects any candidate closer than
// MinPeakDistancePx to an already accepted one.
func Score(candidates []Peak, opts ScoreOptions) []Peak {
	if len(candidates) == 0 {
		return nil
	}

	opts = opts.withDefaults()

	maxProm, maxValue := 0.0, 0.0
	for _, p := range candidates {
		maxProm = max(maxProm, p.Prominence)
		maxValue = max(maxValue, p.Value)
	}

	if maxProm <= 0 {
		return nil
	}

	minProm := opts.MinRelHeight * maxProm
	ranked := make([]Peak, 0, len(candidates))

	for _, p := range candidates {
		if p.Prominence < minProm {
			continue
		}

		p.RankScore = prominenceWeight * p.Prominence / maxProm
		if maxValue > 0 {
			p.RankScore += heightWeight * p.Value / maxValue
		}

		ranked = append(ranked, p)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RankScore > ranked[j].RankScore
	})

	kept := make([]Peak, 0, min(len(ranked), opts.MaxPeaks))
	for _, p := range ranked {
		if len(kept) == opts.MaxPeaks {
			break
		}

		if tooClose(kept, p.Index, opts.MinPeakDistancePx) {
			continue
		}

		kept = append(kept, p)
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Index < kept[j].Index })

	return kept
}

func tooClose(kept []Peak, index, minDist int) bool {
	for _, k := range kept {
		d := k.Index - index
		if d < 0 {
			d = -d
		}

		if d < minDist {
			return true
		}
	}

	return false
}

// Find is Detect followed by Score.
func Find(x []float64, opts ScoreOptions, detectOpts ...DetectOption) []Peak {
	return Score(Detect(x, detectOpts...), opts)
}
