package worker

import (
	"sort"
	"time"

	"github.com/cwbudde/algo-spectra/analysis"
)

// Stable filter defaults.
const (
	DefaultStableWindow     = 8 * time.Second
	DefaultStablePruneEvery = time.Second
	DefaultStableMinCount   = 3
	DefaultStableLimit      = 10
)

// StableHit is a hit that recurred across recent results.
type StableHit struct {
	analysis.Hit
	StableCount int `json:"stableCount"`
}

type stableRecord struct {
	count    int
	lastSeen time.Time
	best     analysis.Hit
}

// StableFilter keeps hits that keep reappearing. Records are keyed by
// element, falling back to species key and species, and expire after the
// window. It is not safe for concurrent use.
type StableFilter struct {
	Window     time.Duration
	PruneEvery time.Duration
	MinCount   int
	Limit      int

	records   map[string]*stableRecord
	lastPrune time.Time
}

// NewStableFilter returns a filter with the default parameters.
func NewStableFilter() *StableFilter {
	return &StableFilter{
		Window:     DefaultStableWindow,
		PruneEvery: DefaultStablePruneEvery,
		MinCount:   DefaultStableMinCount,
		Limit:      DefaultStableLimit,
		records:    make(map[string]*stableRecord),
	}
}

func stableKey(h analysis.Hit) string {
	switch {
	case h.Element != "":
		return h.Element
	case h.SpeciesKey != "":
		return h.SpeciesKey
	default:
		return h.Species
	}
}

// Add records hits seen at now and returns the current stable set, ranked
// by twice the occurrence count plus the best confidence.
func (s *StableFilter) Add(now time.Time, hits []analysis.Hit) []StableHit {
	if s.records == nil {
		s.records = make(map[string]*stableRecord)
	}

	for _, h := range hits {
		key := stableKey(h)
		if key == "" {
			continue
		}

		rec, ok := s.records[key]
		if !ok {
			rec = &stableRecord{best: h}
			s.records[key] = rec
		}

		rec.count++
		rec.lastSeen = now

		if h.Confidence > rec.best.Confidence {
			rec.best = h
		}
	}

	if now.Sub(s.lastPrune) >= s.PruneEvery {
		for key, rec := range s.records {
			if now.Sub(rec.lastSeen) > s.Window {
				delete(s.records, key)
			}
		}

		s.lastPrune = now
	}

	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	out := make([]StableHit, 0, len(keys))

	for _, key := range keys {
		rec := s.records[key]
		if rec.count < s.MinCount {
			continue
		}

		out = append(out, StableHit{Hit: rec.best, StableCount: rec.count})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return stableRank(out[i]) > stableRank(out[j])
	})

	if s.Limit > 0 && len(out) > s.Limit {
		out = out[:s.Limit]
	}

	return out
}

func stableRank(h StableHit) float64 {
	return 2*float64(h.StableCount) + h.Confidence
}

// Reset forgets all records.
func (s *StableFilter) Reset() {
	clear(s.records)
	s.lastPrune = time.Time{}
}
