package lines

import (
	"sort"
	"strings"
)

// Library is an immutable set of reference lines sorted by wavelength.
// It is safe for concurrent use.
type Library struct {
	lines []Line
}

// NewLibrary validates, normalises and sorts lines. Invalid entries fail the
// whole library so that a broken file never half-loads.
func NewLibrary(lines []Line) (*Library, error) {
	out := make([]Line, 0, len(lines))

	for i, l := range lines {
		n, err := l.normalize()
		if err != nil {
			return nil, indexError(i, err)
		}

		out = append(out, n)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Nm < out[j].Nm })

	return &Library{lines: out}, nil
}

// Len returns the number of lines.
func (l *Library) Len() int {
	if l == nil {
		return 0
	}

	return len(l.lines)
}

// Lines returns a copy of all lines in ascending wavelength order.
func (l *Library) Lines() []Line {
	if l == nil {
		return nil
	}

	return append([]Line(nil), l.lines...)
}

// Range returns the lines with minNm <= nm <= maxNm.
func (l *Library) Range(minNm, maxNm float64) []Line {
	return l.Query(Query{MinNm: minNm, MaxNm: maxNm})
}

// Query selects library lines.
type Query struct {
	MinNm float64 `json:"minNm"`
	MaxNm float64 `json:"maxNm"` // zero means unbounded
	Text  string  `json:"text,omitempty"`
	Limit int     `json:"limit,omitempty"` // zero means unlimited
}

// Query returns the lines inside the query's wavelength range whose
// species, species key or element contains Text (case-insensitive).
func (l *Library) Query(q Query) []Line {
	if l == nil {
		return nil
	}

	if q.MaxNm > 0 && q.MaxNm < q.MinNm {
		q.MinNm, q.MaxNm = q.MaxNm, q.MinNm
	}

	needle := strings.ToLower(strings.TrimSpace(q.Text))

	var out []Line

	for _, line := range l.lines {
		if line.Nm < q.MinNm {
			continue
		}

		if q.MaxNm > 0 && line.Nm > q.MaxNm {
			break
		}

		if needle != "" && !containsFold(line, needle) {
			continue
		}

		out = append(out, line)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}

	return out
}

func containsFold(line Line, needle string) bool {
	for _, field := range []string{line.Species, line.SpeciesKey, line.Element} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}

	return false
}
