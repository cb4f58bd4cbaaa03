package lines

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"
)

// ErrInvalidLine reports a reference line without a usable species or
// wavelength.
var ErrInvalidLine = errors.New("lines: invalid line")

// Line is one reference emission or absorption line.
type Line struct {
	Species    string   `json:"species"`
	SpeciesKey string   `json:"speciesKey"`
	Nm         float64  `json:"nm"`
	Element    string   `json:"element,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// normalize fills SpeciesKey and Element when absent and validates the line.
func (l Line) normalize() (Line, error) {
	l.Species = strings.TrimSpace(l.Species)
	if l.Species == "" {
		return l, fmt.Errorf("%w: empty species", ErrInvalidLine)
	}

	if math.IsNaN(l.Nm) || math.IsInf(l.Nm, 0) || l.Nm <= 0 {
		return l, fmt.Errorf("%w: %s wavelength %g", ErrInvalidLine, l.Species, l.Nm)
	}

	if l.SpeciesKey == "" {
		l.SpeciesKey = strings.Join(strings.Fields(l.Species), "_")
	}

	if l.Element == "" {
		l.Element = InferElement(l.Species)
	}

	if l.Tags != nil {
		l.Tags = append([]string(nil), l.Tags...)
	}

	return l, nil
}

// InferElement extracts a chemical symbol from a species label such as
// "Na I", "Ca II", "H-alpha" or "40Ar". Leading digits (isotope numbers) are
// skipped, then an upper-case letter optionally followed by one lower-case
// letter is taken. It returns "" when no symbol is found.
func InferElement(species string) string {
	s := strings.TrimLeftFunc(strings.TrimSpace(species), unicode.IsDigit)

	r := []rune(s)
	if len(r) == 0 || !unicode.IsUpper(r[0]) {
		return ""
	}

	if len(r) > 1 && unicode.IsLower(r[1]) {
		return string(r[:2])
	}

	return string(r[:1])
}
