package calib

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Format names a calibration point file format.
type Format string

// Point file formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParsePoints reads calibration entries from a JSON array, a JSON object
// with a "points" array, or delimited text with px, nm, an optional label
// and an optional enabled column separated by commas, semicolons or tabs.
// Rows that do not yield two finite numbers are skipped. Entries are enabled
// unless the input says otherwise.
func ParsePoints(data []byte) []Entry {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	if gjson.ValidBytes(trimmed) {
		doc := gjson.ParseBytes(trimmed)
		if !doc.IsArray() {
			doc = doc.Get("points")
		}

		if doc.IsArray() {
			var out []Entry

			doc.ForEach(func(_, v gjson.Result) bool {
				if e, ok := entryFromJSON(v); ok {
					out = append(out, e)
				}

				return true
			})

			return out
		}
	}

	return parseDelimited(string(trimmed))
}

func entryFromJSON(v gjson.Result) (Entry, bool) {
	if !v.IsObject() {
		return Entry{}, false
	}

	px, okPx := firstNumber(v, "px", "pixel", "x")
	nm, okNm := firstNumber(v, "nm", "wavelength", "y")

	if !okPx || !okNm {
		return Entry{}, false
	}

	e := Entry{Point: Point{Px: px, Nm: nm}, Enabled: true}
	e.Label = strings.TrimSpace(v.Get("label").String())

	if en := v.Get("enabled"); en.Exists() && en.Type == gjson.False {
		e.Enabled = false
	}

	return e, true
}

func firstNumber(v gjson.Result, keys ...string) (float64, bool) {
	for _, k := range keys {
		r := v.Get(k)
		if !r.Exists() || r.Type == gjson.Null {
			continue
		}

		switch r.Type {
		case gjson.Number:
			return r.Num, finite(r.Num)
		case gjson.String:
			return parseNumber(r.Str)
		default:
			return 0, false
		}
	}

	return 0, false
}

func parseNumber(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}

	return f, finite(f)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

var delimiters = strings.NewReplacer(";", ",", "\t", ",")

func parseDelimited(text string) []Entry {
	var out []Entry

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(delimiters.Replace(line), ",")
		if len(parts) < 2 {
			continue
		}

		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		px, okPx := parseNumber(parts[0])
		nm, okNm := parseNumber(parts[1])

		if !okPx || !okNm {
			continue
		}

		e := Entry{Point: Point{Px: px, Nm: nm}, Enabled: true}
		if len(parts) > 2 {
			e.Label = strings.Trim(parts[2], `"`)
		}

		if len(parts) > 3 {
			switch strings.ToLower(parts[3]) {
			case "0", "false", "no", "off":
				e.Enabled = false
			}
		}

		out = append(out, e)
	}

	return out
}

type pointFile struct {
	Points     []Entry `json:"points"`
	Count      int     `json:"count"`
	ExportedAt int64   `json:"exportedAt"`
}

// WritePoints serialises entries as an indented JSON document or as CSV
// with a px,nm,label,enabled header.
func WritePoints(w io.Writer, entries []Entry, format Format, now time.Time) error {
	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"px", "nm", "label", "enabled"}); err != nil {
			return err
		}

		for _, e := range entries {
			enabled := "1"
			if !e.Enabled {
				enabled = "0"
			}

			row := []string{
				strconv.FormatFloat(e.Px, 'g', -1, 64),
				strconv.FormatFloat(e.Nm, 'g', -1, 64),
				e.Label,
				enabled,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}

		cw.Flush()

		return cw.Error()
	case FormatJSON, "":
		if entries == nil {
			entries = []Entry{}
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(pointFile{Points: entries, Count: len(entries), ExportedAt: now.UnixMilli()})
	default:
		return fmt.Errorf("calib: unknown point format %q", format)
	}
}

// Validation limits.
const (
	DefaultMinPoints = 2
	DefaultMaxPoints = 15
)

// ValidateOptions control Validate. Zero values select the defaults.
type ValidateOptions struct {
	MinPoints      int
	MaxPoints      int
	KeepOrder      bool // do not sort by px
	KeepDuplicates bool // do not drop exact duplicates
}

// ValidationStats counts what Validate did.
type ValidationStats struct {
	RawCount        int  `json:"rawCount"`
	ValidCount      int  `json:"validCount"`
	InvalidDropped  int  `json:"invalidDropped"`
	DuplicatesExact int  `json:"duplicateExactRemoved"`
	DuplicatePx     int  `json:"duplicatePxSeen"`
	DuplicateNm     int  `json:"duplicateNmSeen"`
	SortedByPx      bool `json:"sortedByPx"`
	Truncated       bool `json:"trimmedToMax"`
}

// Validation is the outcome of Validate.
type Validation struct {
	OK       bool            `json:"ok"`
	Points   []Entry         `json:"points"`
	Message  string          `json:"message"`
	Warnings []string        `json:"warnings"`
	Stats    ValidationStats `json:"stats"`
}

// Validate cleans entries before a fit: non-finite rows are dropped, exact
// duplicates removed, the rest sorted by px and capped at MaxPoints. OK
// reports whether at least MinPoints remain.
func Validate(entries []Entry, opts ValidateOptions) Validation {
	minPoints := max(DefaultMinPoints, opts.MinPoints)

	maxPoints := opts.MaxPoints
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}

	v := Validation{Warnings: []string{}}
	v.Stats.RawCount = len(entries)

	seenExact := make(map[Point]bool)
	seenPx := make(map[float64]bool)
	seenNm := make(map[float64]bool)

	var kept []Entry

	for _, e := range entries {
		e, ok := normalize(e)
		if !ok {
			v.Stats.InvalidDropped++
			continue
		}

		v.Stats.ValidCount++

		if seenPx[e.Px] {
			v.Stats.DuplicatePx++
		}

		if seenNm[e.Nm] {
			v.Stats.DuplicateNm++
		}

		if !opts.KeepDuplicates && seenExact[e.Point] {
			v.Stats.DuplicatesExact++
			continue
		}

		seenExact[e.Point] = true
		seenPx[e.Px] = true
		seenNm[e.Nm] = true

		kept = append(kept, e)
	}

	if !opts.KeepOrder {
		sorted := sort.SliceIsSorted(kept, func(i, j int) bool { return lessPoint(kept[i].Point, kept[j].Point) })
		if !sorted {
			sort.SliceStable(kept, func(i, j int) bool { return lessPoint(kept[i].Point, kept[j].Point) })
			v.Stats.SortedByPx = true
		}
	}

	if len(kept) > maxPoints {
		kept = kept[:maxPoints]
		v.Stats.Truncated = true
	}

	v.Points = kept
	if v.Points == nil {
		v.Points = []Entry{}
	}

	v.OK = len(kept) >= minPoints

	if v.OK {
		v.Message = fmt.Sprintf("OK (%d point(s))", len(kept))
	} else {
		v.Message = fmt.Sprintf("need at least %d valid point(s), got %d", minPoints, len(kept))
	}

	if n := v.Stats.InvalidDropped; n > 0 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("%d invalid row(s) dropped", n))
	}

	if n := v.Stats.DuplicatesExact; n > 0 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("%d exact duplicate(s) removed", n))
	}

	if n := v.Stats.DuplicatePx - v.Stats.DuplicatesExact; n > 0 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("%d duplicate px value(s) remain", n))
	}

	if n := v.Stats.DuplicateNm - v.Stats.DuplicatesExact; n > 0 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("%d duplicate nm value(s) remain", n))
	}

	if v.Stats.SortedByPx {
		v.Warnings = append(v.Warnings, "points sorted by px")
	}

	if v.Stats.Truncated {
		v.Warnings = append(v.Warnings, fmt.Sprintf("trimmed to max %d points", maxPoints))
	}

	return v
}

func lessPoint(a, b Point) bool {
	if a.Px != b.Px {
		return a.Px < b.Px
	}

	return a.Nm < b.Nm
}
