package calib

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestParsePointsJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Entry
	}{
		{
			name: "array",
			in:   `[{"px": 10, "nm": 404.656, "label": " Hg "}, {"pixel": "20", "wavelength": 435.833, "enabled": false}]`,
			want: []Entry{
				{Point: Point{Px: 10, Nm: 404.656}, Label: "Hg", Enabled: true},
				{Point: Point{Px: 20, Nm: 435.833}},
			},
		},
		{
			name: "object",
			in:   `{"points": [{"x": 1, "y": 500}, {"px": "bad", "nm": 1}, 7]}`,
			want: []Entry{{Point: Point{Px: 1, Nm: 500}, Enabled: true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePoints([]byte(tt.in))
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries want=%d: %+v", len(got), len(tt.want), got)
			}

			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("entry %d = %+v want=%+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestParsePointsDelimited(t *testing.T) {
	in := "# exported\npx,nm,label,enabled\n100;404.656;Hg\n200\t546.074\tHg\toff\nnonsense\n300,611.0\n"

	got := ParsePoints([]byte(in))
	if len(got) != 3 {
		t.Fatalf("got %d entries: %+v", len(got), got)
	}

	if got[0].Label != "Hg" || !got[0].Enabled || got[1].Enabled || got[2].Nm != 611 {
		t.Fatalf("got=%+v", got)
	}
}

func TestParsePointsEmpty(t *testing.T) {
	if got := ParsePoints([]byte("  \n")); got != nil {
		t.Fatalf("got=%+v", got)
	}
}

func TestWritePointsRoundTrip(t *testing.T) {
	entries := []Entry{
		{Point: Point{Px: 100, Nm: 404.656}, Label: "Hg", Enabled: true},
		{Point: Point{Px: 200.5, Nm: 546.074}, Enabled: false},
	}

	for _, format := range []Format{FormatJSON, FormatCSV} {
		var buf bytes.Buffer
		if err := WritePoints(&buf, entries, format, time.UnixMilli(1700000000000)); err != nil {
			t.Fatalf("%s: WritePoints: %v", format, err)
		}

		got := ParsePoints(buf.Bytes())
		if len(got) != 2 || got[0] != entries[0] || got[1] != entries[1] {
			t.Fatalf("%s: round trip got=%+v\n%s", format, got, buf.String())
		}
	}

	var buf bytes.Buffer
	if err := WritePoints(&buf, nil, FormatJSON, time.UnixMilli(5)); err != nil {
		t.Fatalf("WritePoints: %v", err)
	}

	if !strings.Contains(buf.String(), `"count": 0`) || !strings.Contains(buf.String(), `"exportedAt": 5`) {
		t.Fatalf("json=%s", buf.String())
	}

	if err := WritePoints(&buf, entries, "xml", time.Time{}); err == nil {
		t.Fatal("unknown format accepted")
	}
}

func TestValidate(t *testing.T) {
	entries := []Entry{
		{Point: Point{Px: 300, Nm: 611}, Enabled: true},
		{Point: Point{Px: 100, Nm: 404.656}, Enabled: true},
		{Point: Point{Px: 100, Nm: 404.656}, Enabled: true},
		{Point: Point{Px: 100, Nm: 410}, Enabled: true},
	}

	v := Validate(entries, ValidateOptions{})
	if !v.OK || len(v.Points) != 3 {
		t.Fatalf("validation=%+v", v)
	}

	if v.Points[0].Nm != 404.656 || v.Points[1].Nm != 410 || v.Points[2].Px != 300 {
		t.Fatalf("not sorted: %+v", v.Points)
	}

	if v.Stats.DuplicatesExact != 1 || v.Stats.DuplicatePx != 2 || !v.Stats.SortedByPx {
		t.Fatalf("stats=%+v", v.Stats)
	}

	want := []string{"1 exact duplicate(s) removed", "1 duplicate px value(s) remain", "points sorted by px"}
	if strings.Join(v.Warnings, "|") != strings.Join(want, "|") {
		t.Fatalf("warnings=%q", v.Warnings)
	}
}

func TestValidateLimits(t *testing.T) {
	var entries []Entry
	for i := range 20 {
		entries = append(entries, Entry{Point: Point{Px: float64(i), Nm: 400 + float64(i)}, Enabled: true})
	}

	v := Validate(entries, ValidateOptions{})
	if !v.OK || len(v.Points) != DefaultMaxPoints || !v.Stats.Truncated {
		t.Fatalf("validation ok=%v n=%d stats=%+v", v.OK, len(v.Points), v.Stats)
	}

	v = Validate(entries[:1], ValidateOptions{})
	if v.OK || v.Message != "need at least 2 valid point(s), got 1" {
		t.Fatalf("validation=%+v", v)
	}
}
