package lines

import (
	"errors"
	"strings"
	"testing"
)

func TestLoadYAML(t *testing.T) {
	doc := `
lines:
  - species: Hg I
    nm: 546.074
    tags: [lamp]
  - species: Na I
    ref_nm: 588.995
    species_key: na1
`

	got, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d lines", len(got))
	}

	if got[0].Element != "Hg" || got[0].Tags[0] != "lamp" {
		t.Fatalf("unexpected first line: %+v", got[0])
	}

	if got[1].Nm != 588.995 || got[1].SpeciesKey != "na1" {
		t.Fatalf("unexpected second line: %+v", got[1])
	}
}

func TestLoadJSONArray(t *testing.T) {
	doc := `[{"species":"He I","refNm":587.562,"element":"He"},{"species":"H I","nm":656.279}]`

	got, err := Load(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(got) != 2 || got[0].Nm != 587.562 || got[1].SpeciesKey != "H_I" {
		t.Fatalf("unexpected lines: %+v", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		invalid bool
	}{
		{name: "missing wavelength", doc: "- species: Hg I\n", invalid: true},
		{name: "no lines key", doc: "other: 1\n", invalid: true},
		{name: "syntax", doc: "[1, 2", invalid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}

			if errors.Is(err, ErrInvalidLine) != tt.invalid {
				t.Fatalf("err=%v invalid=%v", err, tt.invalid)
			}
		})
	}
}

func TestLoadEmpty(t *testing.T) {
	got, err := Load(strings.NewReader(""))
	if err != nil || got != nil {
		t.Fatalf("got=%v err=%v", got, err)
	}
}
