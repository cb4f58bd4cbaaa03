package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cwbudde/algo-spectra/calib"
)

func TestReportLinearFit(t *testing.T) {
	data := []byte("px,nm,label\n0,400,a\n500,500,b\n1000,600,c\n250,450,off,0\n")

	var out bytes.Buffer

	v, err := report(&out, data, options{at: []float64{750}, nm: []float64{550, 900}})
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	if len(v.Points) != 4 {
		t.Fatalf("points = %d, want 4", len(v.Points))
	}

	text := out.String()
	for _, want := range []string{
		"degree:       2",
		"status:       ok",
		"px 750.00 -> 550.0000 nm",
		"550.0000 nm -> px 750.00",
		"900.0000 nm -> outside calibrated range",
		"disabled",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestReportTooFewPoints(t *testing.T) {
	var out bytes.Buffer

	if _, err := report(&out, []byte("0,400\n"), options{}); err == nil {
		t.Fatal("report accepted a single point")
	}
}

func TestParseList(t *testing.T) {
	got, err := parseList(" 1, 2.5 ,3")
	if err != nil || len(got) != 3 || got[1] != 2.5 {
		t.Fatalf("parseList = %v, %v", got, err)
	}

	if got, err := parseList(""); err != nil || got != nil {
		t.Fatalf("parseList(\"\") = %v, %v", got, err)
	}

	if _, err := parseList("1,x"); err == nil {
		t.Fatal("parseList accepted x")
	}
}

func TestExportPoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	entries := []calib.Entry{
		{Point: calib.Point{Px: 0, Nm: 400}, Enabled: true},
		{Point: calib.Point{Px: 100, Nm: 420}, Label: "Hg", Enabled: true},
	}

	if err := exportPoints(path, entries, calib.FormatJSON); err != nil {
		t.Fatalf("exportPoints: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	back := calib.ParsePoints(data)
	if len(back) != 2 || back[1].Label != "Hg" || back[1].Nm != 420 {
		t.Fatalf("round trip = %+v", back)
	}
}
