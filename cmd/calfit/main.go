// Command calfit fits a pixel to wavelength calibration from a point file
// and prints the residuals.
//
// Usage:
//
//	calfit [flags] [points-file]
//
// The point file may be CSV (px,nm[,label[,enabled]]) or JSON. Without a
// file argument the points are read from stdin.
//
// Examples:
//
//	calfit lamp.csv
//	calfit -at 320,640 lamp.json
//	calfit -export clean.json -format json lamp.csv
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/algo-spectra/calib"
)

type options struct {
	maxPoints int
	keepOrder bool
	at        []float64
	nm        []float64
}

func main() {
	maxPoints := flag.Int("max", calib.DefaultMaxPoints, "maximum number of points kept after cleaning")
	keepOrder := flag.Bool("keep-order", false, "do not sort points by pixel")
	at := flag.String("at", "", "comma separated pixels to evaluate")
	nm := flag.String("nm", "", "comma separated wavelengths to invert")
	export := flag.String("export", "", "write the cleaned points to this file")
	format := flag.String("format", "csv", "export format: csv or json")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: calfit [flags] [points-file]\n\n")
		fmt.Fprintf(os.Stderr, "Fits a wavelength calibration and prints residual diagnostics.\n")
		fmt.Fprintf(os.Stderr, "Reads stdin when no file is given.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  calfit lamp.csv\n")
		fmt.Fprintf(os.Stderr, "  calfit -at 320,640 lamp.json\n")
		fmt.Fprintf(os.Stderr, "  calfit -export clean.json -format json lamp.csv\n")
	}
	flag.Parse()

	data, err := readInput(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	opts := options{maxPoints: *maxPoints, keepOrder: *keepOrder}

	if opts.at, err = parseList(*at); err != nil {
		fmt.Fprintf(os.Stderr, "error: -at: %v\n", err)
		os.Exit(2)
	}

	if opts.nm, err = parseList(*nm); err != nil {
		fmt.Fprintf(os.Stderr, "error: -nm: %v\n", err)
		os.Exit(2)
	}

	v, err := report(os.Stdout, data, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *export != "" {
		if err := exportPoints(*export, v.Points, calib.Format(*format)); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}

	return os.ReadFile(path)
}

func parseList(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var out []float64

	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}

		out = append(out, v)
	}

	return out, nil
}

func exportPoints(path string, entries []calib.Entry, format calib.Format) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := calib.WritePoints(f, entries, format, time.Now()); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// report cleans and fits the points in data and writes the point table, the
// model and any requested evaluations to w.
func report(w io.Writer, data []byte, opts options) (calib.Validation, error) {
	v := calib.Validate(calib.ParsePoints(data), calib.ValidateOptions{
		MaxPoints: opts.maxPoints,
		KeepOrder: opts.keepOrder,
	})

	for _, warn := range v.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warn)
	}

	if !v.OK {
		return v, fmt.Errorf("%s", v.Message)
	}

	var points []calib.Point

	for _, e := range v.Points {
		if e.Enabled {
			points = append(points, e.Point)
		}
	}

	model, err := calib.Fit(points)
	if err != nil {
		return v, err
	}

	if !model.Valid() {
		return v, fmt.Errorf("need at least 2 enabled points, have %d", len(points))
	}

	diag := model.Diagnose()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tPx\tNm\tFitted\tResidual\tLabel\n")
	fmt.Fprintf(tw, "-\t--\t--\t------\t--------\t-----\n")

	fitIndex := 0

	for i, e := range v.Points {
		fitted, residual := "-", "disabled"
		if e.Enabled {
			fitted = fmt.Sprintf("%.4f", model.Forward(e.Px))
			residual = fmt.Sprintf("%+.4f", diag.Residuals[fitIndex])
			fitIndex++
		}

		fmt.Fprintf(tw, "%d\t%.2f\t%.4f\t%s\t%s\t%s\n", i, e.Px, e.Nm, fitted, residual, e.Label)
	}

	if err := tw.Flush(); err != nil {
		return v, err
	}

	fmt.Fprintf(w, "\ndegree:       %d\n", model.Degree)
	fmt.Fprintf(w, "coefficients: %s\n", formatCoefficients(model.Coefficients))
	fmt.Fprintf(w, "rms:          %.4f nm\n", diag.RMS)
	fmt.Fprintf(w, "max |r|:      %.4f nm\n", diag.MaxAbs)
	fmt.Fprintf(w, "r²:           %.6f\n", diag.RSquared)
	fmt.Fprintf(w, "status:       %s\n", diag.ResidualStatus)

	for _, px := range opts.at {
		fmt.Fprintf(w, "px %.2f -> %.4f nm\n", px, model.Forward(px))
	}

	for _, nm := range opts.nm {
		if px, ok := model.Inverse(nm); ok {
			fmt.Fprintf(w, "%.4f nm -> px %.2f\n", nm, px)
		} else {
			fmt.Fprintf(w, "%.4f nm -> outside calibrated range\n", nm)
		}
	}

	return v, nil
}

func formatCoefficients(c []float64) string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = strconv.FormatFloat(v, 'g', 8, 64)
	}

	return "[" + strings.Join(parts, " ") + "]"
}
