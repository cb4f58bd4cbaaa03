package qc

import (
	"log/slog"
)

// Flag names. Consumers compare these as plain strings.
const (
	FlagFrameTooSmall = "FRAME_TOO_SMALL"
	FlagUncalibrated  = "uncalibrated"
	FlagSaturation    = "saturation"
	FlagClipping      = "clipping"
	FlagLowSNR        = "low_snr"
	FlagNoSignal      = "no_signal"
	FlagDark          = "dark"
)

// MinSamples is the shortest trace that is analysed without FlagFrameTooSmall.
const MinSamples = 8

// Default signal-check thresholds.
const (
	DefaultSaturationFraction = 0.01
	DefaultDarkFraction       = 0.08
	DefaultFlatFraction       = 0.005
	DefaultMinSNR             = 4.0
)

// Config holds evaluator settings.
type Config struct {
	SignalChecks       bool
	SaturationFraction float64 // share of samples at full scale that flags saturation
	DarkFraction       float64 // max below this share of full scale flags dark
	FlatFraction       float64 // peak-to-peak below this share of full scale flags no_signal
	MinSNR             float64
	Logger             *slog.Logger
}

// Option mutates a Config.
type Option func(*Config)

// WithSignalChecks enables the saturation, dark, flat and SNR checks.
func WithSignalChecks(enabled bool) Option {
	return func(cfg *Config) { cfg.SignalChecks = enabled }
}

// WithMinSNR sets the spectral SNR below which FlagLowSNR is raised.
func WithMinSNR(snr float64) Option {
	return func(cfg *Config) {
		if snr > 0 {
			cfg.MinSNR = snr
		}
	}
}

// WithSaturationFraction sets the share of full-scale samples that flags
// saturation. Values outside (0, 1) are ignored.
func WithSaturationFraction(f float64) Option {
	return func(cfg *Config) {
		if f > 0 && f < 1 {
			cfg.SaturationFraction = f
		}
	}
}

// WithLogger sets the logger used for FFT failures in the SNR check.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *Config) {
		if l != nil {
			cfg.Logger = l
		}
	}
}

func applyOptions(opts []Option) Config {
	cfg := Config{
		SaturationFraction: DefaultSaturationFraction,
		DarkFraction:       DefaultDarkFraction,
		FlatFraction:       DefaultFlatFraction,
		MinSNR:             DefaultMinSNR,
		Logger:             slog.Default(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return cfg
}

// Report is the outcome of Evaluate.
type Report struct {
	Flags   []string `json:"flags"`
	Metrics Metrics  `json:"metrics"`
}

// OK reports whether no flag was raised.
func (r Report) OK() bool { return len(r.Flags) == 0 }

// Metrics are the signal statistics gathered by the signal checks.
type Metrics struct {
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	Mean           float64 `json:"mean"`
	FullScale      float64 `json:"fullScale"`
	SaturatedCount int     `json:"saturatedCount"`
	SNR            float64 `json:"snr"`
}

// Evaluate inspects samples and returns the raised flags in a fixed order.
func Evaluate(samples []float64, opts ...Option) Report {
	cfg := applyOptions(opts)

	var r Report

	if len(samples) < MinSamples {
		r.Flags = append(r.Flags, FlagFrameTooSmall)
		return r
	}

	if cfg.SignalChecks {
		r.Metrics, r.Flags = evaluateSignal(samples, cfg)
	}

	return r
}

// HasFlag reports whether flags contains name.
func HasFlag(flags []string, name string) bool {
	for _, f := range flags {
		if f == name {
			return true
		}
	}

	return false
}
