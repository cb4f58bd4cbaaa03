// Package config loads the spectrad daemon configuration from YAML or TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-spectra/analysis"
	"github.com/cwbudde/algo-spectra/frame"
)

// ErrInvalidConfig wraps every load and validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Format is a configuration file syntax.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Config is the daemon configuration.
type Config struct {
	Log         LogConfig         `yaml:"log" toml:"log"`
	Worker      WorkerConfig      `yaml:"worker" toml:"worker"`
	App         AppConfig         `yaml:"app" toml:"app"`
	Library     LibraryConfig     `yaml:"library" toml:"library"`
	Calibration CalibrationConfig `yaml:"calibration" toml:"calibration"`
	Presets     []analysis.Preset `yaml:"presets" toml:"presets"`
	Sinks       SinksConfig       `yaml:"sinks" toml:"sinks"`
	Frames      FramesConfig      `yaml:"frames" toml:"frames"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text or json
}

// WorkerConfig tunes the worker client.
type WorkerConfig struct {
	ThrottleMs   int      `yaml:"throttle_ms" toml:"throttle_ms"`
	TimeoutMs    int      `yaml:"timeout_ms" toml:"timeout_ms"`
	EnabledModes []string `yaml:"enabled_modes" toml:"enabled_modes"`
}

// AppConfig is the initial application state.
type AppConfig struct {
	Mode             string `yaml:"mode" toml:"mode"`
	Preset           string `yaml:"preset" toml:"preset"`
	IncludeWeakPeaks bool   `yaml:"include_weak_peaks" toml:"include_weak_peaks"`
	QualityChecks    bool   `yaml:"quality_checks" toml:"quality_checks"`
	StableHits       bool   `yaml:"stable_hits" toml:"stable_hits"`
	Subtraction      string `yaml:"subtraction" toml:"subtraction"`
}

// LibraryConfig names the line library. An empty path uses the built-in
// table.
type LibraryConfig struct {
	Path  string `yaml:"path" toml:"path"`
	Watch bool   `yaml:"watch" toml:"watch"`
}

// CalibrationConfig names a calibration point file applied at startup.
type CalibrationConfig struct {
	PointsFile string `yaml:"points_file" toml:"points_file"`
}

// SinksConfig configures result publication.
type SinksConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket" toml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt" toml:"mqtt"`
}

// WebSocketConfig enables the WebSocket feed when Addr is set.
type WebSocketConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
	Path string `yaml:"path" toml:"path"`
}

// MQTTConfig enables the MQTT publisher when Broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker" toml:"broker"`
	ClientID string `yaml:"client_id" toml:"client_id"`
	Topic    string `yaml:"topic" toml:"topic"`
	QoS      int    `yaml:"qos" toml:"qos"`
	Retain   bool   `yaml:"retain" toml:"retain"`
}

// FramesConfig names the JSONL capture input; "-" is stdin.
type FramesConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Worker: WorkerConfig{
			ThrottleMs:   300,
			TimeoutMs:    3000,
			EnabledModes: []string{"LAB", "ASTRO"},
		},
		App: AppConfig{
			Mode:        "LAB",
			Preset:      analysis.PresetGeneral,
			Subtraction: string(frame.ModeRaw),
		},
		Sinks: SinksConfig{
			WebSocket: WebSocketConfig{Path: "/ws"},
			MQTT:      MQTTConfig{ClientID: "spectrad", Topic: "spectra"},
		},
		Frames: FramesConfig{Path: "-"},
	}
}

// Throttle returns the worker throttle interval.
func (w WorkerConfig) Throttle() time.Duration {
	return time.Duration(w.ThrottleMs) * time.Millisecond
}

// Timeout returns the worker analysis timeout.
func (w WorkerConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutMs) * time.Millisecond
}

// SlogLevel parses Level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}

	return level
}

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: unsupported file extension %q", ErrInvalidConfig, filepath.Ext(path))
	}
}

// Load reads, defaults and validates the file at path.
func Load(path string) (Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	return Parse(data, format)
}

// Parse decodes data over Default and validates the result.
func Parse(data []byte, format Format) (Config, error) {
	cfg := Default()

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)

		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()

		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: unknown format %q", ErrInvalidConfig, format)
	}

	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

var appModes = []string{"CORE", "LAB", "ASTRO"}

// Validate checks cfg and fills the defaults that depend on other fields.
func Validate(cfg *Config) error {
	var errs []error

	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	var level slog.Level
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	} else if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		invalid("log.level %q", cfg.Log.Level)
	}

	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = "text"
	case "text", "json":
	default:
		invalid("log.format %q must be text or json", cfg.Log.Format)
	}

	if cfg.Worker.ThrottleMs < 0 {
		invalid("worker.throttle_ms must be >= 0")
	}

	if cfg.Worker.TimeoutMs <= 0 {
		invalid("worker.timeout_ms must be > 0")
	}

	for _, m := range cfg.Worker.EnabledModes {
		if !slices.Contains(appModes, m) {
			invalid("worker.enabled_modes: unknown mode %q", m)
		}
	}

	if !slices.Contains(appModes, cfg.App.Mode) {
		invalid("app.mode %q must be one of %v", cfg.App.Mode, appModes)
	}

	if _, err := frame.ParseMode(cfg.App.Subtraction); err != nil {
		invalid("app.subtraction: %v", err)
	}

	for i, p := range cfg.Presets {
		switch {
		case p.ID == "":
			invalid("presets[%d]: id is required", i)
		case p.ToleranceNm < 0:
			invalid("presets[%d] %s: toleranceNm must be >= 0", i, p.ID)
		case p.MaxMatches < 0:
			invalid("presets[%d] %s: maxMatches must be >= 0", i, p.ID)
		}
	}

	if cfg.App.Preset == "" {
		cfg.App.Preset = analysis.PresetGeneral
	}

	if !analysis.BuiltinPresets().Merge(cfg.Presets...).Has(cfg.App.Preset) {
		invalid("app.preset %q is not defined", cfg.App.Preset)
	}

	if ws := &cfg.Sinks.WebSocket; ws.Addr != "" {
		if ws.Path == "" {
			ws.Path = "/ws"
		}

		if !strings.HasPrefix(ws.Path, "/") {
			invalid("sinks.websocket.path %q must start with /", ws.Path)
		}
	}

	if q := cfg.Sinks.MQTT.QoS; q < 0 || q > 2 {
		invalid("sinks.mqtt.qos %d must be 0, 1 or 2", q)
	}

	if cfg.Frames.Path == "" {
		cfg.Frames.Path = "-"
	}

	return errors.Join(errs...)
}
