// Command spectrad runs the spectrum analysis pipeline headless.
//
// It reads JSONL captures from a file or stdin, calibrates them, submits them
// to the analysis worker and republishes results over WebSocket and MQTT.
//
// Usage:
//
//	spectrad [flags]
//
// Examples:
//
//	spectrad -config spectrad.yaml
//	capture-tool | spectrad -mode LAB -points lamp.csv
//	spectrad -frames capture.jsonl -ws :8080 -debug
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/algo-spectra/calib"
	"github.com/cwbudde/algo-spectra/frame"
	"github.com/cwbudde/algo-spectra/internal/config"
	"github.com/cwbudde/algo-spectra/session"
	"github.com/cwbudde/algo-spectra/sink"
	"github.com/cwbudde/algo-spectra/worker"
)

func main() {
	configPath := flag.String("config", "", "configuration file (.yaml, .yml or .toml)")
	debug := flag.Bool("debug", false, "enable debug logging")
	mode := flag.String("mode", "", "application mode override (CORE, LAB, ASTRO)")
	frames := flag.String("frames", "", "JSONL capture file, - for stdin")
	points := flag.String("points", "", "calibration point file (CSV or JSON)")
	wsAddr := flag.String("ws", "", "WebSocket listen address")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: spectrad [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Analyses JSONL spectrum captures and publishes line identifications.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(2)
		}

		cfg = loaded
	}

	if *debug {
		cfg.Log.Level = "debug"
	}

	override(&cfg.App.Mode, *mode)
	override(&cfg.Frames.Path, *frames)
	override(&cfg.Calibration.PointsFile, *points)
	override(&cfg.Sinks.WebSocket.Addr, *wsAddr)

	if err := config.Validate(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("spectrad failed", "error", err)
		os.Exit(1)
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func newSession(cfg config.Config, logger *slog.Logger) (*session.Session, error) {
	modes := cfg.Worker.EnabledModes

	return session.New(
		session.WithLogger(logger),
		session.WithWorkerFactory(worker.LocalFactory(
			worker.WithHostLogger(logger.With("component", "worker")),
			worker.WithPresets(cfg.Presets...),
		)),
		session.WithClientOptions(
			worker.WithThrottle(cfg.Worker.Throttle()),
			worker.WithTimeout(cfg.Worker.Timeout()),
			worker.WithEnabledModes(modes...),
		),
		session.WithInitialState(func(s *session.State) {
			s.AppMode = cfg.App.Mode
			s.Analysis.PresetID = cfg.App.Preset
			s.Analysis.IncludeWeakPeaks = cfg.App.IncludeWeakPeaks
			s.Analysis.QualityChecks = cfg.App.QualityChecks
			s.Analysis.StableHits = cfg.App.StableHits
			s.Subtraction.Mode = frame.Mode(cfg.App.Subtraction)
		}),
	)
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	sess, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("failed to stop worker", "error", err)
		}
	}()

	if cfg.Calibration.PointsFile != "" {
		if err := loadPoints(sess, cfg.Calibration.PointsFile, logger); err != nil {
			return err
		}
	}

	if err := sess.Client.Start(ctx); err != nil {
		logger.Warn("worker unavailable, continuing without analysis", "error", err)
	}

	manifest := &worker.Manifest{Path: cfg.Library.Path}
	if cfg.Library.Path == "" {
		manifest = nil
	}

	if _, err := sess.Client.InitLibraries(ctx, manifest); err != nil {
		logger.Warn("library load request failed", "error", err)
	}

	if _, err := sess.Client.SetPreset(ctx, cfg.App.Preset); err != nil {
		logger.Warn("preset request failed", "error", err)
	}

	if cfg.Library.Path != "" && cfg.Library.Watch {
		w, err := watchFile(cfg.Library.Path, 250*time.Millisecond, func() {
			logger.Info("line library changed, reloading", "path", cfg.Library.Path)

			if _, err := sess.Client.InitLibraries(ctx, manifest); err != nil {
				logger.Warn("library reload failed", "error", err)
			}
		}, logger)
		if err != nil {
			return fmt.Errorf("watch library: %w", err)
		}
		defer w.Close()
	}

	sinks, shutdown, err := startSinks(ctx, cfg.Sinks, logger)
	if err != nil {
		return err
	}
	defer shutdown()

	if len(sinks) > 0 {
		fwd := sink.Forward(ctx, sess.Bus, sinks, sink.WithLogger(logger))
		defer func() {
			fwd.Stop()

			if n := fwd.Dropped(); n > 0 {
				logger.Warn("sink messages dropped", "count", n)
			}
		}()
	}

	src, closeSrc, err := openFrames(cfg.Frames.Path)
	if err != nil {
		return err
	}
	defer closeSrc()

	logger.Info("spectrad started",
		"mode", sess.Mode(),
		"frames", cfg.Frames.Path,
		"preset", cfg.App.Preset,
		"sinks", len(sinks),
	)

	err = sess.Run(ctx, src)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	logger.Info("spectrad stopped", "worker", sess.Store.Get("worker").Raw)

	return err
}

func loadPoints(sess *session.Session, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read calibration points: %w", err)
	}

	v := calib.Validate(calib.ParsePoints(data), calib.ValidateOptions{})
	for _, w := range v.Warnings {
		logger.Warn("calibration points", "path", path, "warning", w)
	}

	if !v.OK {
		return fmt.Errorf("calibration points %s: %s", path, v.Message)
	}

	model, err := sess.Calibrate(v.Points)
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}

	logger.Info("calibration applied", "path", path, "points", len(v.Points), "degree", model.Degree)

	return nil
}

func openFrames(path string) (frame.Source, func(), error) {
	if path == "" || path == "-" {
		return frame.NewJSONLSource(os.Stdin), func() {}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open frames: %w", err)
	}

	return frame.NewJSONLSource(f), func() { _ = f.Close() }, nil
}

func startSinks(ctx context.Context, cfg config.SinksConfig, logger *slog.Logger) ([]sink.Sink, func(), error) {
	var (
		sinks   []sink.Sink
		servers []*http.Server
	)

	shutdown := func() {
		for _, srv := range servers {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := srv.Shutdown(sctx); err != nil {
				logger.Warn("http shutdown", "error", err)
			}
			cancel()
		}

		for _, s := range sinks {
			if err := s.Close(); err != nil {
				logger.Warn("sink close", "error", err)
			}
		}
	}

	if cfg.WebSocket.Addr != "" {
		ws := sink.NewWebSocket(logger.With("sink", "websocket"), nil)

		mux := http.NewServeMux()
		mux.Handle(cfg.WebSocket.Path, ws)

		srv := &http.Server{
			Addr:              cfg.WebSocket.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("websocket sink listening", "addr", cfg.WebSocket.Addr, "path", cfg.WebSocket.Path)

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("websocket server failed", "error", err)
			}
		}()

		sinks = append(sinks, ws)
		servers = append(servers, srv)
	}

	if cfg.MQTT.Broker != "" {
		m := sink.NewMQTT(sink.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
			QoS:      byte(cfg.MQTT.QoS),
			Retain:   cfg.MQTT.Retain,
		}, logger.With("sink", "mqtt"))

		if err := m.Connect(ctx); err != nil {
			shutdown()
			return nil, nil, fmt.Errorf("mqtt sink: %w", err)
		}

		sinks = append(sinks, m)
	}

	return sinks, shutdown, nil
}
