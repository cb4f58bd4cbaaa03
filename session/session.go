// Package session wires the bus, state store, calibrator and worker client
// into one explicit context object constructed at startup.
//
// A Session is the only writer of the frame, calibration, reference and
// subtraction domains and of appMode; the worker client writes the worker
// and analysis domains. Producers feed it through PushFrame, Calibrate and
// SetReference.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cwbudde/algo-spectra/bus"
	"github.com/cwbudde/algo-spectra/calib"
	"github.com/cwbudde/algo-spectra/frame"
	"github.com/cwbudde/algo-spectra/store"
	"github.com/cwbudde/algo-spectra/worker"
)

// Bus events emitted by a Session.
const (
	EventModeChanged        = "mode:changed"
	EventFrameUpdated       = "frame:updated"
	EventCalibrationChanged = "calibration:changed"
	EventReferenceChanged   = "reference:changed"
)

var timeNow = time.Now

// ErrUnknownMode rejects an application mode outside Modes.
var ErrUnknownMode = errors.New("session: unknown application mode")

// ModeChange is the mode:changed payload.
type ModeChange struct {
	PrevMode string `json:"prevMode"`
	NextMode string `json:"nextMode"`
	Source   string `json:"source,omitempty"`
}

// FrameUpdate is the frame:updated payload.
type FrameUpdate struct {
	Frame    frame.Frame `json:"frame"`
	Accepted bool        `json:"accepted"`
}

// ReferenceKind names an auxiliary trace.
type ReferenceKind string

// Reference kinds.
const (
	RefDark      ReferenceKind = "dark"
	RefReference ReferenceKind = "reference"
	RefFlat      ReferenceKind = "flat"
)

type config struct {
	logger        *slog.Logger
	bus           *bus.Bus
	factory       worker.Factory
	clientOptions []worker.ClientOption
	initial       func(*State)
}

// Option configures New.
type Option func(*config)

// WithLogger sets the logger shared by the session, bus and client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBus uses an existing bus.
func WithBus(b *bus.Bus) Option {
	return func(c *config) { c.bus = b }
}

// WithWorkerFactory sets how the worker transport is created. The default
// runs a local host with the built-in presets.
func WithWorkerFactory(f worker.Factory) Option {
	return func(c *config) {
		if f != nil {
			c.factory = f
		}
	}
}

// WithClientOptions passes options to the worker client.
func WithClientOptions(opts ...worker.ClientOption) Option {
	return func(c *config) { c.clientOptions = append(c.clientOptions, opts...) }
}

// WithInitialState edits the default document before the store is built.
func WithInitialState(fn func(*State)) Option {
	return func(c *config) { c.initial = fn }
}

// Session is the application context.
type Session struct {
	Bus        *bus.Bus
	Store      *store.Store
	Calibrator *calib.Calibrator
	Points     *calib.PointSet
	Client     *worker.Client

	logger *slog.Logger

	mu   sync.Mutex
	refs frame.References
}

// New builds a Session. The worker is started lazily by the first request.
func New(opts ...Option) (*Session, error) {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.bus == nil {
		cfg.bus = bus.New(bus.WithLogger(cfg.logger))
	}

	if cfg.factory == nil {
		cfg.factory = worker.LocalFactory(worker.WithHostLogger(cfg.logger))
	}

	initial := DefaultState()
	if cfg.initial != nil {
		cfg.initial(&initial)
	}

	if !slices.Contains(Modes, initial.AppMode) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, initial.AppMode)
	}

	st, err := store.New(cfg.bus, initial)
	if err != nil {
		return nil, err
	}

	clientOpts := append([]worker.ClientOption{worker.WithClientLogger(cfg.logger)}, cfg.clientOptions...)

	return &Session{
		Bus:        cfg.bus,
		Store:      st,
		Calibrator: calib.NewCalibrator(),
		Points:     calib.NewPointSet(0),
		Client:     worker.NewClient(cfg.factory, st, cfg.bus, clientOpts...),
		logger:     cfg.logger,
	}, nil
}

// Close stops the worker client.
func (s *Session) Close() error {
	return s.Client.Stop()
}

// Mode returns the application mode.
func (s *Session) Mode() string {
	return s.Store.Get("appMode").String()
}

// SetMode switches the application mode and emits mode:changed when it
// differs from the current one. source is recorded in the event and the
// store change metadata.
func (s *Session) SetMode(mode, source string) error {
	if !slices.Contains(Modes, mode) {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	prev := s.Mode()

	changed, err := s.Store.Update("appMode", mode, meta(source))
	if err != nil || !changed {
		return err
	}

	s.logger.Info("application mode changed", "from", prev, "to", mode)
	s.Bus.Emit(EventModeChanged, ModeChange{PrevMode: prev, NextMode: mode, Source: source})

	return nil
}

// Calibrate replaces the calibration points with entries and refits. On
// failure the model is reset and the calibration domain says so.
func (s *Session) Calibrate(entries []calib.Entry) (calib.Model, error) {
	s.Points.Set(entries)
	return s.recalibrate()
}

// AddCalibrationPoint appends one entry and refits.
func (s *Session) AddCalibrationPoint(e calib.Entry) (calib.Model, error) {
	s.Points.Add(e)
	return s.recalibrate()
}

// SetCalibrationPointEnabled toggles an entry and refits.
func (s *Session) SetCalibrationPointEnabled(index int, enabled bool) (calib.Model, error) {
	s.Points.SetEnabled(index, enabled)
	return s.recalibrate()
}

// UndoCalibration restores the previous point set and refits.
func (s *Session) UndoCalibration() (calib.Model, error) {
	s.Points.Undo()
	return s.recalibrate()
}

func (s *Session) recalibrate() (calib.Model, error) {
	entries := s.Points.Entries()
	points := s.Points.EnabledPoints()

	state := CalibrationState{
		Coefficients:   []float64{},
		Points:         entries,
		ResidualStatus: calib.ResidualUnknown,
	}

	if state.Points == nil {
		state.Points = []calib.Entry{}
	}

	model, err := s.Calibrator.Fit(points)
	if err != nil {
		msg := err.Error()
		state.LastError = &msg
		s.logger.Warn("calibration rejected", "points", len(points), "error", err)
	} else if model.Valid() {
		diag := model.Diagnose()
		state.IsCalibrated = true
		state.Coefficients = model.Coefficients
		state.Degree = model.Degree
		state.ResidualStatus = diag.ResidualStatus
		state.Diagnostics = &diag
	}

	if _, uerr := s.Store.Update("calibration", state, meta("calibration")); uerr != nil {
		return model, uerr
	}

	s.Bus.Emit(EventCalibrationChanged, state)

	return model, err
}

// SetReference stores an auxiliary trace for the subtraction modes. A nil
// trace clears it.
func (s *Session) SetReference(kind ReferenceKind, trace []float64) error {
	trace = slices.Clone(trace)

	s.mu.Lock()
	switch kind {
	case RefDark:
		s.refs.Dark = trace
	case RefReference:
		s.refs.Reference = trace
	case RefFlat:
		s.refs.Flat = trace
	default:
		s.mu.Unlock()
		return fmt.Errorf("session: unknown reference kind %q", kind)
	}

	refs := s.refs
	s.mu.Unlock()

	sub := SubtractionState{
		Mode:         frame.Mode(s.Store.Get("subtraction.mode").String()),
		HasDark:      refs.Dark != nil,
		HasReference: refs.Reference != nil,
		HasFlat:      refs.Flat != nil,
	}

	if _, err := s.Store.Update("subtraction", sub, meta("reference")); err != nil {
		return err
	}

	if kind == RefReference {
		now := s.now()
		ref := ReferenceState{Count: len(trace), HasReference: trace != nil, UpdatedAt: &now}
		if _, err := s.Store.Update("reference", ref, meta("reference")); err != nil {
			return err
		}
	}

	s.Bus.Emit(EventReferenceChanged, kind)

	return nil
}

// SetSubtractionMode selects how processed intensity is derived.
func (s *Session) SetSubtractionMode(mode string) error {
	m, err := frame.ParseMode(mode)
	if err != nil {
		return err
	}

	_, err = s.Store.Update("subtraction.mode", m, meta("subtraction"))

	return err
}

// PushFrame adapts raw with the active calibration, applies the subtraction
// mode, publishes the frame domain and submits the frame for analysis. It
// reports whether the worker accepted the frame. A subtraction mode whose
// reference is missing falls back to the raw trace.
func (s *Session) PushFrame(ctx context.Context, raw frame.Raw) (frame.Frame, bool, error) {
	f, err := frame.Adapt(raw, s.Calibrator.Model())
	if err != nil {
		return frame.Frame{}, false, err
	}

	mode := frame.Mode(s.Store.Get("subtraction.mode").String())
	if mode != "" && mode != frame.ModeRaw {
		s.mu.Lock()
		refs := s.refs
		s.mu.Unlock()

		processed, perr := frame.Process(mode, f.I, refs)
		if perr != nil {
			s.logger.Debug("subtraction skipped", "mode", mode, "error", perr)
		} else {
			f = f.WithProcessed(processed)
		}
	}

	m := meta("frame")
	if _, err := s.Store.Update("frame", FrameState{Latest: &f, Source: string(f.Source)}, m); err != nil {
		return f, false, err
	}

	accepted := s.Client.AnalyzeFrame(ctx, f)
	s.Bus.Emit(EventFrameUpdated, FrameUpdate{Frame: f, Accepted: accepted})

	return f, accepted, nil
}

// Run pushes every capture from src until it is exhausted or ctx ends.
// Captures without intensity are skipped.
func (s *Session) Run(ctx context.Context, src frame.Source) error {
	for {
		raw, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}

		if _, _, err := s.PushFrame(ctx, raw); err != nil {
			if errors.Is(err, frame.ErrNoIntensity) {
				s.logger.Warn("skipping capture", "error", err)
				continue
			}

			return err
		}
	}
}

func (s *Session) now() int64 {
	return timeNow().UnixMilli()
}

func meta(source string) map[string]string {
	return map[string]string{"source": source}
}
