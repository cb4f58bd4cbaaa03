package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/algo-spectra/analysis"
	"github.com/cwbudde/algo-spectra/lines"
)

// HostOption configures a Host.
type HostOption func(*Host)

// WithHostLogger sets the host logger.
func WithHostLogger(logger *slog.Logger) HostOption {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithPresets adds presets on top of the built-in set.
func WithPresets(extra ...analysis.Preset) HostOption {
	return func(h *Host) {
		h.state.Presets = h.state.Presets.Merge(extra...)
	}
}

// WithLibrary preloads a line library.
func WithLibrary(lib *lines.Library) HostOption {
	return func(h *Host) {
		if lib != nil {
			h.state.Library = lib
			h.state.LibrariesLoaded = true
		}
	}
}

// Host executes worker requests against the pipeline state it owns. A Host
// is driven by one message loop; its methods are not safe for concurrent
// use.
type Host struct {
	state  *analysis.State
	logger *slog.Logger
	now    func() time.Time
}

// NewHost returns a Host with the built-in presets and no library loaded.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		state:  analysis.NewState(),
		logger: slog.Default(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// State returns the pipeline state. It must only be read from the goroutine
// driving the host.
func (h *Host) State() *analysis.State { return h.state }

// Handle answers one request. Failures, including panics inside the
// pipeline, become ERROR messages carrying the request id.
func (h *Host) Handle(ctx context.Context, msg Message) (resp Message) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("worker request panicked", "type", msg.Type, "requestId", msg.RequestID, "panic", r)
			resp = errorMessage(msg.RequestID, fmt.Sprint(r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return errorMessage(msg.RequestID, err.Error())
	}

	var (
		payload any
		err     error
	)

	switch msg.Type {
	case KindPing:
		payload, err = h.ping(msg)
	case KindInitLibraries:
		payload, err = h.initLibraries(msg)
	case KindSetPreset:
		payload, err = h.setPreset(msg)
	case KindQueryLibrary:
		payload, err = h.queryLibrary(msg)
	case KindAnalyzeFrame:
		payload, err = h.analyzeFrame(msg)
	case KindUnknown, KindPong, KindInitLibrariesResult, KindSetPresetResult,
		KindQueryLibraryResult, KindAnalyzeResult, KindError:
		err = fmt.Errorf("unknown message type: %s", msg.Type)
	default:
		err = fmt.Errorf("unknown message type: %s", msg.Type)
	}

	if err != nil {
		h.logger.Warn("worker request failed", "type", msg.Type, "requestId", msg.RequestID, "error", err)
		return errorMessage(msg.RequestID, err.Error())
	}

	kind, _ := msg.Type.Result()

	resp, err = NewMessage(kind, msg.RequestID, payload)
	if err != nil {
		return errorMessage(msg.RequestID, err.Error())
	}

	return resp
}

// HandleBytes decodes one encoded request, handles it and encodes the
// response. Undecodable input yields an ERROR with request id 0.
func (h *Host) HandleBytes(ctx context.Context, data []byte) ([]byte, error) {
	msg, err := Decode(data)
	if err != nil {
		return Encode(errorMessage(0, err.Error()))
	}

	return Encode(h.Handle(ctx, msg))
}

func (h *Host) ping(msg Message) (any, error) {
	var p Ping
	if err := msg.Decode(&p); err != nil {
		return nil, err
	}

	if p.TS == 0 {
		p.TS = h.now().UnixMilli()
	}

	return p, nil
}

func (h *Host) initLibraries(msg Message) (any, error) {
	var p InitLibraries
	if err := msg.Decode(&p); err != nil {
		return nil, err
	}

	table, err := loadManifest(p.Manifest)
	if err != nil {
		return nil, err
	}

	lib, err := lines.NewLibrary(table)
	if err != nil {
		return nil, err
	}

	h.state.Library = lib
	h.state.LibrariesLoaded = true
	h.logger.Info("line library loaded", "lines", lib.Len())

	return InitLibrariesResult{OK: true, Count: lib.Len()}, nil
}

func loadManifest(m *Manifest) ([]lines.Line, error) {
	switch {
	case m == nil:
		return lines.Builtin(), nil
	case len(m.Lines) > 0:
		return m.Lines, nil
	case m.Path != "":
		return lines.LoadFile(m.Path)
	default:
		return lines.Builtin(), nil
	}
}

func (h *Host) setPreset(msg Message) (any, error) {
	var p SetPreset
	if err := msg.Decode(&p); err != nil {
		return nil, err
	}

	known := h.state.Presets.Has(p.Preset)
	if known {
		h.state.PresetID = p.Preset
	} else {
		h.state.PresetID = analysis.PresetGeneral
	}

	return SetPresetResult{OK: true, Preset: h.state.PresetID, Known: known}, nil
}

func (h *Host) queryLibrary(msg Message) (any, error) {
	var p QueryLibrary
	if err := msg.Decode(&p); err != nil {
		return nil, err
	}

	hits := h.state.Library.Query(lines.Query{
		MinNm: p.MinNm,
		MaxNm: p.MaxNm,
		Text:  p.Query,
		Limit: p.Limit,
	})
	if hits == nil {
		hits = []lines.Line{}
	}

	return QueryLibraryResult{Hits: hits, Count: len(hits), MinNm: p.MinNm, MaxNm: p.MaxNm}, nil
}

func (h *Host) analyzeFrame(msg Message) (any, error) {
	var p AnalyzeFrame
	if err := msg.Decode(&p); err != nil {
		return nil, err
	}

	return analysis.Analyze(p.Frame, h.state, p.Options)
}
