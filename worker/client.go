package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-spectra/analysis"
	"github.com/cwbudde/algo-spectra/bus"
	"github.com/cwbudde/algo-spectra/frame"
	"github.com/cwbudde/algo-spectra/lines"
	"github.com/cwbudde/algo-spectra/store"
)

// Client defaults.
const (
	DefaultThrottle = 300 * time.Millisecond
	DefaultTimeout  = 3 * time.Second
)

// DefaultEnabledModes are the application modes in which frames are
// analysed.
var DefaultEnabledModes = []string{"LAB", "ASTRO"}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithThrottle sets the minimum spacing between accepted analysis requests.
func WithThrottle(d time.Duration) ClientOption {
	return func(c *Client) {
		if d >= 0 {
			c.throttle = d
		}
	}
}

// WithTimeout sets how long an analysis request may stay unanswered.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithGate replaces the default enablement check, which reads
// worker.enabled and appMode from the store.
func WithGate(gate func() bool) ClientOption {
	return func(c *Client) { c.gate = gate }
}

// WithEnabledModes sets the application modes the default gate accepts.
func WithEnabledModes(modes ...string) ClientOption {
	return func(c *Client) { c.enabledModes = slices.Clone(modes) }
}

// WithClock sets the time source.
func WithClock(clock Clock) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithClientLogger sets the client logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStableFilter replaces the stable-hit filter used when
// analysis.stableHits is set in the store.
func WithStableFilter(f *StableFilter) ClientOption {
	return func(c *Client) {
		if f != nil {
			c.stable = f
		}
	}
}

type field struct {
	path  string
	value any
}

// Client drives a worker through a Transport and republishes responses
// into the store and bus. At most one analysis request is in flight;
// results for any other request id are dropped and counted.
type Client struct {
	id           string
	factory      Factory
	store        *store.Store
	bus          *bus.Bus
	logger       *slog.Logger
	clock        Clock
	throttle     time.Duration
	timeout      time.Duration
	gate         func() bool
	enabledModes []string

	mu          sync.Mutex
	transport   Transport
	unavailable bool
	status      Status
	nextID      uint64
	lastSubmit  time.Time
	slot        Slot
	timer       Timer
	timeouts    uint64
	stale       uint64
	rateCount   int
	rateStart   time.Time
	stable      *StableFilter

	outbox   []func()
	flushing bool
}

// NewClient returns an idle client. The store and bus may be nil.
func NewClient(factory Factory, st *store.Store, b *bus.Bus, opts ...ClientOption) *Client {
	c := &Client{
		id:           uuid.NewString(),
		factory:      factory,
		store:        st,
		bus:          b,
		logger:       slog.Default(),
		clock:        systemClock{},
		throttle:     DefaultThrottle,
		timeout:      DefaultTimeout,
		enabledModes: slices.Clone(DefaultEnabledModes),
		status:       StatusIdle,
		stable:       NewStableFilter(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = c.logger.With("client", c.id)

	return c
}

// ID returns the client instance id.
func (c *Client) ID() string { return c.id }

// Status returns the current lifecycle state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

// InFlight returns the id of the outstanding analysis request.
func (c *Client) InFlight() (uint64, bool) { return c.slot.Current() }

// Start creates the transport and pings the host. It is a no-op when the
// transport already exists. A factory failure leaves the client in the
// error state and every later analysis call a no-op until Start succeeds.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.transport != nil {
		c.mu.Unlock()
		return nil
	}

	c.setStatus(StatusStarting, field{"worker.clientId", c.id})
	c.mu.Unlock()
	c.flush()

	t, err := c.factory(ctx)

	c.mu.Lock()

	if err != nil {
		c.unavailable = true
		c.fail(0, fmt.Errorf("%w: %w", ErrWorkerUnavailable, err))
		c.mu.Unlock()
		c.flush()

		return fmt.Errorf("%w: %w", ErrWorkerUnavailable, err)
	}

	if c.transport != nil {
		c.mu.Unlock()
		return t.Close()
	}

	c.transport = t
	c.unavailable = false
	c.mu.Unlock()

	go c.receive(t)

	_, err = c.Ping(ctx)

	return err
}

// Stop closes the transport and returns the client to idle. An outstanding
// analysis request is forgotten.
func (c *Client) Stop() error {
	c.mu.Lock()
	t := c.transport
	c.transport = nil
	c.clearInFlight()
	c.slot.Reset()
	c.setStatus(StatusIdle)
	c.mu.Unlock()
	c.flush()

	if t == nil {
		return nil
	}

	return t.Close()
}

// Ping sends PING and returns its request id.
func (c *Client) Ping(ctx context.Context) (uint64, error) {
	return c.send(ctx, KindPing, Ping{TS: c.clock.Now().UnixMilli()})
}

// InitLibraries asks the host to load the line library named by m. A nil
// manifest loads the built-in table.
func (c *Client) InitLibraries(ctx context.Context, m *Manifest) (uint64, error) {
	return c.send(ctx, KindInitLibraries, InitLibraries{Manifest: m})
}

// SetPreset selects the matching preset on the host.
func (c *Client) SetPreset(ctx context.Context, id string) (uint64, error) {
	return c.send(ctx, KindSetPreset, SetPreset{Preset: id})
}

// QueryLibrary asks the host for library lines.
func (c *Client) QueryLibrary(ctx context.Context, q lines.Query) (uint64, error) {
	return c.send(ctx, KindQueryLibrary, QueryLibrary{MinNm: q.MinNm, MaxNm: q.MaxNm, Query: q.Text, Limit: q.Limit})
}

// AnalyzeFrame submits f for analysis. It returns false when the client is
// gated off or unavailable, when a request is already in flight (counted in
// droppedJobs), or when the previous accepted call is more recent than the
// throttle interval.
func (c *Client) AnalyzeFrame(ctx context.Context, f frame.Frame) bool {
	if !c.allowed() {
		return false
	}

	t, err := c.ensure(ctx)
	if err != nil {
		return false
	}

	opts := c.analysisOptions()

	c.mu.Lock()
	now := c.clock.Now()

	if _, busy := c.slot.Current(); !busy && now.Sub(c.lastSubmit) < c.throttle {
		c.mu.Unlock()
		return false
	}

	id := c.nextID + 1
	if !c.slot.Acquire(id) {
		c.queueFields(field{"worker.droppedJobs", c.slot.Dropped()})
		c.mu.Unlock()
		c.flush()

		return false
	}

	c.nextID = id
	c.lastSubmit = now
	c.setStatus(StatusRunning)
	c.timer = c.clock.AfterFunc(c.timeout, func() { c.expire(id) })
	c.mu.Unlock()
	c.flush()

	msg, err := NewMessage(KindAnalyzeFrame, id, AnalyzeFrame{Frame: f, Options: opts})
	if err == nil {
		err = t.Post(ctx, msg)
	}

	if err != nil {
		c.mu.Lock()
		if c.slot.Release(id) {
			c.clearInFlight()
		}
		c.fail(id, err)
		c.mu.Unlock()
		c.flush()

		return false
	}

	return true
}

func (c *Client) allowed() bool {
	if c.gate != nil {
		return c.gate()
	}

	if c.store == nil {
		return true
	}

	if enabled := c.store.Get("worker.enabled"); enabled.Exists() && !enabled.Bool() {
		return false
	}

	if mode := c.store.Get("appMode"); mode.Exists() && !slices.Contains(c.enabledModes, mode.String()) {
		return false
	}

	return true
}

func (c *Client) analysisOptions() analysis.Options {
	if c.store == nil {
		return analysis.Options{}
	}

	return analysis.Options{
		IncludeWeakPeaks:   c.store.Get("analysis.includeWeakPeaks").Bool(),
		QualityChecks:      c.store.Get("analysis.qualityChecks").Bool(),
		ProminenceWindowPx: int(c.store.Get("peaks.prominenceWindowPx").Int()),
	}
}

func (c *Client) ensure(ctx context.Context) (Transport, error) {
	c.mu.Lock()
	t, unavailable := c.transport, c.unavailable
	c.mu.Unlock()

	switch {
	case t != nil:
		return t, nil
	case unavailable:
		return nil, ErrWorkerUnavailable
	}

	if err := c.Start(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return nil, ErrWorkerUnavailable
	}

	return c.transport, nil
}

func (c *Client) send(ctx context.Context, kind Kind, payload any) (uint64, error) {
	t, err := c.ensure(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	msg, err := NewMessage(kind, id, payload)
	if err == nil {
		err = t.Post(ctx, msg)
	}

	if err != nil {
		c.mu.Lock()
		c.fail(id, err)
		c.mu.Unlock()
		c.flush()

		return id, err
	}

	return id, nil
}

func (c *Client) expire(id uint64) {
	c.mu.Lock()
	if !c.slot.Release(id) {
		c.mu.Unlock()
		return
	}

	c.timer = nil
	c.timeouts++
	c.setStatus(StatusError,
		field{"worker.lastError", ErrAnalysisTimeout.Error()},
		field{"worker.timeouts", c.timeouts})
	c.queueEmit(EventTimeout, Event{Type: KindAnalyzeFrame, RequestID: id})
	c.mu.Unlock()

	c.logger.Warn("analysis request timed out", "requestId", id, "timeout", c.timeout)
	c.flush()
}

func (c *Client) receive(t Transport) {
	for msg := range t.Receive() {
		c.handle(msg)
	}

	c.mu.Lock()
	if c.transport != t {
		c.mu.Unlock()
		return
	}

	c.transport = nil
	c.clearInFlight()
	c.slot.Reset()
	c.fail(0, ErrClosed)
	c.mu.Unlock()
	c.flush()
}

func (c *Client) handle(msg Message) {
	switch msg.Type {
	case KindPong:
		var p Ping
		c.decoded(msg, &p, func() {
			c.setStatus(c.settledStatus(),
				field{"worker.lastPingAt", c.clock.Now().UnixMilli()},
				field{"worker.lastError", nil})
			c.queueEmit(EventReady, Event{Type: msg.Type, RequestID: msg.RequestID, Payload: p})
		})
	case KindInitLibrariesResult:
		var p InitLibrariesResult
		c.decoded(msg, &p, func() {
			c.setStatus(c.settledStatus(), field{"worker.librariesLoaded", p.OK})
			c.queueEmit(EventLibraries, Event{Type: msg.Type, RequestID: msg.RequestID, Payload: p})
		})
	case KindSetPresetResult:
		var p SetPresetResult
		c.decoded(msg, &p, func() {
			c.queueFields(field{"analysis.presetId", p.Preset})
			c.queueEmit(EventPreset, Event{Type: msg.Type, RequestID: msg.RequestID, Payload: p})
		})
	case KindQueryLibraryResult:
		var p QueryLibraryResult
		c.decoded(msg, &p, func() {
			c.queueFields(
				field{"analysis.libraryQueryHits", p.Hits},
				field{"analysis.libraryQueryCount", p.Count},
				field{"analysis.libraryQueryMinNm", p.MinNm},
				field{"analysis.libraryQueryMaxNm", p.MaxNm})
			c.queueEmit(EventQuery, Event{Type: msg.Type, RequestID: msg.RequestID, Payload: p})
		})
	case KindAnalyzeResult:
		c.handleResult(msg)
	case KindError:
		var p ErrorPayload
		c.decoded(msg, &p, func() {
			if c.slot.Release(msg.RequestID) {
				c.clearInFlight()
			}

			c.setStatus(StatusError, field{"worker.lastError", p.Message})
			c.queueEmit(EventError, Event{Type: msg.Type, RequestID: msg.RequestID, Payload: p})
		})
	case KindUnknown, KindPing, KindInitLibraries, KindSetPreset, KindQueryLibrary, KindAnalyzeFrame:
		c.logger.Warn("unexpected worker message", "type", msg.Type, "requestId", msg.RequestID)
	default:
		c.logger.Warn("unexpected worker message", "type", msg.Type, "requestId", msg.RequestID)
	}
}

// decoded unpacks msg into v and runs apply under the client lock. Decoding
// failures are reported like ERROR responses.
func (c *Client) decoded(msg Message, v any, apply func()) {
	err := msg.Decode(v)

	c.mu.Lock()
	if err != nil {
		c.fail(msg.RequestID, err)
	} else {
		apply()
	}
	c.mu.Unlock()
	c.flush()
}

func (c *Client) handleResult(msg Message) {
	var res analysis.Result
	decodeErr := msg.Decode(&res)

	if res.TopHits == nil {
		res.TopHits = []analysis.Hit{}
	}

	if res.QCFlags == nil {
		res.QCFlags = []string{}
	}

	for i := range res.TopHits {
		if res.TopHits[i].Element == "" {
			res.TopHits[i].Element = lines.InferElement(res.TopHits[i].Species)
		}
	}

	stable := c.store != nil && c.store.Get("analysis.stableHits").Bool()

	c.mu.Lock()
	defer c.flush()
	defer c.mu.Unlock()

	if !c.slot.Release(msg.RequestID) {
		c.stale++
		c.queueFields(field{"worker.staleResults", c.stale})
		c.logger.Debug("dropping stale analysis result", "requestId", msg.RequestID)

		return
	}

	c.clearInFlight()

	if decodeErr != nil {
		c.fail(msg.RequestID, decodeErr)
		return
	}

	now := c.clock.Now()
	hz := c.tick(now)

	var shown any = res.TopHits
	if stable {
		shown = c.stable.Add(now, res.TopHits)
	}

	updates := []field{
		{"worker.lastResultAt", now.UnixMilli()},
		{"worker.lastError", nil},
	}
	if hz >= 0 {
		updates = append(updates, field{"worker.analysisHz", hz})
	}

	c.setStatus(StatusReady, updates...)
	c.queueFields(
		field{"analysis.rawTopHits", res.TopHits},
		field{"analysis.topHits", shown},
		field{"analysis.offsetNm", res.OffsetNm},
		field{"analysis.qcFlags", res.QCFlags},
		field{"analysis.confidence", res.Confidence})
	c.queueEmit(EventResult, Event{Type: msg.Type, RequestID: msg.RequestID, Payload: res})
}

// tick counts a result and returns the rate over the current window once
// it spans at least a second, or -1 while the window is still open.
func (c *Client) tick(now time.Time) float64 {
	if c.rateStart.IsZero() {
		c.rateStart = now
	}

	c.rateCount++

	elapsed := now.Sub(c.rateStart)
	if elapsed < time.Second {
		return -1
	}

	hz := math.Round(float64(c.rateCount)/elapsed.Seconds()*100) / 100
	c.rateCount = 0
	c.rateStart = now

	return hz
}

// settledStatus keeps running while an analysis is outstanding.
func (c *Client) settledStatus() Status {
	if _, busy := c.slot.Current(); busy {
		return StatusRunning
	}

	return StatusReady
}

func (c *Client) clearInFlight() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// fail records err as the last error and emits worker:error. Callers hold
// c.mu.
func (c *Client) fail(id uint64, err error) {
	c.setStatus(StatusError, field{"worker.lastError", err.Error()})
	c.queueEmit(EventError, Event{Type: KindError, RequestID: id, Payload: ErrorPayload{Message: err.Error()}})
	c.logger.Error("worker request failed", "requestId", id, "error", err)
}

// setStatus changes the status and queues it with extra fields. Callers
// hold c.mu.
func (c *Client) setStatus(s Status, extra ...field) {
	c.status = s
	c.queueFields(append([]field{{"worker.status", s}}, extra...)...)
}

func (c *Client) queueFields(fields ...field) {
	if c.store == nil {
		return
	}

	c.outbox = append(c.outbox, func() {
		for _, f := range fields {
			if _, err := c.store.Update(f.path, f.value, c.meta()); err != nil {
				c.logger.Error("store update failed", "path", f.path, "error", err)
			}
		}
	})
}

func (c *Client) queueEmit(event string, payload Event) {
	if c.bus == nil {
		return
	}

	c.outbox = append(c.outbox, func() { c.bus.Emit(event, payload) })
}

func (c *Client) meta() map[string]string {
	return map[string]string{"source": "worker", "client": c.id}
}

// flush runs queued store updates and events in order, outside c.mu. A
// listener that calls back into the client queues more work, which the
// active flush picks up.
func (c *Client) flush() {
	c.mu.Lock()
	if c.flushing {
		c.mu.Unlock()
		return
	}

	c.flushing = true

	for len(c.outbox) > 0 {
		batch := c.outbox
		c.outbox = nil
		c.mu.Unlock()

		for _, fn := range batch {
			fn()
		}

		c.mu.Lock()
	}

	c.flushing = false
	c.mu.Unlock()
}
