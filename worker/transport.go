package worker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

var (
	// ErrClosed is returned by Post after the transport has been closed.
	ErrClosed = errors.New("worker: transport closed")
	// ErrWorkerUnavailable reports that no worker could be started.
	ErrWorkerUnavailable = errors.New("worker: unavailable")
	// ErrAnalysisTimeout reports an analysis request that got no answer in
	// time.
	ErrAnalysisTimeout = errors.New("worker: analysis timeout")
	// ErrFrameTooLarge rejects stream frames above MaxFrameSize.
	ErrFrameTooLarge = errors.New("worker: frame too large")
)

// MaxFrameSize bounds a single length-prefixed stream frame.
const MaxFrameSize = 64 << 20

// Transport moves messages between a Client and a Host.
type Transport interface {
	// Post sends a request to the host.
	Post(ctx context.Context, msg Message) error
	// Receive yields host responses. The channel is closed when the
	// transport shuts down.
	Receive() <-chan Message
	// Close stops the transport. It is safe to call more than once.
	Close() error
}

// Factory creates a fresh transport. The Client calls it on Start.
type Factory func(ctx context.Context) (Transport, error)

// LocalFactory returns a Factory running a new Host on a goroutine per
// transport.
func LocalFactory(opts ...HostOption) Factory {
	return func(context.Context) (Transport, error) {
		return NewLocal(NewHost(opts...)), nil
	}
}

// Local runs a Host on its own goroutine. Messages are encoded on the way
// in and decoded on the way out so no memory is shared with the host.
type Local struct {
	host *Host
	in   chan []byte
	out  chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewLocal starts host on a goroutine.
func NewLocal(host *Host) *Local {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Local{
		host:   host,
		in:     make(chan []byte, 16),
		out:    make(chan Message, 16),
		ctx:    ctx,
		cancel: cancel,
	}

	t.wg.Add(1)

	go t.loop()

	return t
}

func (t *Local) loop() {
	defer t.wg.Done()
	defer close(t.out)

	for {
		select {
		case <-t.ctx.Done():
			return
		case data := <-t.in:
			resp, err := t.host.HandleBytes(t.ctx, data)
			if err != nil {
				t.host.logger.Error("encode worker response", "error", err)
				continue
			}

			msg, err := Decode(resp)
			if err != nil {
				t.host.logger.Error("decode worker response", "error", err)
				continue
			}

			select {
			case t.out <- msg:
			case <-t.ctx.Done():
				return
			}
		}
	}
}

// Post implements Transport.
func (t *Local) Post(ctx context.Context, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	select {
	case <-t.ctx.Done():
		return ErrClosed
	default:
	}

	select {
	case t.in <- data:
		return nil
	case <-t.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive implements Transport.
func (t *Local) Receive() <-chan Message { return t.out }

// Close implements Transport.
func (t *Local) Close() error {
	t.once.Do(func() {
		t.cancel()
		t.wg.Wait()
	})

	return nil
}

// WriteFrame writes data with a 4-byte big-endian length prefix.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}

	return nil
}

// ReadFrame reads one frame written by WriteFrame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(hdr[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}

	return data, nil
}

// Stream is a Transport over a byte stream, such as a pipe to a worker
// process or a network connection served by Host.Serve.
type Stream struct {
	conn   io.ReadWriteCloser
	out    chan Message
	logger *slog.Logger

	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

// NewStream starts reading responses from conn.
func NewStream(conn io.ReadWriteCloser, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}

	t := &Stream{
		conn:   conn,
		out:    make(chan Message, 16),
		logger: logger,
		done:   make(chan struct{}),
	}

	go t.readLoop()

	return t
}

func (t *Stream) readLoop() {
	defer close(t.out)

	for {
		data, err := ReadFrame(t.conn)
		if err != nil {
			select {
			case <-t.done:
			default:
				if !errors.Is(err, io.EOF) {
					t.logger.Error("worker stream read failed", "error", err)
				}
			}

			return
		}

		msg, err := Decode(data)
		if err != nil {
			t.logger.Error("worker stream decode failed", "error", err)
			continue
		}

		select {
		case t.out <- msg:
		case <-t.done:
			return
		}
	}
}

// Post implements Transport.
func (t *Stream) Post(ctx context.Context, msg Message) error {
	select {
	case <-t.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := Encode(msg)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	return WriteFrame(t.conn, data)
}

// Receive implements Transport.
func (t *Stream) Receive() <-chan Message { return t.out }

// Close implements Transport.
func (t *Stream) Close() error {
	var err error

	t.once.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})

	return err
}

// Serve answers framed requests read from conn until the stream ends or ctx
// is cancelled.
func (h *Host) Serve(ctx context.Context, conn io.ReadWriter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		resp, err := h.HandleBytes(ctx, data)
		if err != nil {
			return err
		}

		if err := WriteFrame(conn, resp); err != nil {
			return err
		}
	}
}
