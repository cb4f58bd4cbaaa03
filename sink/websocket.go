package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsSendBuffer = 16
)

// ErrSinkClosed is returned by Publish after Close.
var ErrSinkClosed = errors.New("sink: closed")

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) stop() {
	c.once.Do(func() { close(c.send) })
}

// WebSocket broadcasts messages as JSON text frames to every connected
// client. Each client has a bounded send buffer; a client that falls behind
// loses messages instead of stalling the others.
type WebSocket struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	dropped uint64
}

// NewWebSocket returns a sink that accepts connections through ServeHTTP.
// A nil checkOrigin accepts every origin.
func NewWebSocket(logger *slog.Logger, checkOrigin func(*http.Request) bool) *WebSocket {
	if logger == nil {
		logger = slog.Default()
	}

	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &WebSocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeHTTP upgrades the request and streams messages until the peer goes
// away.
func (w *WebSocket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		_ = conn.Close()

		return
	}

	w.clients[c] = struct{}{}
	w.mu.Unlock()

	w.logger.Info("websocket client connected", "remote", r.RemoteAddr)

	go w.writeLoop(c)

	w.readLoop(c)

	w.mu.Lock()
	delete(w.clients, c)
	w.mu.Unlock()

	c.stop()
	w.logger.Info("websocket client disconnected", "remote", r.RemoteAddr)
}

// readLoop discards inbound frames and returns when the connection fails.
func (w *WebSocket) readLoop(c *wsClient) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Debug("websocket read failed", "error", err)
			}

			return
		}
	}
}

func (w *WebSocket) writeLoop(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Publish implements Sink.
func (w *WebSocket) Publish(_ context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("sink: encode %s: %w", msg.Type, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrSinkClosed
	}

	for c := range w.clients {
		select {
		case c.send <- data:
		default:
			w.dropped++
		}
	}

	return nil
}

// Clients returns the number of connected clients.
func (w *WebSocket) Clients() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.clients)
}

// Dropped returns how many per-client messages were discarded.
func (w *WebSocket) Dropped() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.dropped
}

// Close disconnects every client and rejects further messages.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true

	for c := range w.clients {
		c.stop()
	}

	return nil
}
