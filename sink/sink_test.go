package sink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/cwbudde/algo-spectra/bus"
)

type recordSink struct {
	mu   sync.Mutex
	msgs []Message
	got  chan struct{}
}

func newRecordSink() *recordSink { return &recordSink{got: make(chan struct{}, 16)} }

func (r *recordSink) Publish(_ context.Context, msg Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	r.got <- struct{}{}

	return nil
}

func (r *recordSink) Close() error { return nil }

func wait(t *testing.T, ch <-chan struct{}) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestForward(t *testing.T) {
	b := bus.New()
	rec := newRecordSink()

	f := Forward(context.Background(), b, []Sink{rec}, WithEvents("worker:result"))
	defer f.Stop()

	b.Emit("worker:result", map[string]int{"hits": 2})
	b.Emit("worker:error", "ignored")
	wait(t, rec.got)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if len(rec.msgs) != 1 || rec.msgs[0].Type != "worker:result" || rec.msgs[0].Timestamp == 0 {
		t.Fatalf("msgs=%+v", rec.msgs)
	}
}

func TestForwardStopUnsubscribes(t *testing.T) {
	b := bus.New()

	f := Forward(context.Background(), b, nil)
	if got := b.Count("worker:result"); got != 1 {
		t.Fatalf("listeners=%d", got)
	}

	f.Stop()

	if got := b.Count("worker:result"); got != 0 {
		t.Fatalf("listeners after Stop=%d", got)
	}
}

type blockingSink struct{ release chan struct{} }

func (s blockingSink) Publish(ctx context.Context, _ Message) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}

	return nil
}

func (blockingSink) Close() error { return nil }

func TestForwardDropsWhenFull(t *testing.T) {
	b := bus.New()
	s := blockingSink{release: make(chan struct{})}

	f := Forward(context.Background(), b, []Sink{s}, WithEvents("e"), WithQueueSize(1))

	for range 10 {
		b.Emit("e", nil)
	}

	if f.Dropped() < 8 {
		t.Fatalf("dropped=%d want>=8", f.Dropped())
	}

	close(s.release)
	f.Stop()
}

func TestWebSocketBroadcast(t *testing.T) {
	ws := NewWebSocket(nil, nil)
	srv := httptest.NewServer(ws)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ws.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}

		time.Sleep(time.Millisecond)
	}

	if err := ws.Publish(context.Background(), Message{Type: "worker:result", Timestamp: 7, Payload: []int{1, 2}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	kind, data, err := conn.ReadMessage()
	if err != nil || kind != websocket.TextMessage {
		t.Fatalf("ReadMessage kind=%d err=%v", kind, err)
	}

	var got Message
	if err := json.Unmarshal(data, &got); err != nil || got.Type != "worker:result" || got.Timestamp != 7 {
		t.Fatalf("got=%+v err=%v (%s)", got, err, data)
	}

	if err := ws.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := ws.Publish(context.Background(), Message{Type: "x"}); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("Publish after Close err=%v", err)
	}
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)

	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakeMQTTClient struct {
	mqtt.Client

	fail error
	sent []published
}

func (c *fakeMQTTClient) Connect() mqtt.Token { return newFakeToken(c.fail) }

func (c *fakeMQTTClient) IsConnected() bool { return true }

func (c *fakeMQTTClient) Disconnect(uint) {}

func (c *fakeMQTTClient) Publish(topic string, qos byte, retain bool, payload any) mqtt.Token {
	c.sent = append(c.sent, published{topic: topic, qos: qos, retain: retain, payload: payload.([]byte)})
	return newFakeToken(c.fail)
}

func TestMQTTPublish(t *testing.T) {
	m := NewMQTT(MQTTConfig{Broker: "localhost:1883", Topic: "lab/spectra/", QoS: 1}, nil)
	fake := &fakeMQTTClient{}
	m.client = fake

	ctx := context.Background()

	if err := m.Publish(ctx, Message{Type: "worker:result"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err=%v want ErrNotConnected", err)
	}

	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := m.Publish(ctx, Message{Type: "worker:result", Payload: "x"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(fake.sent) != 1 || fake.sent[0].topic != "lab/spectra/worker/result" || fake.sent[0].qos != 1 {
		t.Fatalf("sent=%+v", fake.sent)
	}

	fake.fail = errors.New("broker said no")
	if err := m.Publish(ctx, Message{Type: "mode:changed"}); err == nil {
		t.Fatal("publish error swallowed")
	}

	st := m.Stats()
	if !st.Connected || st.Published["lab/spectra/worker/result"] != 1 || st.Errors != 2 {
		t.Fatalf("stats=%+v", st)
	}

	if err := m.Close(); err != nil || m.Stats().Connected {
		t.Fatalf("Close err=%v connected=%v", err, m.Stats().Connected)
	}
}

func TestBrokerURL(t *testing.T) {
	if got := brokerURL("host:1883"); got != "tcp://host:1883" {
		t.Fatalf("got=%q", got)
	}

	if got := brokerURL("ssl://host:8883"); got != "ssl://host:8883" {
		t.Fatalf("got=%q", got)
	}
}
