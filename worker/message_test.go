package worker

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestKindNames(t *testing.T) {
	for k := KindPing; k <= KindError; k++ {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Fatalf("ParseKind(%q)=%v,%v", k.String(), got, ok)
		}
	}

	if _, ok := ParseKind("UNKNOWN"); ok {
		t.Fatal("UNKNOWN must not parse")
	}

	if got := Kind(200).String(); got != "Kind(200)" {
		t.Fatalf("String=%q", got)
	}
}

func TestKindResult(t *testing.T) {
	tests := []struct {
		req, res Kind
	}{
		{KindPing, KindPong},
		{KindInitLibraries, KindInitLibrariesResult},
		{KindSetPreset, KindSetPresetResult},
		{KindQueryLibrary, KindQueryLibraryResult},
		{KindAnalyzeFrame, KindAnalyzeResult},
	}

	for _, tt := range tests {
		got, ok := tt.req.Result()
		if !ok || got != tt.res {
			t.Fatalf("%s.Result()=%s,%v want=%s", tt.req, got, ok, tt.res)
		}

		if !tt.req.IsRequest() || tt.res.IsRequest() {
			t.Fatalf("IsRequest wrong for %s/%s", tt.req, tt.res)
		}
	}

	if KindError.IsRequest() || KindUnknown.IsRequest() {
		t.Fatal("ERROR and UNKNOWN are not requests")
	}
}

func TestEnvelopeWireShape(t *testing.T) {
	msg, err := NewMessage(KindSetPreset, 7, SetPreset{Preset: "lamp-hg"})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var wire map[string]any
	if err := msgpack.Unmarshal(data, &wire); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if wire["type"] != "SET_PRESET" {
		t.Fatalf("type=%v", wire["type"])
	}

	payload, ok := wire["payload"].(map[string]any)
	if !ok || payload["preset"] != "lamp-hg" {
		t.Fatalf("payload=%#v", wire["payload"])
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	var p SetPreset
	if err := got.Decode(&p); err != nil {
		t.Fatalf("payload decode: %v", err)
	}

	if got.Type != KindSetPreset || got.RequestID != 7 || p.Preset != "lamp-hg" {
		t.Fatalf("got=%+v payload=%+v", got, p)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	data, err := msgpack.Marshal(map[string]any{"type": "REBOOT", "requestId": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if msg.Type != KindUnknown || msg.RequestID != 3 {
		t.Fatalf("msg=%+v", msg)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte{0xc1}); !errors.Is(err, ErrCodec) {
		t.Fatalf("err=%v want ErrCodec", err)
	}
}

func TestKindJSON(t *testing.T) {
	data, err := json.Marshal(Event{Type: KindAnalyzeResult, RequestID: 2})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if !bytes.Contains(data, []byte(`"type":"ANALYZE_RESULT"`)) {
		t.Fatalf("json=%s", data)
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type != KindAnalyzeResult {
		t.Fatalf("ev=%+v err=%v", ev, err)
	}
}
