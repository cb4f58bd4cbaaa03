package worker

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cwbudde/algo-spectra/analysis"
	"github.com/cwbudde/algo-spectra/frame"
	"github.com/cwbudde/algo-spectra/lines"
)

// ErrCodec wraps message encoding and decoding failures.
var ErrCodec = errors.New("worker: codec failure")

// Message is the envelope exchanged between Client and Host. Payload holds
// the msgpack encoding of the kind-specific payload struct.
type Message struct {
	Type      Kind               `json:"type"`
	RequestID uint64             `json:"requestId"`
	Payload   msgpack.RawMessage `json:"payload,omitempty"`
}

// Ping is the PING and PONG payload. TS is a Unix millisecond timestamp.
type Ping struct {
	TS int64 `json:"ts"`
}

// Manifest selects the line library to load. Inline Lines win over Path;
// an empty manifest loads the built-in table.
type Manifest struct {
	Path  string       `json:"path,omitempty"`
	Lines []lines.Line `json:"lines,omitempty"`
}

// InitLibraries is the INIT_LIBRARIES payload.
type InitLibraries struct {
	Manifest *Manifest `json:"manifest,omitempty"`
}

// InitLibrariesResult is the INIT_LIBRARIES_RESULT payload.
type InitLibrariesResult struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

// SetPreset is the SET_PRESET payload.
type SetPreset struct {
	Preset string `json:"preset"`
}

// SetPresetResult is the SET_PRESET_RESULT payload. Preset is the id that
// is active after the request; Known is false when the requested id was
// not recognised and the general preset was selected instead.
type SetPresetResult struct {
	OK     bool   `json:"ok"`
	Preset string `json:"preset"`
	Known  bool   `json:"known"`
}

// QueryLibrary is the QUERY_LIBRARY payload.
type QueryLibrary struct {
	MinNm float64 `json:"minNm"`
	MaxNm float64 `json:"maxNm"`
	Query string  `json:"query,omitempty"`
	Limit int     `json:"limit,omitempty"`
}

// QueryLibraryResult is the QUERY_LIBRARY_RESULT payload.
type QueryLibraryResult struct {
	Hits  []lines.Line `json:"hits"`
	Count int          `json:"count"`
	MinNm float64      `json:"minNm"`
	MaxNm float64      `json:"maxNm"`
}

// AnalyzeFrame is the ANALYZE_FRAME payload.
type AnalyzeFrame struct {
	Frame   frame.Frame      `json:"frame"`
	Options analysis.Options `json:"options"`
}

// ErrorPayload is the ERROR payload.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewMessage builds a message of kind k carrying payload. A nil payload
// leaves Payload empty.
func NewMessage(k Kind, requestID uint64, payload any) (Message, error) {
	msg := Message{Type: k, RequestID: requestID}
	if payload == nil {
		return msg, nil
	}

	raw, err := marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s payload: %w", ErrCodec, k, err)
	}

	msg.Payload = raw

	return msg, nil
}

func errorMessage(requestID uint64, text string) Message {
	msg, err := NewMessage(KindError, requestID, ErrorPayload{Message: text})
	if err != nil {
		return Message{Type: KindError, RequestID: requestID}
	}

	return msg
}

// Decode unpacks the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}

	if err := unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %w", ErrCodec, m.Type, err)
	}

	return nil
}

// Encode serialises m for a transport.
func Encode(m Message) ([]byte, error) {
	data, err := marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %w", ErrCodec, m.Type, err)
	}

	return data, nil
}

// Decode parses a message produced by Encode.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: decode: %w", ErrCodec, err)
	}

	return m, nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")

	return dec.Decode(v)
}
