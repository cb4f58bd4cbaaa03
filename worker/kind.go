package worker

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind is the closed set of message types. On the wire it is the upper-case
// name, such as "ANALYZE_FRAME".
type Kind uint8

// Message kinds.
const (
	KindUnknown Kind = iota
	KindPing
	KindPong
	KindInitLibraries
	KindInitLibrariesResult
	KindSetPreset
	KindSetPresetResult
	KindQueryLibrary
	KindQueryLibraryResult
	KindAnalyzeFrame
	KindAnalyzeResult
	KindError
)

var kindNames = [...]string{
	KindUnknown:             "UNKNOWN",
	KindPing:                "PING",
	KindPong:                "PONG",
	KindInitLibraries:       "INIT_LIBRARIES",
	KindInitLibrariesResult: "INIT_LIBRARIES_RESULT",
	KindSetPreset:           "SET_PRESET",
	KindSetPresetResult:     "SET_PRESET_RESULT",
	KindQueryLibrary:        "QUERY_LIBRARY",
	KindQueryLibraryResult:  "QUERY_LIBRARY_RESULT",
	KindAnalyzeFrame:        "ANALYZE_FRAME",
	KindAnalyzeResult:       "ANALYZE_RESULT",
	KindError:               "ERROR",
}

// String returns the wire name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}

	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind maps a wire name to its Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s && Kind(k) != KindUnknown {
			return Kind(k), true
		}
	}

	return KindUnknown, false
}

// Result returns the kind answering request kind k, and false when k is not
// a request.
func (k Kind) Result() (Kind, bool) {
	switch k {
	case KindPing:
		return KindPong, true
	case KindInitLibraries:
		return KindInitLibrariesResult, true
	case KindSetPreset:
		return KindSetPresetResult, true
	case KindQueryLibrary:
		return KindQueryLibraryResult, true
	case KindAnalyzeFrame:
		return KindAnalyzeResult, true
	default:
		return KindUnknown, false
	}
}

// IsRequest reports whether k is sent by the client.
func (k Kind) IsRequest() bool {
	_, ok := k.Result()
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unrecognised names
// decode to KindUnknown so the host can answer with an ERROR message.
func (k *Kind) UnmarshalText(text []byte) error {
	*k, _ = ParseKind(string(text))
	return nil
}

var (
	_ msgpack.CustomEncoder = Kind(0)
	_ msgpack.CustomDecoder = (*Kind)(nil)
)

// EncodeMsgpack writes the wire name.
func (k Kind) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(k.String())
}

// DecodeMsgpack reads a wire name. Unrecognised names decode to
// KindUnknown.
func (k *Kind) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}

	*k, _ = ParseKind(s)

	return nil
}
