package frame

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Source yields raw captures. Next returns io.EOF when the source is
// exhausted.
type Source interface {
	Next(ctx context.Context) (Raw, error)
}

// maxLineBytes bounds one JSON line; a 4096-pixel RGBI capture is well below.
const maxLineBytes = 8 << 20

// JSONLSource reads one JSON capture per line. Blank lines are skipped.
// The timestamp may be milliseconds since the Unix epoch or an RFC 3339
// string.
type JSONLSource struct {
	scanner *bufio.Scanner
	line    int
}

// NewJSONLSource wraps r.
func NewJSONLSource(r io.Reader) *JSONLSource {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	return &JSONLSource{scanner: s}
}

type jsonRaw struct {
	Raw
	Timestamp json.RawMessage `json:"timestamp"`
}

// Next implements Source.
func (s *JSONLSource) Next(ctx context.Context) (Raw, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Raw{}, err
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Raw{}, fmt.Errorf("frame: line %d: %w", s.line+1, err)
			}

			return Raw{}, io.EOF
		}

		s.line++

		data := bytes.TrimSpace(s.scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var jr jsonRaw
		if err := json.Unmarshal(data, &jr); err != nil {
			return Raw{}, fmt.Errorf("frame: line %d: %w", s.line, err)
		}

		ts, err := parseTimestamp(jr.Timestamp)
		if err != nil {
			return Raw{}, fmt.Errorf("frame: line %d: %w", s.line, err)
		}

		raw := jr.Raw
		raw.Timestamp = ts

		return raw, nil
	}
}

var errBadTimestamp = errors.New("frame: timestamp must be epoch milliseconds or RFC 3339")

func parseTimestamp(msg json.RawMessage) (time.Time, error) {
	if len(msg) == 0 || string(msg) == "null" {
		return time.Time{}, nil
	}

	if msg[0] == '"' {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return time.Time{}, errBadTimestamp
		}

		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %w", errBadTimestamp, err)
		}

		return t, nil
	}

	ms, err := strconv.ParseFloat(string(msg), 64)
	if err != nil {
		return time.Time{}, errBadTimestamp
	}

	return time.UnixMilli(int64(ms)), nil
}

// SliceSource replays a fixed list of captures.
type SliceSource struct {
	raws []Raw
	next int
}

// NewSliceSource returns a Source over raws.
func NewSliceSource(raws ...Raw) *SliceSource {
	return &SliceSource{raws: raws}
}

// Next implements Source.
func (s *SliceSource) Next(ctx context.Context) (Raw, error) {
	if err := ctx.Err(); err != nil {
		return Raw{}, err
	}

	if s.next >= len(s.raws) {
		return Raw{}, io.EOF
	}

	r := s.raws[s.next]
	s.next++

	return r, nil
}
