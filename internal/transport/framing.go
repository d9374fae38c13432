package transport

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Framing constants.
const (
	// FrameMarker delimits the length prefix of every frame.
	FrameMarker = "~m~"
	// JSONSigil prefixes payloads that carry a JSON document.
	JSONSigil = "~j~"
)

// ErrMalformedFrame is returned when the inbound stream does not follow
// the <marker><length><marker><payload> layout.
var ErrMalformedFrame = errors.New("malformed frame")

// EncodeFrame wraps payload as <marker><byte length><marker><payload>.
func EncodeFrame(payload string) string {
	var b strings.Builder
	b.Grow(len(payload) + 2*len(FrameMarker) + 8)
	b.WriteString(FrameMarker)
	b.WriteString(strconv.Itoa(len(payload)))
	b.WriteString(FrameMarker)
	b.WriteString(payload)
	return b.String()
}

// EncodeMessage serializes v for the wire: strings are used verbatim, every
// other value is JSON encoded behind JSONSigil. The result is not framed.
//
// Postcondition: Returns the payload string or an encoding error.
func EncodeMessage(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding message: %w", err)
	}
	return JSONSigil + string(data), nil
}

// Framer splits an inbound text stream into payloads. A frame split across
// two reads is held until the remainder arrives.
// A Framer is not safe for concurrent use.
type Framer struct {
	pending string
}

// NewFramer returns an empty Framer.
func NewFramer() *Framer {
	return &Framer{}
}

// Buffered returns the number of bytes held for an incomplete frame.
func (f *Framer) Buffered() int {
	return len(f.pending)
}

// Feed appends data to the buffer and returns every complete payload in
// arrival order. NUL bytes are stripped before scanning.
//
// Postcondition: Returns the decoded payloads; on ErrMalformedFrame the
// buffer is discarded and the payloads decoded before the fault are returned.
func (f *Framer) Feed(data string) ([]string, error) {
	f.pending += strings.ReplaceAll(data, "\x00", "")

	var out []string
	for len(f.pending) > 0 {
		s := f.pending
		if !strings.HasPrefix(s, FrameMarker) {
			if len(s) < len(FrameMarker) && strings.HasPrefix(FrameMarker, s) {
				break
			}
			return out, f.fail("expected frame marker at %q", head(s))
		}

		digits := len(FrameMarker)
		end := digits
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		if end == len(s) {
			break
		}
		if end == digits {
			return out, f.fail("missing length at %q", head(s))
		}
		n, err := strconv.Atoi(s[digits:end])
		if err != nil {
			return out, f.fail("length %q: %v", s[digits:end], err)
		}

		rest := s[end:]
		if !strings.HasPrefix(rest, FrameMarker) {
			if len(rest) < len(FrameMarker) && strings.HasPrefix(FrameMarker, rest) {
				break
			}
			return out, f.fail("expected marker after length at %q", head(rest))
		}

		start := end + len(FrameMarker)
		if len(s)-start < n {
			break
		}
		out = append(out, s[start:start+n])
		f.pending = s[start+n:]
	}
	return out, nil
}

func (f *Framer) fail(format string, args ...any) error {
	f.pending = ""
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformedFrame}, args...)...)
}

func head(s string) string {
	if len(s) > 16 {
		return s[:16] + "..."
	}
	return s
}

// DecodeFrames decodes a complete buffer in one shot.
//
// Postcondition: Returns every payload, or an error if data is malformed or
// ends inside a frame.
func DecodeFrames(data string) ([]string, error) {
	f := NewFramer()
	out, err := f.Feed(data)
	if err != nil {
		return out, err
	}
	if f.Buffered() > 0 {
		return out, fmt.Errorf("%w: %d trailing bytes", ErrMalformedFrame, f.Buffered())
	}
	return out, nil
}
