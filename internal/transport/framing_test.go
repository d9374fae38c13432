package transport

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeFrame(t *testing.T) {
	assert.Equal(t, "~m~5~m~hello", EncodeFrame("hello"))
	assert.Equal(t, "~m~0~m~", EncodeFrame(""))
	// byte length, not rune count
	assert.Equal(t, "~m~2~m~é", EncodeFrame("é"))
}

func TestEncodeMessage(t *testing.T) {
	s, err := EncodeMessage("session-1")
	require.NoError(t, err)
	assert.Equal(t, "session-1", s)

	s, err = EncodeMessage(map[string]any{"evt": 1})
	require.NoError(t, err)
	assert.Equal(t, `~j~{"evt":1}`, s)

	_, err = EncodeMessage(map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestFramer_PartialFeed(t *testing.T) {
	f := NewFramer()
	out, err := f.Feed("~m~5~m~he")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 9, f.Buffered())

	out, err = f.Feed("llo~m~")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, out)

	out, err = f.Feed("1~m~x")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, out)
	assert.Zero(t, f.Buffered())
}

func TestFramer_SplitMarker(t *testing.T) {
	f := NewFramer()
	out, err := f.Feed("~m")
	require.NoError(t, err)
	assert.Empty(t, out)
	out, err = f.Feed("~3~")
	require.NoError(t, err)
	assert.Empty(t, out)
	out, err = f.Feed("m~abc")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, out)
}

func TestFramer_StripsNUL(t *testing.T) {
	out, err := DecodeFrames("\x00~m~2~m~ok\x00")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, out)
}

func TestFramer_Malformed(t *testing.T) {
	cases := map[string]string{
		"junk before marker": "xx~m~1~m~a",
		"missing length":     "~m~~m~a",
		"bad second marker":  "~m~1~x~a",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			f := NewFramer()
			_, err := f.Feed(input)
			assert.ErrorIs(t, err, ErrMalformedFrame)
			assert.Zero(t, f.Buffered())
		})
	}
}

func TestFramer_KeepsFramesBeforeFault(t *testing.T) {
	f := NewFramer()
	out, err := f.Feed("~m~1~m~a!!")
	assert.ErrorIs(t, err, ErrMalformedFrame)
	assert.Equal(t, []string{"a"}, out)
}

func TestDecodeFrames_Trailing(t *testing.T) {
	_, err := DecodeFrames("~m~4~m~ab")
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

// Property: decoding an encoded payload yields exactly that payload.
func TestPropertyFraming_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := strings.ReplaceAll(rapid.String().Draw(t, "payload"), "\x00", "")
		out, err := DecodeFrames(EncodeFrame(payload))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(out) != 1 || out[0] != payload {
			t.Fatalf("got %q, want [%q]", out, payload)
		}
	})
}

// Property: N concatenated frames decode to N payloads in order, however
// the stream is chunked.
func TestPropertyFraming_Concatenated(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payloads := rapid.SliceOf(rapid.StringMatching(`[^\x00]{0,40}`)).Draw(t, "payloads")
		var stream strings.Builder
		for _, p := range payloads {
			stream.WriteString(EncodeFrame(p))
		}
		data := stream.String()

		f := NewFramer()
		var got []string
		for len(data) > 0 {
			n := rapid.IntRange(1, len(data)).Draw(t, "chunk")
			out, err := f.Feed(data[:n])
			if err != nil {
				t.Fatalf("feed: %v", err)
			}
			got = append(got, out...)
			data = data[n:]
		}
		if len(got) != len(payloads) {
			t.Fatalf("got %d payloads, want %d", len(got), len(payloads))
		}
		for i := range payloads {
			if got[i] != payloads[i] {
				t.Fatalf("payload %d: got %q, want %q", i, got[i], payloads[i])
			}
		}
		if f.Buffered() != 0 {
			t.Fatalf("%d bytes left buffered", f.Buffered())
		}
	})
}
