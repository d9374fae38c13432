package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cory-johannsen/matchlink/internal/protocol"
)

// ErrBadEnvelope is returned when an inbound payload is not a valid
// response, event or internal-response envelope.
var ErrBadEnvelope = errors.New("bad envelope")

// Kind classifies a decoded inbound envelope.
type Kind int

const (
	KindResponse Kind = iota
	KindEvent
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Inbound is one decoded server message.
type Inbound struct {
	Kind     Kind
	Response protocol.Response
	Event    protocol.Event
	// Internal holds the raw envelope of an internal response.
	Internal map[string]any
}

type operationEnvelope struct {
	Req  int   `json:"req"`
	Vals []any `json:"vals"`
}

type heartbeatEnvelope struct {
	Irq  int   `json:"irq"`
	Vals []any `json:"vals"`
}

// EncodeOperation renders op as a sigil-prefixed JSON payload.
//
// Postcondition: Returns the unframed payload or an encoding error.
func EncodeOperation(op protocol.Operation) (string, error) {
	return EncodeMessage(operationEnvelope{Req: int(op.Code), Vals: protocol.Flatten(op.Params)})
}

// EncodeHeartbeat renders the internal keep-alive request.
func EncodeHeartbeat(now time.Time) string {
	payload, err := EncodeMessage(heartbeatEnvelope{Irq: 1, Vals: []any{1, now.UnixMilli()}})
	if err != nil {
		panic(fmt.Sprintf("encoding heartbeat: %v", err))
	}
	return payload
}

// DecodeEnvelope parses one payload. Exactly one of "res", "evt" or "irs"
// must be present; "vals" is rebuilt into a key/value table.
//
// Postcondition: Returns the classified message or an error wrapping ErrBadEnvelope.
func DecodeEnvelope(payload string) (Inbound, error) {
	if !strings.HasPrefix(payload, JSONSigil) {
		return Inbound{}, fmt.Errorf("%w: payload is not JSON: %q", ErrBadEnvelope, head(payload))
	}
	raw, err := protocol.DecodeValue([]byte(payload[len(JSONSigil):]))
	if err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	env, ok := raw.(map[string]any)
	if !ok {
		return Inbound{}, fmt.Errorf("%w: expected object, got %T", ErrBadEnvelope, raw)
	}

	found := 0
	for _, key := range []string{"res", "evt", "irs"} {
		if _, ok := env[key]; ok {
			found++
		}
	}
	if found != 1 {
		return Inbound{}, fmt.Errorf("%w: need exactly one of res/evt/irs, got %d", ErrBadEnvelope, found)
	}

	if _, ok := env["irs"]; ok {
		return Inbound{Kind: KindInternal, Internal: env}, nil
	}

	params := protocol.Params{}
	if v, ok := env["vals"]; ok && v != nil {
		vals, ok := v.([]any)
		if !ok {
			return Inbound{}, fmt.Errorf("%w: vals is %T", ErrBadEnvelope, v)
		}
		params, err = protocol.ParamsFromPairs(vals)
		if err != nil {
			return Inbound{}, fmt.Errorf("%w: %w", ErrBadEnvelope, err)
		}
	}

	if v, ok := env["res"]; ok {
		code, err := codeOf(v)
		if err != nil {
			return Inbound{}, err
		}
		resp := protocol.Response{Code: code, Params: params}
		if e, ok := env["err"]; ok && e != nil {
			n, ok := protocol.ToInt(e)
			if !ok {
				return Inbound{}, fmt.Errorf("%w: err is %T", ErrBadEnvelope, e)
			}
			resp.ErrCode = n
		}
		if m, ok := protocol.ToString(env["msg"]); ok {
			resp.ErrMsg = m
		}
		return Inbound{Kind: KindResponse, Response: resp}, nil
	}

	code, err := codeOf(env["evt"])
	if err != nil {
		return Inbound{}, err
	}
	return Inbound{Kind: KindEvent, Event: protocol.Event{Code: code, Params: params}}, nil
}

func codeOf(v any) (byte, error) {
	n, ok := protocol.ToInt(v)
	if !ok || n < 0 || n > 255 {
		return 0, fmt.Errorf("%w: code %v out of range", ErrBadEnvelope, v)
	}
	return byte(n), nil
}
