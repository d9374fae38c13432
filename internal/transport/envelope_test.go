package transport

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/matchlink/internal/protocol"
)

func TestEncodeOperation(t *testing.T) {
	payload, err := EncodeOperation(protocol.Operation{
		Code:   protocol.OpJoinGame,
		Params: []protocol.Param{protocol.P(protocol.ParamRoomName, "r1"), protocol.P(protocol.ParamActorNr, 7)},
	})
	require.NoError(t, err)
	assert.Equal(t, `~j~{"req":226,"vals":[255,"r1",254,7]}`, payload)
}

func TestEncodeOperation_NoParams(t *testing.T) {
	payload, err := EncodeOperation(protocol.Operation{Code: protocol.OpGetRegions})
	require.NoError(t, err)
	assert.Equal(t, `~j~{"req":220,"vals":[]}`, payload)
}

func TestEncodeHeartbeat(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	assert.Equal(t, `~j~{"irq":1,"vals":[1,1700000000123]}`, EncodeHeartbeat(now))
}

func TestDecodeEnvelope_Response(t *testing.T) {
	in, err := DecodeEnvelope(`~j~{"res":230,"err":32767,"msg":"bad auth","vals":[230,"host:1"]}`)
	require.NoError(t, err)
	assert.Equal(t, KindResponse, in.Kind)
	assert.Equal(t, byte(230), in.Response.Code)
	assert.Equal(t, protocol.ErrInvalidAuthentication, in.Response.ErrCode)
	assert.Equal(t, "bad auth", in.Response.ErrMsg)
	assert.False(t, in.Response.OK())
	addr, ok := in.Response.Params.String(protocol.ParamAddress)
	require.True(t, ok)
	assert.Equal(t, "host:1", addr)
}

func TestDecodeEnvelope_Event(t *testing.T) {
	in, err := DecodeEnvelope(`~j~{"evt":255,"vals":[254,3,249,{"255":"bob"}]}`)
	require.NoError(t, err)
	assert.Equal(t, KindEvent, in.Kind)
	assert.Equal(t, protocol.EvJoin, in.Event.Code)
	nr, ok := in.Event.Params.Int(protocol.ParamActorNr)
	require.True(t, ok)
	assert.Equal(t, 3, nr)
	props, ok := in.Event.Params.PropertiesAt(protocol.ParamPlayerProperties)
	require.True(t, ok)
	assert.Equal(t, "bob", props.Standard[protocol.ActorPlayerName])
}

func TestDecodeEnvelope_Internal(t *testing.T) {
	in, err := DecodeEnvelope(`~j~{"irs":1,"vals":[1,5]}`)
	require.NoError(t, err)
	assert.Equal(t, KindInternal, in.Kind)
}

func TestDecodeEnvelope_MissingVals(t *testing.T) {
	in, err := DecodeEnvelope(`~j~{"res":229,"err":0}`)
	require.NoError(t, err)
	assert.True(t, in.Response.OK())
	assert.Empty(t, in.Response.Params)
}

func TestDecodeEnvelope_Errors(t *testing.T) {
	cases := map[string]string{
		"no sigil":       `{"evt":1}`,
		"not json":       `~j~{`,
		"not an object":  `~j~[1,2]`,
		"no kind":        `~j~{"vals":[]}`,
		"two kinds":      `~j~{"res":1,"evt":2}`,
		"odd vals":       `~j~{"evt":1,"vals":[1]}`,
		"string key":     `~j~{"evt":1,"vals":["a",1]}`,
		"vals not list":  `~j~{"evt":1,"vals":{}}`,
		"code too large": `~j~{"evt":999}`,
		"err not number": `~j~{"res":1,"err":"x"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope(payload)
			assert.ErrorIs(t, err, ErrBadEnvelope)
		})
	}
}

func TestDecodeEnvelope_OddValsKeepsCause(t *testing.T) {
	_, err := DecodeEnvelope(`~j~{"evt":1,"vals":[1,2,3]}`)
	assert.ErrorIs(t, err, protocol.ErrOddPairs)
	assert.True(t, strings.Contains(err.Error(), "odd"))
}
