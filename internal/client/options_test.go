package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/matchlink/internal/protocol"
	"github.com/cory-johannsen/matchlink/internal/session"
)

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, Options{AppID: "app", MatchmakerAddress: "mm"}.Validate())
	assert.NoError(t, Options{AppID: "app", DirectoryAddress: "dir"}.Validate())

	err := Options{LobbyType: 9}.Validate()
	require.ErrorIs(t, err, ErrInvalidOptions)
	assert.Contains(t, err.Error(), "app id")
	assert.Contains(t, err.Error(), "address")
	assert.Contains(t, err.Error(), "lobby type 9")
}

func TestRoomOptions_Validate(t *testing.T) {
	assert.NoError(t, DefaultRoomOptions().Validate())

	o := DefaultRoomOptions()
	o.MaxPlayers = 256
	o.CustomProperties = map[string]any{"255": 1}
	err := o.Validate()
	require.ErrorIs(t, err, ErrInvalidOptions)
	assert.Contains(t, err.Error(), "exceed 255")
	assert.Contains(t, err.Error(), "reserved")
}

func TestRandomJoinOptions_SQLFilter(t *testing.T) {
	assert.ErrorIs(t, RandomJoinOptions{LobbyType: protocol.LobbySQL}.Validate(), ErrInvalidOptions)
	assert.ErrorIs(t, RandomJoinOptions{SQLFilter: "C0 = 1"}.Validate(), ErrInvalidOptions)
	assert.NoError(t, RandomJoinOptions{LobbyType: protocol.LobbySQL, SQLFilter: "C0 = 1"}.Validate())
}

func TestRaiseOptions_Validate(t *testing.T) {
	assert.NoError(t, RaiseOptions{}.Validate())
	assert.ErrorIs(t, RaiseOptions{Receivers: 7}.Validate(), ErrInvalidOptions)
	assert.ErrorIs(t, RaiseOptions{TargetActors: []int{0}}.Validate(), ErrInvalidOptions)
	assert.ErrorIs(t, RaiseOptions{Group: 300}.Validate(), ErrInvalidOptions)
}

func TestRoomRequest_JoinMode(t *testing.T) {
	cases := []struct {
		create bool
		actor  int
		want   protocol.JoinMode
	}{
		{false, session.NoActorNr, protocol.JoinModeDefault},
		{true, session.NoActorNr, protocol.JoinModeCreateIfNotExists},
		{false, 3, protocol.JoinModeRejoinOnly},
		{true, 3, protocol.JoinModeJoinOrRejoin},
	}
	for _, tc := range cases {
		r := &roomRequest{kind: requestJoin, name: "r", actorNr: tc.actor, join: JoinOptions{CreateIfNotExists: tc.create}}
		assert.Equal(t, tc.want, r.joinMode())
	}
}

func TestRoomRequest_CreateParams(t *testing.T) {
	o := DefaultRoomOptions()
	o.MaxPlayers = 4
	o.PlayerTTL = 1000
	o.CustomProperties = map[string]any{"map": "dust"}
	r := &roomRequest{kind: requestCreate, name: "r1", room: o, actorNr: session.NoActorNr}

	params, err := r.matchmakerParams()
	require.NoError(t, err)
	op := protocol.Operation{Code: r.opCode(), Params: params}
	assert.Equal(t, protocol.OpCreateGame, op.Code)

	name, _ := op.Param(protocol.ParamRoomName)
	assert.Equal(t, "r1", name)
	ttl, _ := op.Param(protocol.ParamPlayerTTL)
	assert.Equal(t, 1000, ttl)
	_, hasCleanup := op.Param(protocol.ParamCleanupCacheOnLeave)
	assert.False(t, hasCleanup)

	raw, ok := op.Param(protocol.ParamGameProperties)
	require.True(t, ok)
	gp := raw.(map[string]any)
	assert.Equal(t, 4, gp["255"])
	assert.Equal(t, true, gp["253"])
	assert.Equal(t, "dust", gp["map"])
}

func TestRoomRequest_RandomParams(t *testing.T) {
	r := &roomRequest{kind: requestJoinRandom, actorNr: session.NoActorNr, random: RandomJoinOptions{
		ExpectedCustomProperties: map[string]any{"mode": "ffa"},
		ExpectedMaxPlayers:       8,
		MatchmakingMode:          protocol.MatchmakingRandomMatching,
		LobbyType:                protocol.LobbySQL,
		SQLFilter:                "C0 > 2",
	}}
	params, err := r.matchmakerParams()
	require.NoError(t, err)
	op := protocol.Operation{Code: r.opCode(), Params: params}
	assert.Equal(t, protocol.OpJoinRandomGame, op.Code)

	raw, _ := op.Param(protocol.ParamGameProperties)
	gp := raw.(map[string]any)
	assert.Equal(t, "ffa", gp["mode"])
	assert.Equal(t, 8, gp["255"])
	mode, _ := op.Param(protocol.ParamMatchMakingType)
	assert.Equal(t, int(protocol.MatchmakingRandomMatching), mode)
	filter, _ := op.Param(protocol.ParamData)
	assert.Equal(t, "C0 > 2", filter)
	_, hasName := op.Param(protocol.ParamRoomName)
	assert.False(t, hasName)
}

func TestError_Codes(t *testing.T) {
	assert.Equal(t, CodeSessionConnectFailed, statusCode("session", "connectFailed"))
	assert.Equal(t, CodeMatchmakerTimeout, statusCode("matchmaker", "timeout"))
	assert.Equal(t, CodeDirectoryConnectClosed, statusCode("directory", "connectClosed"))
	assert.Equal(t, CodeDirectoryError, statusCode("directory", "error"))

	e := &StageError{Code: CodeSessionError, Message: "boom", Err: ErrNotJoined}
	assert.ErrorIs(t, e, ErrNotJoined)
	assert.Equal(t, "error 2001: boom: not joined to a room", e.Error())
}
