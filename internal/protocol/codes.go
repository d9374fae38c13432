// Package protocol holds the numeric contract shared with the directory,
// matchmaking and session servers: operation, parameter and event codes,
// well-known property keys, and the message shapes carried by the transport.
//
// The values below must match the servers bit-for-bit.
package protocol

// Operation codes sent in the "req" field of an outbound envelope.
const (
	OpAuthenticate   byte = 230
	OpJoinLobby      byte = 229
	OpLeaveLobby     byte = 228
	OpCreateGame     byte = 227
	OpJoinGame       byte = 226
	OpJoinRandomGame byte = 225
	OpLobbyStats     byte = 221
	OpGetRegions     byte = 220
	OpLeave          byte = 254
	OpRaiseEvent     byte = 253
	OpSetProperties  byte = 252
	OpGetProperties  byte = 251
	OpChangeGroups   byte = 248
)

// Parameter codes used as keys in operation, response and event value lists.
const (
	ParamAddress                    byte = 230
	ParamPeerCount                  byte = 229
	ParamGameCount                  byte = 228
	ParamMasterPeerCount            byte = 227
	ParamUserID                     byte = 225
	ParamApplicationID              byte = 224
	ParamMatchMakingType            byte = 223
	ParamGameList                   byte = 222
	ParamSecret                     byte = 221
	ParamAppVersion                 byte = 220
	ParamClientAuthenticationType   byte = 217
	ParamClientAuthenticationParams byte = 216
	ParamJoinMode                   byte = 215
	ParamClientAuthenticationData   byte = 214
	ParamLobbyName                  byte = 213
	ParamLobbyType                  byte = 212
	ParamLobbyStats                 byte = 211
	ParamRegion                     byte = 210
	ParamMasterClientID             byte = 203
	ParamNickName                   byte = 202
	ParamCluster                    byte = 196

	ParamRoomName            byte = 255
	ParamActorNr             byte = 254
	ParamTargetActorNr       byte = 253
	ParamActorList           byte = 252
	ParamProperties          byte = 251
	ParamBroadcast           byte = 250
	ParamPlayerProperties    byte = 249
	ParamGameProperties      byte = 248
	ParamCache               byte = 247
	ParamReceiverGroup       byte = 246
	ParamData                byte = 245
	ParamCode                byte = 244
	ParamCleanupCacheOnLeave byte = 241
	ParamGroup               byte = 240
	ParamEmptyRoomTTL        byte = 236
	ParamPlayerTTL           byte = 235
	ParamIsInactive          byte = 233
	ParamCheckUserOnJoin     byte = 232
)

// Event codes received in the "evt" field of an inbound envelope.
const (
	EvGameList          byte = 230
	EvGameListUpdate    byte = 229
	EvQueueState        byte = 228
	EvAppStats          byte = 226
	EvLobbyStats        byte = 224
	EvAuth              byte = 223
	EvJoin              byte = 255
	EvLeave             byte = 254
	EvPropertiesChanged byte = 253
	EvDisconnect        byte = 252
	EvErrorInfo         byte = 251
)

// Error codes returned in the "err" field of a response.
const (
	ErrOk                          = 0
	ErrOperationNotAllowed         = -3
	ErrInvalidOperationCode        = -2
	ErrInternalServerError         = -1
	ErrInvalidAuthentication       = 32767
	ErrGameIDAlreadyExists         = 32766
	ErrGameFull                    = 32765
	ErrGameClosed                  = 32764
	ErrNoRandomMatchFound          = 32760
	ErrGameDoesNotExist            = 32758
	ErrMaxCcuReached               = 32757
	ErrInvalidRegion               = 32756
	ErrCustomAuthenticationFailed  = 32755
	ErrAuthenticationTokenExpired  = 32753
	ErrJoinFailedPeerAlreadyJoined = 32750
	ErrJoinFailedFoundInactive     = 32749
	ErrJoinFailedFoundActive       = 32746
)

// Well-known room property keys. They travel as decimal strings inside
// property objects and never collide with custom keys.
const (
	RoomMaxPlayers          byte = 255
	RoomIsVisible           byte = 254
	RoomIsOpen              byte = 253
	RoomPlayerCount         byte = 252
	RoomRemoved             byte = 251
	RoomPropsListedInLobby  byte = 250
	RoomCleanupCacheOnLeave byte = 249
	RoomMasterClientID      byte = 248
	RoomExpectedUsers       byte = 247
	RoomPlayerTTL           byte = 246
	RoomEmptyRoomTTL        byte = 245
)

// Well-known actor property keys.
const (
	ActorPlayerName byte = 255
	ActorIsInactive byte = 254
	ActorUserID     byte = 253
)

// JoinMode selects how a JoinGame operation treats missing rooms and
// returning actors.
type JoinMode int

const (
	JoinModeDefault           JoinMode = 0
	JoinModeCreateIfNotExists JoinMode = 1
	JoinModeJoinOrRejoin      JoinMode = 2
	JoinModeRejoinOnly        JoinMode = 3
)

// MatchmakingMode selects the random-join algorithm on the matchmaker.
type MatchmakingMode int

const (
	MatchmakingFillRoom       MatchmakingMode = 0
	MatchmakingSerialMatching MatchmakingMode = 1
	MatchmakingRandomMatching MatchmakingMode = 2
)

// Valid reports whether m is a known matchmaking mode.
func (m MatchmakingMode) Valid() bool {
	return m >= MatchmakingFillRoom && m <= MatchmakingRandomMatching
}

// LobbyType selects lobby listing semantics.
type LobbyType int

const (
	LobbyDefault     LobbyType = 0
	LobbySQL         LobbyType = 2
	LobbyAsyncRandom LobbyType = 3
)

// Valid reports whether t is a known lobby type.
func (t LobbyType) Valid() bool {
	return t == LobbyDefault || t == LobbySQL || t == LobbyAsyncRandom
}

// ReceiverGroup selects which actors receive a raised event.
type ReceiverGroup int

const (
	ReceiversOthers       ReceiverGroup = 0
	ReceiversAll          ReceiverGroup = 1
	ReceiversMasterClient ReceiverGroup = 2
)

// EventCaching selects how the session server caches a raised event.
type EventCaching int

const (
	CacheDoNotCache     EventCaching = 0
	CacheMergeCache     EventCaching = 1
	CacheReplaceCache   EventCaching = 2
	CacheRemoveCache    EventCaching = 3
	CacheAddToRoomCache EventCaching = 4
)

// CustomAuthType selects the custom authentication provider.
type CustomAuthType int

const (
	CustomAuthCustom CustomAuthType = 0
	CustomAuthNone   CustomAuthType = 255
)
