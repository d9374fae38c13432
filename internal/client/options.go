package client

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cory-johannsen/matchlink/internal/protocol"
	"github.com/cory-johannsen/matchlink/internal/session"
)

// Options configures a Client.
type Options struct {
	AppID      string
	AppVersion string
	// UserID identifies the player; a random id is generated when empty.
	UserID   string
	NickName string

	DirectoryAddress  string
	MatchmakerAddress string

	// KeepMatchmakerConnection keeps the matchmaker peer open while in a room.
	KeepMatchmakerConnection bool
	AutoJoinLobby            bool
	LobbyName                string
	LobbyType                protocol.LobbyType
	// LobbyStats subscribes to lobby statistics events at authentication.
	LobbyStats bool

	// CustomAuth is sent with matchmaker authentication when set.
	CustomAuth *CustomAuth

	KeepAlive    time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// CustomAuth carries custom authentication values.
type CustomAuth struct {
	Type   protocol.CustomAuthType
	Params string
	Data   any
}

// Validate checks the options.
//
// Postcondition: Returns nil, or an error wrapping ErrInvalidOptions that
// lists every violation.
func (o Options) Validate() error {
	var errs []string
	if o.AppID == "" {
		errs = append(errs, "app id must not be empty")
	}
	if o.MatchmakerAddress == "" && o.DirectoryAddress == "" {
		errs = append(errs, "a matchmaker or directory address is required")
	}
	if !o.LobbyType.Valid() {
		errs = append(errs, fmt.Sprintf("lobby type %d is unknown", o.LobbyType))
	}
	if o.KeepAlive < 0 || o.DialTimeout < 0 || o.ReadTimeout < 0 || o.WriteTimeout < 0 {
		errs = append(errs, "timeouts must not be negative")
	}
	return joinErrs(errs)
}

// RoomOptions describes a room to create.
type RoomOptions struct {
	IsVisible          bool
	IsOpen             bool
	MaxPlayers         int
	CustomProperties   map[string]any
	PropsListedInLobby []string
	// EmptyRoomTTL and PlayerTTL are milliseconds.
	EmptyRoomTTL        int
	PlayerTTL           int
	CheckUserOnJoin     bool
	CleanupCacheOnLeave bool
	ExpectedUsers       []string
	LobbyName           string
	LobbyType           protocol.LobbyType
}

// DefaultRoomOptions returns a visible, open room with no player limit.
func DefaultRoomOptions() RoomOptions {
	return RoomOptions{IsVisible: true, IsOpen: true, CleanupCacheOnLeave: true}
}

// Validate checks the room options.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidOptions.
func (o RoomOptions) Validate() error {
	var errs []string
	if o.MaxPlayers < 0 {
		errs = append(errs, "max players must not be negative")
	}
	if o.MaxPlayers > 255 {
		errs = append(errs, "max players must not exceed 255")
	}
	if o.EmptyRoomTTL < 0 {
		errs = append(errs, "empty room ttl must not be negative")
	}
	if o.PlayerTTL < 0 {
		errs = append(errs, "player ttl must not be negative")
	}
	if !o.LobbyType.Valid() {
		errs = append(errs, fmt.Sprintf("lobby type %d is unknown", o.LobbyType))
	}
	for k := range o.CustomProperties {
		if err := checkCustomKey(k); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return joinErrs(errs)
}

// room builds the joined-room model seeded from the options.
func (o RoomOptions) room(name string) *session.Room {
	r := session.NewRoom(name)
	r.IsVisible = o.IsVisible
	r.IsOpen = o.IsOpen
	r.MaxPlayers = o.MaxPlayers
	r.EmptyRoomTTL = o.EmptyRoomTTL
	r.PlayerTTL = o.PlayerTTL
	r.CheckUserOnJoin = o.CheckUserOnJoin
	r.CleanupCacheOnLeave = o.CleanupCacheOnLeave
	r.PropsListedInLobby = append([]string(nil), o.PropsListedInLobby...)
	r.ExpectedUsers = append([]string(nil), o.ExpectedUsers...)
	for k, v := range o.CustomProperties {
		r.Custom[k] = v
	}
	return r
}

// JoinOptions modify a join by name.
type JoinOptions struct {
	// CreateIfNotExists creates the room with the given RoomOptions when
	// it does not exist.
	CreateIfNotExists bool
	// Rejoin replays the saved actor number for this room.
	Rejoin bool
	// Token overrides the saved rejoin token.
	Token string
}

// RandomJoinOptions filter a random join.
type RandomJoinOptions struct {
	ExpectedCustomProperties map[string]any
	ExpectedMaxPlayers       int
	MatchmakingMode          protocol.MatchmakingMode
	LobbyName                string
	LobbyType                protocol.LobbyType
	// SQLFilter is required for, and only valid with, LobbySQL.
	SQLFilter string
}

// Validate checks the random-join filter.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidOptions.
func (o RandomJoinOptions) Validate() error {
	var errs []string
	if o.ExpectedMaxPlayers < 0 {
		errs = append(errs, "expected max players must not be negative")
	}
	if !o.MatchmakingMode.Valid() {
		errs = append(errs, fmt.Sprintf("matchmaking mode %d is unknown", o.MatchmakingMode))
	}
	if !o.LobbyType.Valid() {
		errs = append(errs, fmt.Sprintf("lobby type %d is unknown", o.LobbyType))
	}
	if o.LobbyType == protocol.LobbySQL && strings.TrimSpace(o.SQLFilter) == "" {
		errs = append(errs, "sql lobby requires a filter")
	}
	if o.LobbyType != protocol.LobbySQL && o.SQLFilter != "" {
		errs = append(errs, "sql filter requires the sql lobby type")
	}
	for k := range o.ExpectedCustomProperties {
		if err := checkCustomKey(k); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return joinErrs(errs)
}

// RaiseOptions address a raised event.
type RaiseOptions struct {
	Receivers protocol.ReceiverGroup
	// TargetActors overrides Receivers when non-empty.
	TargetActors []int
	Cache        protocol.EventCaching
	// Group is the interest group; 0 sends to everyone.
	Group int
}

// Validate checks the event addressing.
func (o RaiseOptions) Validate() error {
	var errs []string
	if o.Receivers < protocol.ReceiversOthers || o.Receivers > protocol.ReceiversMasterClient {
		errs = append(errs, fmt.Sprintf("receiver group %d is unknown", o.Receivers))
	}
	if o.Cache < protocol.CacheDoNotCache || o.Cache > protocol.CacheAddToRoomCache {
		errs = append(errs, fmt.Sprintf("cache mode %d is unknown", o.Cache))
	}
	if o.Group < 0 || o.Group > 255 {
		errs = append(errs, "group must be in [0, 255]")
	}
	for _, nr := range o.TargetActors {
		if nr <= 0 {
			errs = append(errs, fmt.Sprintf("target actor %d is invalid", nr))
		}
	}
	return joinErrs(errs)
}

func checkCustomKey(k string) error {
	if _, ok := protocol.IntegerKey(k); ok {
		return fmt.Errorf("%w: %q", ErrReservedKey, k)
	}
	if k == "" {
		return errors.New("property key must not be empty")
	}
	return nil
}

func joinErrs(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(errs, "; "))
}
