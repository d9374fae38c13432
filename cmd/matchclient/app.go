package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cory-johannsen/matchlink/internal/client"
	"github.com/cory-johannsen/matchlink/internal/config"
	"github.com/cory-johannsen/matchlink/internal/protocol"
	"github.com/cory-johannsen/matchlink/internal/session"
)

// errJoinRefused marks a room join the session server turned down.
var errJoinRefused = errors.New("room join refused")

// clientOptions maps the client and transport sections onto client.Options.
func clientOptions(cfg config.Config) client.Options {
	return client.Options{
		AppID:                    cfg.Client.AppID,
		AppVersion:               cfg.Client.AppVersion,
		UserID:                   cfg.Client.UserID,
		NickName:                 cfg.Client.NickName,
		DirectoryAddress:         cfg.Client.DirectoryAddress,
		MatchmakerAddress:        cfg.Client.MatchmakerAddress,
		KeepMatchmakerConnection: cfg.Client.KeepMatchmakerConnection,
		AutoJoinLobby:            cfg.Client.AutoJoinLobby,
		LobbyName:                cfg.Client.LobbyName,
		LobbyType:                protocol.LobbyType(cfg.Client.LobbyType),
		LobbyStats:               cfg.Client.LobbyStats,
		KeepAlive:                cfg.Transport.KeepAlive,
		DialTimeout:              cfg.Transport.DialTimeout,
		ReadTimeout:              cfg.Transport.ReadTimeout,
		WriteTimeout:             cfg.Transport.WriteTimeout,
	}
}

// roomClient is the part of *client.Client the runner drives.
type roomClient interface {
	Connect(ctx context.Context) error
	ConnectToRegion(ctx context.Context, region string) error
	JoinRoom(name string, jopts client.JoinOptions, ropts client.RoomOptions) error
	Rejoinable(room string) bool
	Disconnect()
}

// runner connects the client, enters the configured room once the lobby is
// reached, and logs every callback.
type runner struct {
	logger *zap.Logger
	region string
	room   string
	// options is used when the room has to be created.
	options client.RoomOptions

	cl      roomClient
	entered atomic.Bool
	failed  chan *client.StageError
}

func newRunner(logger *zap.Logger, cfg config.ClientConfig, options client.RoomOptions) *runner {
	return &runner{
		logger:  logger,
		region:  cfg.Region,
		room:    cfg.Room,
		options: options,
		failed:  make(chan *client.StageError, 1),
	}
}

// Start connects and blocks until ctx ends or the client fails.
func (r *runner) Start(ctx context.Context) error {
	var err error
	if r.region != "" {
		err = r.cl.ConnectToRegion(ctx, r.region)
	} else {
		err = r.cl.Connect(ctx)
	}
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil
	case cerr := <-r.failed:
		return cerr
	}
}

// Stop closes every connection.
func (r *runner) Stop(context.Context) {
	r.cl.Disconnect()
}

// enterRoom joins the configured room, creating it when missing, or rejoins
// it when a token is saved. It runs at most once per process.
func (r *runner) enterRoom() {
	if r.room == "" || !r.entered.CompareAndSwap(false, true) {
		return
	}
	jopts := client.JoinOptions{CreateIfNotExists: true}
	if r.cl.Rejoinable(r.room) {
		jopts.Rejoin = true
	}
	if err := r.cl.JoinRoom(r.room, jopts, r.options); err != nil {
		r.logger.Error("joining room", zap.String("room", r.room), zap.Error(err))
	}
}

// fail hands the first failure to Start; later ones are dropped.
func (r *runner) fail(err *client.StageError) {
	select {
	case r.failed <- err:
	default:
	}
}

func (r *runner) handler() client.Handler {
	return client.HandlerFuncs{
		StateChange: func(from, to client.State) {
			r.logger.Info("state changed", zap.Stringer("from", from), zap.Stringer("to", to))
		},
		Error: func(err *client.StageError) {
			r.logger.Error("client error", zap.Int("code", err.Code), zap.Error(err))
			r.fail(err)
		},
		Regions: func(regions []client.Region) {
			for _, reg := range regions {
				r.logger.Info("region", zap.String("name", reg.Name), zap.String("address", reg.Address))
			}
		},
		JoinLobby: func() {
			r.logger.Info("joined lobby")
			r.enterRoom()
		},
		RoomList: func(rooms []*session.Room) {
			r.logger.Info("room list", zap.Int("rooms", len(rooms)))
		},
		AppStats: func(stats client.AppStats) {
			r.logger.Debug("app stats",
				zap.Int("peers", stats.PeerCount),
				zap.Int("games", stats.GameCount),
			)
		},
		JoinRoom: func(room *session.Room, createdByMe bool) {
			r.logger.Info("joined room",
				zap.String("room", room.Name),
				zap.Bool("created", createdByMe),
				zap.Int("players", room.PlayerCount),
			)
		},
		JoinRoomFailed: func(code int, msg string) {
			r.logger.Error("join room failed", zap.Int("code", code), zap.String("message", msg))
			r.fail(&client.StageError{Code: code, Message: msg, Err: errJoinRefused})
		},
		LeaveRoom: func() {
			r.logger.Info("left room")
		},
		ActorJoin: func(actor *session.Actor) {
			r.logger.Info("actor joined", zap.Int("actor", actor.Nr), zap.String("name", actor.Name))
		},
		ActorLeave: func(actor *session.Actor, suspended bool) {
			r.logger.Info("actor left", zap.Int("actor", actor.Nr), zap.Bool("suspended", suspended))
		},
		Event: func(code byte, content any, actorNr int) {
			r.logger.Debug("event", zap.Uint8("code", code), zap.Int("actor", actorNr), zap.Any("content", content))
		},
	}
}
