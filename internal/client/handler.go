package client

import (
	"sync"

	"github.com/cory-johannsen/matchlink/internal/protocol"
	"github.com/cory-johannsen/matchlink/internal/session"
)

// Region is one directory entry returned by GetRegions.
type Region struct {
	Name    string
	Address string
}

// AppStats are application-wide counters pushed by the matchmaker.
type AppStats struct {
	PeerCount       int
	MasterPeerCount int
	GameCount       int
}

// LobbyStats describe one lobby.
type LobbyStats struct {
	Name      string
	Type      protocol.LobbyType
	PeerCount int
	GameCount int
}

// Handler receives the client's callbacks. Callbacks are delivered in order
// on a single goroutine at a time, outside the client's lock, so they may
// call back into the Client. Rooms and actors passed in are copies.
type Handler interface {
	OnStateChange(from, to State)
	OnError(err *StageError)
	OnOperationResponse(resp protocol.Response)
	OnRegions(regions []Region)
	OnJoinLobby()
	OnRoomList(rooms []*session.Room)
	OnRoomListUpdate(rooms, added, updated, removed []*session.Room)
	OnAppStats(stats AppStats)
	OnLobbyStats(stats []LobbyStats)
	OnJoinRoom(room *session.Room, createdByMe bool)
	OnJoinRoomFailed(errCode int, errMsg string)
	OnLeaveRoom()
	OnActorJoin(actor *session.Actor)
	OnActorLeave(actor *session.Actor, suspended bool)
	OnRoomPropertiesChange(changed map[string]any)
	OnActorPropertiesChange(actor *session.Actor, changed map[string]any)
	OnEvent(code byte, content any, actorNr int)
}

// NopHandler ignores every callback. Embed it to implement a subset.
type NopHandler struct{}

func (NopHandler) OnStateChange(State, State)                             {}
func (NopHandler) OnError(*StageError)                                    {}
func (NopHandler) OnOperationResponse(protocol.Response)                  {}
func (NopHandler) OnRegions([]Region)                                     {}
func (NopHandler) OnJoinLobby()                                           {}
func (NopHandler) OnRoomList([]*session.Room)                             {}
func (NopHandler) OnRoomListUpdate(_, _, _, _ []*session.Room)            {}
func (NopHandler) OnAppStats(AppStats)                                    {}
func (NopHandler) OnLobbyStats([]LobbyStats)                              {}
func (NopHandler) OnJoinRoom(*session.Room, bool)                         {}
func (NopHandler) OnJoinRoomFailed(int, string)                           {}
func (NopHandler) OnLeaveRoom()                                           {}
func (NopHandler) OnActorJoin(*session.Actor)                             {}
func (NopHandler) OnActorLeave(*session.Actor, bool)                      {}
func (NopHandler) OnRoomPropertiesChange(map[string]any)                  {}
func (NopHandler) OnActorPropertiesChange(*session.Actor, map[string]any) {}
func (NopHandler) OnEvent(byte, any, int)                                 {}

// HandlerFuncs adapts optional functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	StateChange           func(from, to State)
	Error                 func(err *StageError)
	OperationResponse     func(resp protocol.Response)
	Regions               func(regions []Region)
	JoinLobby             func()
	RoomList              func(rooms []*session.Room)
	RoomListUpdate        func(rooms, added, updated, removed []*session.Room)
	AppStats              func(stats AppStats)
	LobbyStats            func(stats []LobbyStats)
	JoinRoom              func(room *session.Room, createdByMe bool)
	JoinRoomFailed        func(errCode int, errMsg string)
	LeaveRoom             func()
	ActorJoin             func(actor *session.Actor)
	ActorLeave            func(actor *session.Actor, suspended bool)
	RoomPropertiesChange  func(changed map[string]any)
	ActorPropertiesChange func(actor *session.Actor, changed map[string]any)
	Event                 func(code byte, content any, actorNr int)
}

func (h HandlerFuncs) OnStateChange(from, to State) {
	if h.StateChange != nil {
		h.StateChange(from, to)
	}
}

func (h HandlerFuncs) OnError(err *StageError) {
	if h.Error != nil {
		h.Error(err)
	}
}

func (h HandlerFuncs) OnOperationResponse(resp protocol.Response) {
	if h.OperationResponse != nil {
		h.OperationResponse(resp)
	}
}

func (h HandlerFuncs) OnRegions(regions []Region) {
	if h.Regions != nil {
		h.Regions(regions)
	}
}

func (h HandlerFuncs) OnJoinLobby() {
	if h.JoinLobby != nil {
		h.JoinLobby()
	}
}

func (h HandlerFuncs) OnRoomList(rooms []*session.Room) {
	if h.RoomList != nil {
		h.RoomList(rooms)
	}
}

func (h HandlerFuncs) OnRoomListUpdate(rooms, added, updated, removed []*session.Room) {
	if h.RoomListUpdate != nil {
		h.RoomListUpdate(rooms, added, updated, removed)
	}
}

func (h HandlerFuncs) OnAppStats(stats AppStats) {
	if h.AppStats != nil {
		h.AppStats(stats)
	}
}

func (h HandlerFuncs) OnLobbyStats(stats []LobbyStats) {
	if h.LobbyStats != nil {
		h.LobbyStats(stats)
	}
}

func (h HandlerFuncs) OnJoinRoom(room *session.Room, createdByMe bool) {
	if h.JoinRoom != nil {
		h.JoinRoom(room, createdByMe)
	}
}

func (h HandlerFuncs) OnJoinRoomFailed(errCode int, errMsg string) {
	if h.JoinRoomFailed != nil {
		h.JoinRoomFailed(errCode, errMsg)
	}
}

func (h HandlerFuncs) OnLeaveRoom() {
	if h.LeaveRoom != nil {
		h.LeaveRoom()
	}
}

func (h HandlerFuncs) OnActorJoin(actor *session.Actor) {
	if h.ActorJoin != nil {
		h.ActorJoin(actor)
	}
}

func (h HandlerFuncs) OnActorLeave(actor *session.Actor, suspended bool) {
	if h.ActorLeave != nil {
		h.ActorLeave(actor, suspended)
	}
}

func (h HandlerFuncs) OnRoomPropertiesChange(changed map[string]any) {
	if h.RoomPropertiesChange != nil {
		h.RoomPropertiesChange(changed)
	}
}

func (h HandlerFuncs) OnActorPropertiesChange(actor *session.Actor, changed map[string]any) {
	if h.ActorPropertiesChange != nil {
		h.ActorPropertiesChange(actor, changed)
	}
}

func (h HandlerFuncs) OnEvent(code byte, content any, actorNr int) {
	if h.Event != nil {
		h.Event(code, content, actorNr)
	}
}

// notifier queues callbacks and runs them in order with at most one
// goroutine flushing at a time.
type notifier struct {
	mu       sync.Mutex
	queue    []func()
	flushing bool
}

func (n *notifier) push(fn func()) {
	n.mu.Lock()
	n.queue = append(n.queue, fn)
	n.mu.Unlock()
}

// flush runs queued callbacks. A flush started from inside a callback
// returns immediately; the outer flush delivers what it queued.
func (n *notifier) flush() {
	n.mu.Lock()
	if n.flushing {
		n.mu.Unlock()
		return
	}
	n.flushing = true
	for len(n.queue) > 0 {
		fn := n.queue[0]
		n.queue = n.queue[1:]
		n.mu.Unlock()
		fn()
		n.mu.Lock()
	}
	n.flushing = false
	n.mu.Unlock()
}
