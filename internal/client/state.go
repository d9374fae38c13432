package client

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a requested state change is not in
// the transition table.
var ErrIllegalTransition = errors.New("illegal state transition")

// State is the orchestrator's workflow position.
type State int

const (
	Uninitialized State = iota
	ConnectingToDirectory
	ConnectedToDirectory
	ConnectingToMatchmaker
	ConnectedToMatchmaker
	JoinedLobby
	ConnectingToSession
	ConnectedToSession
	Joined
	Disconnected
	Error
)

var stateNames = [...]string{
	Uninitialized:          "Uninitialized",
	ConnectingToDirectory:  "ConnectingToDirectory",
	ConnectedToDirectory:   "ConnectedToDirectory",
	ConnectingToMatchmaker: "ConnectingToMatchmaker",
	ConnectedToMatchmaker:  "ConnectedToMatchmaker",
	JoinedLobby:            "JoinedLobby",
	ConnectingToSession:    "ConnectingToSession",
	ConnectedToSession:     "ConnectedToSession",
	Joined:                 "Joined",
	Disconnected:           "Disconnected",
	Error:                  "Error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// States lists every state in declaration order.
func States() []State {
	out := make([]State, 0, len(stateNames))
	for s := range stateNames {
		out = append(out, State(s))
	}
	return out
}

var transitions = map[State][]State{
	Error:                 {ConnectingToMatchmaker, ConnectingToDirectory},
	Uninitialized:         {ConnectingToMatchmaker, ConnectingToDirectory},
	Disconnected:          {ConnectingToMatchmaker, ConnectingToDirectory},
	ConnectedToDirectory:  {ConnectingToMatchmaker},
	ConnectedToMatchmaker: {JoinedLobby},
	JoinedLobby:           {ConnectingToSession},
	ConnectingToSession:   {ConnectedToSession},
	ConnectedToSession:    {Joined},
}

// CheckTransition reports whether from may move to to.
//
// Postcondition: Returns nil for a legal edge, otherwise an error wrapping
// ErrIllegalTransition.
func CheckTransition(from, to State) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
