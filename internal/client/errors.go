package client

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/matchlink/internal/transport"
)

var (
	// ErrNotJoined is returned by room operations outside the Joined state.
	ErrNotJoined = errors.New("not joined to a room")
	// ErrNotInLobby is returned by matchmaker operations without a lobby connection.
	ErrNotInLobby = errors.New("not connected to the matchmaker")
	// ErrRequestPending is returned while a create or join is in flight.
	ErrRequestPending = errors.New("room request already pending")
	// ErrNoRejoinToken is returned by rejoins with no saved actor number.
	ErrNoRejoinToken = errors.New("no rejoin token")
	// ErrInvalidOptions wraps every local validation failure.
	ErrInvalidOptions = errors.New("invalid options")
	// ErrReservedKey is returned for custom property keys that parse as
	// integers.
	ErrReservedKey = errors.New("property key is reserved")
	// ErrUnknownActor is returned for actor numbers missing from the roster.
	ErrUnknownActor = errors.New("unknown actor")
)

// Stage-scoped error codes. Each stage owns a disjoint range.
const (
	CodeMatchmakerError         = 1001
	CodeMatchmakerConnectFailed = 1002
	CodeMatchmakerConnectClosed = 1003
	CodeMatchmakerTimeout       = 1004
	CodeMatchmakerAuthFailed    = 1101

	CodeSessionError         = 2001
	CodeSessionConnectFailed = 2002
	CodeSessionConnectClosed = 2003
	CodeSessionTimeout       = 2004
	CodeSessionAuthFailed    = 2101

	CodeDirectoryError         = 3001
	CodeDirectoryConnectFailed = 3002
	CodeDirectoryConnectClosed = 3003
	CodeDirectoryTimeout       = 3004
	CodeDirectoryAuthFailed    = 3101
)

// StageError is a connectivity or authentication failure surfaced to the
// application with a stage-scoped code.
type StageError struct {
	Code    int
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("error %d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("error %d: %s", e.Code, e.Message)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageBase(role transport.Role) int {
	switch role {
	case transport.RoleSession:
		return 2000
	case transport.RoleDirectory:
		return 3000
	}
	return 1000
}

// statusCode maps a failure status on role's peer to its error code.
func statusCode(role transport.Role, status transport.Status) int {
	base := stageBase(role)
	switch status {
	case transport.StatusConnectFailed:
		return base + 2
	case transport.StatusConnectClosed:
		return base + 3
	case transport.StatusTimeout:
		return base + 4
	}
	return base + 1
}
