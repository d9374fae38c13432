package transport

// Role tags which server a Peer talks to.
type Role string

const (
	RoleDirectory  Role = "directory"
	RoleMatchmaker Role = "matchmaker"
	RoleSession    Role = "session"
)

// Status is a connection-status code delivered to status listeners.
type Status string

const (
	StatusConnecting    Status = "connecting"
	StatusConnect       Status = "connect"
	StatusConnectFailed Status = "connectFailed"
	StatusDisconnect    Status = "disconnect"
	StatusConnectClosed Status = "connectClosed"
	StatusError         Status = "error"
	StatusTimeout       Status = "timeout"
)

// Failure reports whether s ends the connection abnormally.
func (s Status) Failure() bool {
	switch s {
	case StatusConnectFailed, StatusConnectClosed, StatusError, StatusTimeout:
		return true
	}
	return false
}

// Lifecycle is the state of a Peer's underlying connection.
type Lifecycle int

const (
	LifecycleClosed Lifecycle = iota
	LifecycleConnecting
	LifecycleConnected
	LifecycleClosing
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleClosed:
		return "closed"
	case LifecycleConnecting:
		return "connecting"
	case LifecycleConnected:
		return "connected"
	case LifecycleClosing:
		return "closing"
	}
	return "unknown"
}
