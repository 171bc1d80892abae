package domain

// SessionState is the lifecycle of one socket. Connecting covers the
// handshake window before the first join, Active persists across room moves,
// Closed is terminal.
type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionActive
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionActive:
		return "active"
	case SessionClosed:
		return "closed"
	}
	return "unknown"
}
