package hnmp

// State is the lifecycle state of a Conn.
//
//	Idle -> Connecting -> Connected -> Disconnecting -> Closed
//
// Disconnecting and Closed are reachable from Connecting and Connected.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
